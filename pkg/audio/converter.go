package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrEmptyAudio is returned by [Converter.Convert] for a zero-length buffer.
var ErrEmptyAudio = errors.New("audio: empty buffer")

// Converter turns a raw capture buffer into a [Clip] in [SpeechFormat].
// The zero value assumes the capture is already 16 kHz mono.
type Converter struct {
	// Source is the capture format. Zero means [SpeechFormat].
	Source Format

	// TempDir stages the WAV encoding. Empty uses os.TempDir.
	TempDir string
}

// Convert normalises pcm and encodes it. It fails on empty or misaligned
// input and when ctx is already done.
func (c *Converter) Convert(ctx context.Context, pcm []byte) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	if len(pcm) == 0 {
		return Clip{}, ErrEmptyAudio
	}

	src := c.Source
	if src == (Format{}) {
		src = SpeechFormat
	}
	if len(pcm)%(BytesPerSample*src.Channels) != 0 {
		return Clip{}, fmt.Errorf("audio: %d bytes is not a whole number of %s frames", len(pcm), src)
	}
	if src != SpeechFormat {
		slog.Debug("audio: converting capture", "from", src.String(), "to", SpeechFormat.String())
	}

	out := ToSpeech(pcm, src)
	wav, err := EncodeWAV(out, SpeechFormat, c.TempDir)
	if err != nil {
		return Clip{}, err
	}
	return Clip{
		PCM:      out,
		WAV:      wav,
		Format:   SpeechFormat,
		Duration: SpeechFormat.Duration(len(out)),
	}, nil
}
