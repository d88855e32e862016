package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV wraps s16le pcm in a RIFF/WAV container. The encoder needs a
// seekable sink to patch the header sizes, so the file is staged in dir
// (os.TempDir when empty) and removed afterwards.
func EncodeWAV(pcm []byte, f Format, dir string) ([]byte, error) {
	tmp, err := os.CreateTemp(dir, "voice-cli-*.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: create wav: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	enc := wav.NewEncoder(tmp, f.SampleRate, 16, f.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           Samples(pcm),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = tmp.Close()
		return nil, fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("audio: finalize wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav: %w", err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("audio: read wav: %w", err)
	}
	return data, nil
}

// DecodeWAV reads a 16-bit WAV file back into s16le PCM and its format.
func DecodeWAV(path string) ([]byte, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, Format{}, fmt.Errorf("audio: %s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("audio: unsupported bit depth %d", dec.BitDepth)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm, Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}, nil
}
