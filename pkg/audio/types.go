// Package audio holds the PCM helpers shared by the recorder, the converter
// and the speech engines. All sample data is 16-bit signed little-endian.
package audio

import (
	"fmt"
	"time"
)

// BytesPerSample is the width of one s16le sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what every speech engine receives: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Duration returns the playback length of n bytes of PCM in this format.
// Returns 0 for a zero format.
func (f Format) Duration(n int) time.Duration {
	bytesPerSec := f.SampleRate * f.Channels * BytesPerSample
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bytesPerSec))
}

// Clip is one converted recording ready for transcription. PCM and WAV carry
// the same samples; streaming engines use the former, upload engines the latter.
type Clip struct {
	PCM      []byte
	WAV      []byte
	Format   Format
	Duration time.Duration
}
