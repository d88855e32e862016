package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/voicecli/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got := bytesToSamples(audio.StereoToMono(samplesToBytes([]int16{100, 200, -100, -200})))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Extremes(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.StereoToMono(samplesToBytes([]int16{32767, 32767, -32768, -32768})))
	if got[0] != 32767 || got[1] != -32768 {
		t.Errorf("got %v, want [32767 -32768]", got)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []int16
		src, dst int
		wantLen  int
	}{
		{"same rate", []int16{100, 200, 300}, 48000, 48000, 3},
		{"upsample 3x", []int16{1000, 2000}, 16000, 48000, 6},
		{"downsample 3x", []int16{100, 200, 300, 400, 500, 600}, 48000, 16000, 2},
		{"zero source rate", []int16{1, 2}, 0, 16000, 2},
		{"zero target rate", []int16{1, 2}, 16000, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.ResampleMono16(samplesToBytes(tt.in), tt.src, tt.dst))
			if len(got) != tt.wantLen {
				t.Fatalf("got %d samples, want %d", len(got), tt.wantLen)
			}
			if got[0] != tt.in[0] {
				t.Errorf("first sample: got %d, want %d", got[0], tt.in[0])
			}
		})
	}
}

func TestToSpeech(t *testing.T) {
	t.Parallel()

	mono16 := samplesToBytes([]int16{1, 2, 3})
	if got := audio.ToSpeech(mono16, audio.SpeechFormat); &got[0] != &mono16[0] {
		t.Error("matching format should return the input slice")
	}

	// 48 kHz stereo: 6 frames -> 2 mono samples at 16 kHz.
	stereo48 := samplesToBytes([]int16{100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300})
	got := bytesToSamples(audio.ToSpeech(stereo48, audio.Format{SampleRate: 48000, Channels: 2}))
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	for i, s := range got {
		if s != 200 {
			t.Errorf("sample %d: got %d, want 200", i, s)
		}
	}

	// Four channels keep only the first two before downmixing.
	quad := samplesToBytes([]int16{10, 30, 9999, 9999})
	got = bytesToSamples(audio.ToSpeech(quad, audio.Format{SampleRate: 16000, Channels: 4}))
	if len(got) != 1 || got[0] != 20 {
		t.Errorf("quad downmix: got %v, want [20]", got)
	}
}

func TestRMSAndSilence(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS(samplesToBytes([]int16{300, -300, 300, -300})); got != 300 {
		t.Errorf("RMS = %v, want 300", got)
	}
	if !audio.IsSilent(make([]byte, 64)) {
		t.Error("zero buffer should be silent")
	}
	if !audio.IsSilent(nil) {
		t.Error("empty buffer should be silent")
	}
	if audio.IsSilent(samplesToBytes([]int16{0, 0, 1})) {
		t.Error("buffer with a non-zero sample should not be silent")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	if got := audio.SpeechFormat.Duration(32000); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := (audio.Format{}).Duration(100); got != 0 {
		t.Errorf("zero format Duration = %v, want 0", got)
	}
	for f, want := range map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	} {
		if got := f.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
