package recorder

import (
	"errors"
	"slices"
	"testing"
)

func TestCaptureArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tool, device string
		want         []string
	}{
		{"/usr/bin/arecord", "default", []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "16000", "-c", "1", "-D", "default"}},
		{"arecord", "", []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "16000", "-c", "1"}},
		{"/usr/bin/parecord", "default", []string{"--raw", "--format=s16le", "--rate=16000", "--channels=1"}},
		{"parecord", "alsa_input.usb", []string{"--raw", "--format=s16le", "--rate=16000", "--channels=1", "--device=alsa_input.usb"}},
	}
	for _, tt := range tests {
		if got := CaptureArgs(tt.tool, tt.device); !slices.Equal(got, tt.want) {
			t.Errorf("CaptureArgs(%q, %q) = %v, want %v", tt.tool, tt.device, got, tt.want)
		}
	}
}

func TestParseDeviceList(t *testing.T) {
	t.Parallel()
	out := []byte(`null
    Discard all samples (playback) or generate zero samples (capture)
default
    Default ALSA Output (currently PipeWire Media Server)
sysdefault:CARD=PCH
    HDA Intel PCH, ALC257 Analog
    Default Audio Device

`)
	got := ParseDeviceList(out)
	if len(got) != 3 {
		t.Fatalf("got %d devices: %+v", len(got), got)
	}
	if got[1].Name != "default" || got[1].Description != "Default ALSA Output (currently PipeWire Media Server)" {
		t.Errorf("device[1] = %+v", got[1])
	}
	if got[2].Description != "HDA Intel PCH, ALC257 Analog, Default Audio Device" {
		t.Errorf("device[2] = %+v", got[2])
	}
	if len(ParseDeviceList(nil)) != 0 {
		t.Error("empty output should yield no devices")
	}
}

// Not parallel: swaps the package-level LookPath.
func TestFindCaptureTool(t *testing.T) {
	orig := LookPath
	t.Cleanup(func() { LookPath = orig })

	LookPath = func(name string) (string, error) {
		if name == "parecord" {
			return "/usr/bin/parecord", nil
		}
		return "", errors.New("not found")
	}
	if got, err := FindCaptureTool(); err != nil || got != "/usr/bin/parecord" {
		t.Errorf("FindCaptureTool = %q, %v", got, err)
	}

	LookPath = func(string) (string, error) { return "", errors.New("not found") }
	if _, err := FindCaptureTool(); !errors.Is(err, ErrNoCaptureTool) {
		t.Errorf("err = %v, want ErrNoCaptureTool", err)
	}
}
