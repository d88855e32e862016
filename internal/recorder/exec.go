package recorder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/voicecli/pkg/audio"
)

// ErrNoCaptureTool is returned when neither arecord nor parecord is on PATH.
var ErrNoCaptureTool = errors.New("recorder: neither arecord nor parecord found in PATH")

// CaptureTools lists the supported capture commands in order of preference.
var CaptureTools = []string{"arecord", "parecord"}

// LookPath is exec.LookPath, replaceable in tests.
var LookPath = exec.LookPath

// FindCaptureTool returns the first available capture command.
func FindCaptureTool() (string, error) {
	for _, name := range CaptureTools {
		if path, err := LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoCaptureTool
}

// CaptureArgs returns the arguments that make tool write raw speech-format
// PCM to stdout.
func CaptureArgs(tool, device string) []string {
	rate := strconv.Itoa(audio.SpeechFormat.SampleRate)
	channels := strconv.Itoa(audio.SpeechFormat.Channels)
	if strings.HasSuffix(tool, "parecord") {
		args := []string{"--raw", "--format=s16le", "--rate=" + rate, "--channels=" + channels}
		if device != "" && device != "default" {
			args = append(args, "--device="+device)
		}
		return args
	}
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", channels}
	if device != "" {
		args = append(args, "-D", device)
	}
	return args
}

// ExecSource captures audio by running arecord, or parecord when arecord is
// missing. The process gets SIGTERM on Close so it can flush its buffers.
type ExecSource struct {
	// GracePeriod bounds how long Close waits after SIGTERM before the process
	// is killed. Defaults to 2s.
	GracePeriod time.Duration
}

// Open starts the capture command.
func (s ExecSource) Open(ctx context.Context, device string) (io.ReadCloser, error) {
	tool, err := FindCaptureTool()
	if err != nil {
		return nil, err
	}
	grace := s.GracePeriod
	if grace == 0 {
		grace = 2 * time.Second
	}

	cmd := exec.Command(tool, CaptureArgs(tool, device)...) //nolint:gosec // tool comes from a fixed list
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = grace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", tool, err)
	}
	return &process{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func (p *process) Read(b []byte) (int, error) { return p.stdout.Read(b) }

func (p *process) Close() error {
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	// Terminated by our own SIGTERM.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGTERM {
			return nil
		}
	}
	if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

// Device is a capture device reported by the sound system.
type Device struct {
	Name        string
	Description string
}

// ListDevices returns the capture devices reported by `arecord -L`.
func ListDevices(ctx context.Context) ([]Device, error) {
	path, err := LookPath("arecord")
	if err != nil {
		return nil, fmt.Errorf("recorder: list devices: %w", err)
	}
	out, err := exec.CommandContext(ctx, path, "-L").Output()
	if err != nil {
		return nil, fmt.Errorf("recorder: arecord -L: %w", err)
	}
	return ParseDeviceList(out), nil
}

// ParseDeviceList parses `arecord -L` output. Device names start at column
// zero; the indented lines that follow describe them.
func ParseDeviceList(out []byte) []Device {
	var devices []Device
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			devices = append(devices, Device{Name: strings.TrimSpace(line)})
			continue
		}
		if len(devices) == 0 {
			continue
		}
		d := &devices[len(devices)-1]
		desc := strings.TrimSpace(line)
		if d.Description == "" {
			d.Description = desc
		} else {
			d.Description += ", " + desc
		}
	}
	return devices
}
