package systemd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type recorder struct {
	calls [][]string
	fail  map[string]error
}

func (r *recorder) run(_ context.Context, args ...string) error {
	r.calls = append(r.calls, args)
	return r.fail[args[0]]
}

func (r *recorder) verbs() []string {
	var out []string
	for _, c := range r.calls {
		out = append(out, c[0])
	}
	return out
}

func newTestInstaller(t *testing.T, rec *recorder) *Installer {
	t.Helper()
	return &Installer{
		Dir:  filepath.Join(t.TempDir(), "systemd", "user"),
		Exec: "/usr/local/bin/voice-cli",
		Env:  []string{"VOICE_CLI_CONFIG_DIR=/home/u/.config/voice-cli"},
		Run:  rec.run,
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	i := newTestInstaller(t, &recorder{})
	unit, err := i.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"ExecStart=/usr/local/bin/voice-cli start\n",
		"Environment=VOICE_CLI_CONFIG_DIR=/home/u/.config/voice-cli\n",
		"WantedBy=default.target",
	} {
		if !strings.Contains(string(unit), want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestInstallUninstall(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	i := newTestInstaller(t, rec)
	ctx := context.Background()

	if err := i.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(i.UnitPath()); err != nil {
		t.Fatalf("unit not written: %v", err)
	}
	if got := rec.verbs(); !slices.Equal(got, []string{"daemon-reload", "enable", "start"}) {
		t.Errorf("install calls = %v", got)
	}

	rec.calls = nil
	rec.fail = map[string]error{"stop": errors.New("inactive")}
	if err := i.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if got := rec.verbs(); !slices.Equal(got, []string{"stop", "disable", "daemon-reload"}) {
		t.Errorf("uninstall calls = %v", got)
	}
	if _, err := os.Stat(i.UnitPath()); !os.IsNotExist(err) {
		t.Errorf("unit still present: %v", err)
	}

	if err := i.Uninstall(ctx); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("second Uninstall = %v, want ErrNotInstalled", err)
	}
}

func TestInstall_SystemctlFailure(t *testing.T) {
	t.Parallel()
	rec := &recorder{fail: map[string]error{"enable": errors.New("no user bus")}}
	err := newTestInstaller(t, rec).Install(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no user bus") {
		t.Fatalf("err = %v", err)
	}
	if got := rec.verbs(); !slices.Equal(got, []string{"daemon-reload", "enable"}) {
		t.Errorf("calls = %v, want to stop after the failure", got)
	}
}
