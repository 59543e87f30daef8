package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stillcapture "github.com/e7canasta/orion-care-sensor/modules/still-capture"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/naming"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
)

func TestCaptureCmd_WritesFrames(t *testing.T) {
	dir := t.TempDir()

	var stdout bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"capture",
		"--output", dir,
		"--count", "2",
		"--settle", "0s",
		"--width", "160",
		"--height", "128",
		"--backend", "sim",
		"--log-level", "error",
		"-x", "EXIF.UserComment=cli",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	lines := strings.Fields(stdout.String())
	if len(lines) != 2 {
		t.Fatalf("printed paths = %q, want 2", stdout.String())
	}
	for i, path := range lines {
		want := filepath.Join(dir, "image000"+string(rune('0'+i))+".jpg")
		if path != want {
			t.Errorf("path %d = %q, want %q", i, path, want)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("stat %s: %v", path, err)
		}
	}
	t.Logf("✅ capture wrote %d frames", len(lines))
}

func TestCaptureCmd_InvalidFlags(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"capture", "--quality", "150", "--output", t.TempDir()})

	if err := root.Execute(); err == nil {
		t.Fatal("Execute() succeeded with quality 150, want error")
	}
}

func TestCaptureFlags_OnlyChangedOverride(t *testing.T) {
	cmd := NewCaptureCmd(&globalFlags{})
	if err := cmd.ParseFlags([]string{"--count", "7", "--no-exif"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg := config.Default()
	cfg.Output.Dir = "/data"
	cfg.Capture.Interval = time.Minute

	f := &captureFlags{count: 7, noExif: true}
	f.apply(&cfg, cmd)

	if cfg.Capture.Count != 7 || !cfg.EXIF.Disabled {
		t.Errorf("flags not applied: count=%d exif_disabled=%v", cfg.Capture.Count, cfg.EXIF.Disabled)
	}
	if cfg.Output.Dir != "/data" || cfg.Capture.Interval != time.Minute {
		t.Errorf("unset flags overrode config: dir=%q interval=%v", cfg.Output.Dir, cfg.Capture.Interval)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Naming = "timestamp"
	cfg.Output.MinFreeMB = 2
	cfg.Encoder.Thumbnail.Disabled = true
	cfg.EXIF.GPS = true

	sc, err := sessionConfig(&cfg, nil, nil)
	if err != nil {
		t.Fatalf("sessionConfig() error = %v", err)
	}
	if sc.Encoding != pipeline.EncodingJPEG || sc.Quality != 85 {
		t.Errorf("encoder = %q q%d", sc.Encoding, sc.Quality)
	}
	if sc.Naming.Mode != naming.ModeTimestamp {
		t.Errorf("naming mode = %v, want timestamp", sc.Naming.Mode)
	}
	if sc.MinFreeBytes != 2<<20 {
		t.Errorf("min free = %d, want %d", sc.MinFreeBytes, 2<<20)
	}
	// GPS is requested but there is no provider, so only EXIF remains.
	if sc.Capabilities != stillcapture.CapEXIF {
		t.Errorf("capabilities = %s, want exif", sc.Capabilities)
	}

	cfg.Encoder.Encoding = "gif"
	if _, err := sessionConfig(&cfg, nil, nil); err == nil {
		t.Error("sessionConfig() accepted gif")
	}
}

func TestFrameEvent(t *testing.T) {
	start := time.Date(2024, time.March, 5, 14, 2, 9, 0, time.UTC)
	ev := frameEvent("porch", stillcapture.FrameResult{
		FrameID:    4,
		State:      stillcapture.FrameFailed,
		Bytes:      10,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Err:        errors.New("short write"),
	})
	if ev.Camera != "porch" || ev.State != "failed" || ev.Error != "short write" || ev.DurationMS != 1500 {
		t.Errorf("event = %+v", ev)
	}
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	err := report(&out, []check{
		{name: "config", ok: true, msg: "valid"},
		{name: "gpsd", msg: "connection refused"},
	})
	if err == nil || !strings.Contains(err.Error(), "1 check") {
		t.Errorf("report() error = %v, want one failed check", err)
	}
	if !strings.Contains(out.String(), "✗ gpsd") || !strings.Contains(out.String(), "✓ config") {
		t.Errorf("output =\n%s", out.String())
	}
}
