package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"video-scissors/internal/domain"
)

// TestCheckerAllPass verifies a healthy environment report.
func TestCheckerAllPass(t *testing.T) {
	outputDir := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{OutputDir: outputDir})
	if report.HasFailures {
		t.Fatalf("report has failures: %+v", report.Items)
	}
	if len(report.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(report.Items))
	}
}

// TestCheckerMissingTool verifies PATH lookup failure reporting.
func TestCheckerMissingTool(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			if name == "ffprobe" {
				return "", errors.New("not found")
			}
			return "/usr/bin/" + name, nil
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{OutputDir: t.TempDir()})
	if !report.HasFailures {
		t.Fatal("expected failure for missing ffprobe")
	}

	var found bool
	for _, item := range report.Items {
		if item.ID == "tool_ffprobe" {
			found = true
			if item.Status != domain.DiagnosticStatusFail {
				t.Fatalf("ffprobe status = %s, want fail", item.Status)
			}
		}
	}
	if !found {
		t.Fatal("ffprobe item missing from report")
	}
}

// TestCheckerCustomFFmpegPath verifies the configured binary is looked up.
func TestCheckerCustomFFmpegPath(t *testing.T) {
	var looked []string
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			looked = append(looked, name)
			return "/bin/" + name, nil
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	checker.Run(domain.Settings{OutputDir: t.TempDir(), FFmpegPath: "/opt/ffmpeg/bin/ffmpeg"})
	if len(looked) == 0 || looked[0] != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("lookups = %v, want configured ffmpeg first", looked)
	}
}

// TestCheckerOutputDirFailures verifies empty and unwritable directories.
func TestCheckerOutputDirFailures(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		func(dir, pattern string) (*os.File, error) { return nil, errors.New("read-only") },
		os.Remove,
	)

	report := checker.Run(domain.Settings{OutputDir: ""})
	if !report.HasFailures {
		t.Fatal("expected failure for empty output dir")
	}

	report = checker.Run(domain.Settings{OutputDir: filepath.Join(t.TempDir(), "out")})
	if !report.HasFailures {
		t.Fatal("expected failure for unwritable output dir")
	}
}
