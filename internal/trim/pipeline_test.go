package trim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner simulates ffmpeg invocations and progress output.
type fakeRunner struct {
	run func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, onLine, name, args...)
}

// The production Vidio adapter must keep satisfying Source.
var _ Source = videoSource{}

// fakeSource simulates a probed media file.
type fakeSource struct {
	duration float64
	hasAudio bool
	closed   bool
}

func (f *fakeSource) Duration() float64 { return f.duration }
func (f *fakeSource) HasAudio() bool    { return f.hasAudio }
func (f *fakeSource) Close()            { f.closed = true }

// mustWriteFile writes a small file or fails the test.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// argValue returns the value following a flag in an args slice.
func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args contains the exact token.
func hasArg(args []string, token string) bool {
	for _, arg := range args {
		if arg == token {
			return true
		}
	}
	return false
}

// TestPipelineRunSuccessWithAudio checks the full two-pass happy path,
// including the end clamp from 300s down to the 120s source duration.
func TestPipelineRunSuccessWithAudio(t *testing.T) {
	root := t.TempDir()
	sourcePath := filepath.Join(root, "clip.mp4")
	outputPath := filepath.Join(root, "out", "trimmed.mp4")
	mustWriteFile(t, sourcePath, "media")

	src := &fakeSource{duration: 120, hasAudio: true}
	var percents []int
	call := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			call++
			if name != "ffmpeg-custom" {
				t.Fatalf("command name = %q, want ffmpeg-custom", name)
			}
			if argValue(args, "-ss") != "10.000" || argValue(args, "-to") != "120.000" {
				t.Fatalf("pass %d interval = [%s, %s], want [10.000, 120.000]",
					call, argValue(args, "-ss"), argValue(args, "-to"))
			}
			switch call {
			case 1:
				if !hasArg(args, "-vn") {
					t.Fatalf("pass 1 should extract audio, args=%v", args)
				}
				onLine("out_time_ms=55000000")
				return commandResult{ExitCode: 0}, nil
			case 2:
				if !hasArg(args, "-map") || hasArg(args, "-an") {
					t.Fatalf("pass 2 should mux audio, args=%v", args)
				}
				onLine("frame=10")
				onLine("out_time_ms=110000000")
				mustWriteFile(t, args[len(args)-1], "video")
				return commandResult{ExitCode: 0}, nil
			default:
				t.Fatalf("unexpected command call: %d", call)
				return commandResult{}, nil
			}
		},
	}

	pipeline := NewPipelineForTests(
		"ffmpeg-custom",
		runner,
		func(path string) (Source, error) { return src, nil },
		os.MkdirTemp,
		os.RemoveAll,
		os.Stat,
	)
	result, err := pipeline.Run(context.Background(), Request{
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Start:      10,
		End:        300,
		OnProgress: func(percent int) { percents = append(percents, percent) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if call != 2 {
		t.Fatalf("command calls = %d, want 2", call)
	}
	if result.Range.Start != 10 || result.Range.End != 120 {
		t.Fatalf("resolved range = %+v, want [10, 120]", result.Range)
	}
	if result.SourceDuration != 120 {
		t.Fatalf("source duration = %v, want 120", result.SourceDuration)
	}
	if len(result.Logs) != 2 {
		t.Fatalf("logs count = %d, want 2", len(result.Logs))
	}
	if !src.closed {
		t.Fatal("source handle was not released")
	}

	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress = %v, want trailing 100", percents)
	}
	last := -1
	for _, p := range percents {
		if p < last {
			t.Fatalf("progress regressed: %v", percents)
		}
		last = p
	}
}

// TestPipelineRunWithoutAudioSkipsExtraction checks the single-pass path.
func TestPipelineRunWithoutAudioSkipsExtraction(t *testing.T) {
	root := t.TempDir()
	sourcePath := filepath.Join(root, "silent.mp4")
	outputPath := filepath.Join(root, "silent-trim.mp4")
	mustWriteFile(t, sourcePath, "media")

	call := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			call++
			if !hasArg(args, "-an") {
				t.Fatalf("expected silent encode, args=%v", args)
			}
			mustWriteFile(t, args[len(args)-1], "video")
			return commandResult{ExitCode: 0}, nil
		},
	}

	pipeline := NewPipelineForTests(
		"ffmpeg",
		runner,
		func(path string) (Source, error) { return &fakeSource{duration: 60}, nil },
		os.MkdirTemp,
		os.RemoveAll,
		os.Stat,
	)
	if _, err := pipeline.Run(context.Background(), Request{
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Start:      0,
		End:        5,
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if call != 1 {
		t.Fatalf("command calls = %d, want 1", call)
	}
}

// TestPipelineRunOpenFailure checks the unreadable-media path.
func TestPipelineRunOpenFailure(t *testing.T) {
	root := t.TempDir()
	sourcePath := filepath.Join(root, "broken.mp4")
	mustWriteFile(t, sourcePath, "not media")

	openErr := errors.New("moov atom not found")
	pipeline := NewPipelineForTests(
		"ffmpeg",
		&fakeRunner{},
		func(path string) (Source, error) { return nil, openErr },
		os.MkdirTemp,
		os.RemoveAll,
		os.Stat,
	)

	_, err := pipeline.Run(context.Background(), Request{
		SourcePath: sourcePath,
		OutputPath: filepath.Join(root, "out.mp4"),
		Start:      0,
		End:        10,
	})

	var pipelineErr *PipelineError
	if !errors.As(err, &pipelineErr) {
		t.Fatalf("error = %v, want *PipelineError", err)
	}
	if pipelineErr.Stage != StageProbe {
		t.Fatalf("stage = %q, want probe", pipelineErr.Stage)
	}
	if !errors.Is(err, openErr) {
		t.Fatalf("error chain lost the open failure: %v", err)
	}
	if !strings.Contains(pipelineErr.Message, "moov atom not found") {
		t.Fatalf("message = %q, want original description", pipelineErr.Message)
	}
}

// TestPipelineRunEncodeFailureReleasesResources checks the mid-encode
// failure path still closes the source and removes the temp workspace.
func TestPipelineRunEncodeFailureReleasesResources(t *testing.T) {
	root := t.TempDir()
	sourcePath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, sourcePath, "media")

	src := &fakeSource{duration: 60, hasAudio: true}
	var removed []string
	call := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			call++
			if call == 1 {
				return commandResult{ExitCode: 0}, nil
			}
			return commandResult{Stderr: "Error while decoding stream", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	pipeline := NewPipelineForTests(
		"ffmpeg",
		runner,
		func(path string) (Source, error) { return src, nil },
		os.MkdirTemp,
		func(path string) error {
			removed = append(removed, path)
			return os.RemoveAll(path)
		},
		os.Stat,
	)

	_, err := pipeline.Run(context.Background(), Request{
		SourcePath: sourcePath,
		OutputPath: filepath.Join(root, "out.mp4"),
		Start:      0,
		End:        30,
	})

	var pipelineErr *PipelineError
	if !errors.As(err, &pipelineErr) {
		t.Fatalf("error = %v, want *PipelineError", err)
	}
	if pipelineErr.Stage != StageVideo {
		t.Fatalf("stage = %q, want video", pipelineErr.Stage)
	}
	if pipelineErr.CommandLog.Stderr != "Error while decoding stream" {
		t.Fatalf("stderr = %q", pipelineErr.CommandLog.Stderr)
	}
	if !src.closed {
		t.Fatal("source handle was not released on failure")
	}
	if len(removed) != 1 {
		t.Fatalf("temp cleanup calls = %d, want 1", len(removed))
	}
}

// TestPipelineRunStartBeyondDurationPassesThrough documents the boundary:
// only the end is clamped, a start past the source duration reaches ffmpeg.
func TestPipelineRunStartBeyondDurationPassesThrough(t *testing.T) {
	root := t.TempDir()
	sourcePath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, sourcePath, "media")

	var seenStart string
	runner := &fakeRunner{
		run: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
			seenStart = argValue(args, "-ss")
			mustWriteFile(t, args[len(args)-1], "video")
			return commandResult{ExitCode: 0}, nil
		},
	}

	pipeline := NewPipelineForTests(
		"ffmpeg",
		runner,
		func(path string) (Source, error) { return &fakeSource{duration: 120}, nil },
		os.MkdirTemp,
		os.RemoveAll,
		os.Stat,
	)
	result, err := pipeline.Run(context.Background(), Request{
		SourcePath: sourcePath,
		OutputPath: filepath.Join(root, "out.mp4"),
		Start:      150,
		End:        300,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if seenStart != "150.000" {
		t.Fatalf("-ss = %q, want 150.000", seenStart)
	}
	if result.Range.End != 120 {
		t.Fatalf("end = %v, want clamped 120", result.Range.End)
	}
}

// TestParseProgressLine checks microsecond conversion and rejection.
func TestParseProgressLine(t *testing.T) {
	millis, ok := parseProgressLine("out_time_ms=1500000")
	if !ok || millis != 1500 {
		t.Fatalf("parse = (%d, %v), want (1500, true)", millis, ok)
	}

	for _, line := range []string{
		"frame=42",
		"out_time_ms=N/A",
		"out_time_ms=-1",
		"progress=continue",
		"",
	} {
		if _, ok := parseProgressLine(line); ok {
			t.Fatalf("parseProgressLine(%q) accepted", line)
		}
	}
}
