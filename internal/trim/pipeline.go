// Package trim runs one background trim job against an ffmpeg encode.
package trim

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"video-scissors/internal/domain"
	"video-scissors/internal/progress"
)

// Pipeline stages, in execution order.
const (
	StageProbe = "probe"
	StageAudio = "audio"
	StageVideo = "video"
)

// Request contains the trim inputs and execution callbacks for one run.
// End is a best-effort bound: it is clamped to the true source duration
// once known. Start is passed through unvalidated.
type Request struct {
	SourcePath string
	OutputPath string
	Start      float64
	End        float64
	OnProgress func(percent int)
	OnLog      func(log CommandLog)
}

// Result contains the resolved interval and command logs of a finished run.
type Result struct {
	OutputPath     string
	Range          domain.TimeRange
	SourceDuration float64
	Logs           []CommandLog
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability. onLine
// receives each stdout line while the command runs.
type commandRunner interface {
	Run(ctx context.Context, onLine func(line string), name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec and streams stdout lines.
type execRunner struct{}

// Run executes one command, forwarding stdout lines as they arrive and
// capturing stderr and the exit code.
func (r *execRunner) Run(ctx context.Context, onLine func(line string), name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}
	if err := cmd.Start(); err != nil {
		return commandResult{ExitCode: -1}, err
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}

	err = cmd.Wait()
	result := commandResult{
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Pipeline orchestrates source probing and the two-pass ffmpeg encode.
type Pipeline struct {
	ffmpegPath string
	runner     commandRunner
	openSource sourceOpener
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
	stat       func(name string) (os.FileInfo, error)
	mkdirAll   func(path string, perm os.FileMode) error
}

// NewPipeline constructs the production pipeline. An empty ffmpegPath
// falls back to the binary on PATH.
func NewPipeline(ffmpegPath string) *Pipeline {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}

	return &Pipeline{
		ffmpegPath: ffmpegPath,
		runner:     &execRunner{},
		openSource: openVideoSource,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
	}
}

// Run probes the source, clamps the requested end to its duration, and
// encodes the interval into the output path. Audio is extracted in its own
// pass first (mirroring the separate audio/video progress phases), then the
// video pass muxes it into the final file. The source handle and the temp
// workspace are released on every exit path.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.SourcePath) == "" {
		return Result{}, &PipelineError{
			Stage:   StageProbe,
			Message: "source media path is required",
		}
	}
	if _, err := p.stat(req.SourcePath); err != nil {
		return Result{}, &PipelineError{
			Stage:   StageProbe,
			Message: fmt.Sprintf("cannot access source media: %s", req.SourcePath),
			Err:     err,
		}
	}

	src, err := p.openSource(req.SourcePath)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   StageProbe,
			Message: fmt.Sprintf("cannot open source media: %v", err),
			Err:     err,
		}
	}
	defer src.Close()

	duration := src.Duration()
	resolved := domain.TimeRange{Start: req.Start, End: req.End}
	if resolved.End > duration {
		resolved.End = duration
	}

	if err := p.mkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return Result{}, &PipelineError{
			Stage:   StageVideo,
			Message: fmt.Sprintf("cannot create output directory: %s", filepath.Dir(req.OutputPath)),
			Err:     err,
		}
	}

	clipMillis := int64(resolved.Length() * 1000)
	if clipMillis < 0 {
		clipMillis = 0
	}
	hasAudio := src.HasAudio()

	agg := progress.NewAggregator(req.OnProgress)
	if hasAudio {
		agg.Update(StageAudio, 0, clipMillis)
	}
	agg.Update(StageVideo, 0, clipMillis)

	var logs []CommandLog
	audioPath := ""
	if hasAudio {
		tempDir, err := p.mkdirTemp("", "video-scissors-*")
		if err != nil {
			return Result{}, &PipelineError{
				Stage:   StageAudio,
				Message: "failed to create temporary workspace",
				Err:     err,
			}
		}
		defer func() { _ = p.removeAll(tempDir) }()

		audioPath = filepath.Join(tempDir, "audio.m4a")
		args := buildAudioArgs(req.SourcePath, resolved, audioPath)

		log, runErr := p.runPass(ctx, StageAudio, agg, clipMillis, args)
		emitLog(req.OnLog, log)
		logs = append(logs, log)
		if runErr != nil {
			return Result{}, &PipelineError{
				Stage:      StageAudio,
				Message:    "ffmpeg audio extraction failed",
				CommandLog: log,
				Err:        runErr,
			}
		}
		agg.Update(StageAudio, clipMillis, clipMillis)
	}

	args := buildVideoArgs(req.SourcePath, audioPath, resolved, req.OutputPath)
	log, runErr := p.runPass(ctx, StageVideo, agg, clipMillis, args)
	emitLog(req.OnLog, log)
	logs = append(logs, log)
	if runErr != nil {
		return Result{}, &PipelineError{
			Stage:      StageVideo,
			Message:    "ffmpeg video encode failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	if _, err := p.stat(req.OutputPath); err != nil {
		return Result{}, &PipelineError{
			Stage:      StageVideo,
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}
	agg.Update(StageVideo, clipMillis, clipMillis)

	return Result{
		OutputPath:     req.OutputPath,
		Range:          resolved,
		SourceDuration: duration,
		Logs:           logs,
	}, nil
}

// runPass executes one ffmpeg invocation, feeding its -progress output
// into the aggregator under the given phase name.
func (p *Pipeline) runPass(ctx context.Context, phase string, agg *progress.Aggregator, clipMillis int64, args []string) (CommandLog, error) {
	onLine := func(line string) {
		millis, ok := parseProgressLine(line)
		if !ok {
			return
		}
		if clipMillis > 0 && millis > clipMillis {
			millis = clipMillis
		}
		agg.Update(phase, millis, clipMillis)
	}

	result, err := p.runner.Run(ctx, onLine, p.ffmpegPath, args...)
	log := CommandLog{
		Command:  p.ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
	}
	return log, err
}

// emitLog forwards command logs when the callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// parseProgressLine extracts out_time_ms from one ffmpeg -progress line
// and converts it to milliseconds. Despite the name, ffmpeg reports
// out_time_ms in microseconds.
func parseProgressLine(line string) (int64, bool) {
	value, ok := strings.CutPrefix(strings.TrimSpace(line), "out_time_ms=")
	if !ok {
		return 0, false
	}

	micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || micros < 0 {
		return 0, false
	}
	return micros / 1000, true
}

// buildAudioArgs builds the audio extraction pass over the trim interval.
func buildAudioArgs(sourcePath string, r domain.TimeRange, audioPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-loglevel", "error",
		"-ss", formatSeconds(r.Start),
		"-to", formatSeconds(r.End),
		"-i", sourcePath,
		"-vn",
		"-c:a", "aac",
		"-progress", "pipe:1",
		audioPath,
	}
}

// buildVideoArgs builds the video encode pass. When an extracted audio
// file is present it is muxed in unchanged.
func buildVideoArgs(sourcePath, audioPath string, r domain.TimeRange, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-loglevel", "error",
		"-ss", formatSeconds(r.Start),
		"-to", formatSeconds(r.End),
		"-i", sourcePath,
	}

	if audioPath != "" {
		args = append(args,
			"-i", audioPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", "libx264",
			"-c:a", "copy",
		)
	} else {
		args = append(args,
			"-map", "0:v:0",
			"-an",
			"-c:v", "libx264",
		)
	}

	return append(args,
		"-progress", "pipe:1",
		outputPath,
	)
}

// formatSeconds renders seconds for ffmpeg CLI arguments.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ffmpegPath string,
	runner commandRunner,
	openSource sourceOpener,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	return &Pipeline{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		openSource: openSource,
		mkdirTemp:  mkdirTemp,
		removeAll:  removeAll,
		stat:       stat,
		mkdirAll:   os.MkdirAll,
	}
}
