// Package bootstrap wires settings, the job supervisor, the trim pipeline,
// and the Wails UI runtime together.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-scissors/internal/config"
	"video-scissors/internal/diagnostics"
	"video-scissors/internal/domain"
	"video-scissors/internal/jobs"
	"video-scissors/internal/timecode"
	"video-scissors/internal/trim"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Pre-submission validation errors. These are resolved synchronously on
// the interactive thread and never start a job.
var (
	ErrMissingSource = errors.New("source video is required")
	ErrMissingOutput = errors.New("output file path is required")
	ErrInvalidRange  = errors.New("end time must be greater than start time")
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the single-job supervisor, the trim pipeline,
// and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Supervisor  *jobs.Supervisor
	Pipeline    pipelineRunner
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	log         zerolog.Logger

	mu          sync.Mutex
	activeJobID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	runtimeCtx  context.Context

	probeDuration func(path string) (float64, error)
}

// pipelineRunner isolates the trim pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req trim.Request) (trim.Result, error)
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".video-scissors", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("component", "bootstrap").
		Logger()

	return &App{
		Settings:      settings,
		Store:         store,
		Supervisor:    jobs.NewSupervisor(),
		Pipeline:      trim.NewPipeline(settings.FFmpegPath),
		Diagnostics:   report,
		assets:        assets,
		checker:       checker,
		log:           logger,
		events:        jobs.NewEventBus(1000),
		probeDuration: trim.ProbeDuration,
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Scissors",
		Width:       560,
		Height:      340,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events and dialogs.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown abandons a running worker by cancelling its context. No cleanup
// guarantee is made for a partially written output file.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.runtimeCtx = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, rebuilds the pipeline for
// a possibly changed ffmpeg binary, and refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.Pipeline = trim.NewPipeline(normalized.FFmpegPath)
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// PickInputFile opens a native file dialog for source video selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Choose a video",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputFile opens a native save dialog for the trimmed video path.
// A path picked without an extension gets the configured container.
func (a *App) PickOutputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save trimmed video as",
		DefaultDirectory: settings.OutputDir,
		DefaultFilename:  "trimmed." + settings.Container,
		Filters:          videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	return ensureContainerExt(path, settings.Container), nil
}

// ProbeDuration opens the source and returns its duration as a timecode,
// used to prefill the end field after a video is picked.
func (a *App) ProbeDuration(path string) (string, error) {
	seconds, err := a.probeDuration(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("probe media duration: %w", err)
	}
	return timecode.Format(seconds), nil
}

// StartTrim validates the submission, claims the job slot, and runs the
// trim asynchronously. Validation failures never start a job.
func (a *App) StartTrim(sourcePath, startText, endText, outputPath string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	job, err := buildJob(settings, sourcePath, startText, endText, outputPath)
	if err != nil {
		return domain.Job{}, err
	}

	if err := a.Supervisor.Start(job); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.Settings = settings
	a.activeJobID = job.ID
	a.cancel = cancel
	// The pipeline is captured here so a concurrent SaveSettings rebuild
	// cannot swap it under the running worker.
	pipeline := a.Pipeline
	a.mu.Unlock()

	a.publishStatus(job.ID, domain.JobStatusRunning, "Job started")
	go a.runTrimJob(ctx, pipeline, job)
	return a.Supervisor.Current(), nil
}

// IsRunning reports whether a trim job currently occupies the slot.
func (a *App) IsRunning() bool {
	return a.Supervisor.IsRunning()
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Supervisor.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// OpenOutputFolder opens the folder holding the given path (or the
// configured output dir) in the platform file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runTrimJob executes the pipeline and maps its outcome to job events.
// The terminal event is always published last for the job.
func (a *App) runTrimJob(ctx context.Context, pipeline pipelineRunner, job domain.Job) {
	logger := a.log.With().Str("job", job.ID).Logger()
	logger.Info().
		Str("source", job.SourcePath).
		Str("output", job.OutputPath).
		Float64("start", job.Range.Start).
		Float64("end", job.Range.End).
		Msg("trim job started")

	req := trim.Request{
		SourcePath: job.SourcePath,
		OutputPath: job.OutputPath,
		Start:      job.Range.Start,
		End:        job.Range.End,
		OnProgress: func(percent int) {
			a.publishEvent(jobs.Event{
				JobID:   job.ID,
				Type:    jobs.EventTypeProgress,
				Status:  domain.JobStatusRunning,
				Percent: percent,
			})
		},
		OnLog: func(log trim.CommandLog) {
			a.publishEvent(jobs.Event{
				JobID:    job.ID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stderr:   log.Stderr,
			})
		},
	}

	result, err := pipeline.Run(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("trim job failed")

		message := err.Error()
		var pipelineErr *trim.PipelineError
		if errors.As(err, &pipelineErr) && pipelineErr.CommandLog.Command != "" {
			a.publishEvent(jobs.Event{
				JobID:    job.ID,
				Type:     jobs.EventTypeLog,
				Message:  "Failed command",
				Command:  pipelineErr.CommandLog.Command,
				Args:     pipelineErr.CommandLog.Args,
				ExitCode: pipelineErr.CommandLog.ExitCode,
				Stderr:   pipelineErr.CommandLog.Stderr,
			})
			// The terminal message carries ffmpeg's own description, not
			// just the stage summary.
			if stderr := strings.TrimSpace(pipelineErr.CommandLog.Stderr); stderr != "" {
				message = message + ": " + stderr
			}
		}

		_ = a.Supervisor.Finish(job.ID, domain.JobStatusFailed)
		a.publishEvent(jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeTerminal,
			Status:  domain.JobStatusFailed,
			Message: message,
		})
		a.clearActiveJob(job.ID)
		return
	}

	logger.Info().
		Str("output", result.OutputPath).
		Float64("clampedEnd", result.Range.End).
		Msg("trim job finished")

	_ = a.Supervisor.Finish(job.ID, domain.JobStatusSucceeded)
	a.publishEvent(jobs.Event{
		JobID:      job.ID,
		Type:       jobs.EventTypeTerminal,
		Status:     domain.JobStatusSucceeded,
		Success:    true,
		Percent:    100,
		Message:    "Done!",
		OutputPath: result.OutputPath,
	})
	a.clearActiveJob(job.ID)
}

// buildJob runs pre-submission validation and assembles a created job.
func buildJob(settings domain.Settings, sourcePath, startText, endText, outputPath string) (domain.Job, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return domain.Job{}, ErrMissingSource
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return domain.Job{}, fmt.Errorf("%w: cannot access %s", ErrMissingSource, sourcePath)
	}

	start, err := timecode.Parse(startText)
	if err != nil {
		return domain.Job{}, fmt.Errorf("start time: %w", err)
	}
	end, err := timecode.Parse(endText)
	if err != nil {
		return domain.Job{}, fmt.Errorf("end time: %w", err)
	}
	if end <= start {
		return domain.Job{}, ErrInvalidRange
	}

	outputPath = strings.TrimSpace(outputPath)
	if outputPath == "" {
		return domain.Job{}, ErrMissingOutput
	}

	return domain.Job{
		ID:         "job-" + shortuuid.New(),
		Status:     domain.JobStatusCreated,
		SourcePath: sourcePath,
		OutputPath: ensureContainerExt(outputPath, settings.Container),
		Range:      domain.TimeRange{Start: start, End: end},
	}, nil
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
// EventsEmit delivers on the frontend's own execution context, so worker
// goroutines never touch UI state directly.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// ensureContainerExt appends the configured container extension when the
// path has none.
func ensureContainerExt(path, container string) string {
	if filepath.Ext(path) != "" {
		return path
	}

	container = strings.TrimPrefix(strings.TrimSpace(container), ".")
	if container == "" {
		container = "mp4"
	}
	return path + "." + container
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.Container = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(settings.Container)), ".")
	if settings.Container == "" {
		settings.Container = "mp4"
	}
	if settings.FFmpegPath == "" {
		settings.FFmpegPath = "ffmpeg"
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
