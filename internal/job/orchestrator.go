// Package job orchestrates the translation pipeline: it owns the job table,
// drives documents through the stages, and reports progress.
package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Failure reasons recorded on FAILED jobs beside the error code.
const (
	ReasonCancelled = "CANCELLED"
	ReasonShutdown  = "SHUTDOWN"
)

// Canonical progress milestones, one per stage boundary.
const (
	progressValidated     = 5
	progressRasterized    = 15
	progressRecognized    = 40
	progressTranslated    = 70
	progressReconstructed = 95
	progressDone          = 100
)

// Job is the externally visible state of one translation run.
type Job struct {
	JobID          string          `json:"job_id"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	SourcePath     string          `json:"source_path"`
	SourceLanguage string          `json:"source_language"`
	TargetLanguage string          `json:"target_language"`
	OutputPath     string          `json:"output_path,omitempty"`
	ErrorCode      types.ErrorCode `json:"error_code,omitempty"`
	Error          string          `json:"error,omitempty"`
	FailReason     string          `json:"fail_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// Terminal reports whether the job reached an end state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// jobEntry pairs a job with its run machinery. State mutations go through
// the entry lock; the orchestrator-wide lock only guards the table itself.
type jobEntry struct {
	mu     sync.Mutex
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Config tunes the orchestrator.
type Config struct {
	// WorkDir hosts one subdirectory per job for page images and output.
	WorkDir string
	// Retention keeps terminal jobs visible before the sweeper purges them.
	Retention time.Duration
	// SessionID scopes user choices consulted during translation.
	SessionID string
}

// DefaultRetention keeps finished jobs queryable for a day.
const DefaultRetention = 24 * time.Hour

const retentionSweepInterval = time.Hour

// Orchestrator drives jobs through the pipeline.
type Orchestrator struct {
	pipeline  Pipeline
	workDir   string
	retention time.Duration
	sessionID string

	mu   sync.RWMutex
	jobs map[string]*jobEntry

	wg       sync.WaitGroup
	shutMu   sync.Mutex
	shutdown bool
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator over the given pipeline.
func NewOrchestrator(p Pipeline, cfg Config) (*Orchestrator, error) {
	if p == nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "pipeline is required", nil)
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "pdf-translator-jobs")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create work directory", err)
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Orchestrator{
		pipeline:  p,
		workDir:   workDir,
		retention: retention,
		sessionID: cfg.SessionID,
		jobs:      make(map[string]*jobEntry),
		now:       time.Now,
	}, nil
}

// Submit validates the request, registers a QUEUED job, and starts the
// worker. The returned id is immediately observable through Status.
func (o *Orchestrator) Submit(sourcePath, sourceLang, targetLang string) (string, error) {
	if sourcePath == "" {
		return "", types.NewAppError(types.ErrInvalidInput, "source path is empty", nil)
	}
	if !validLanguageCode(sourceLang) || !validLanguageCode(targetLang) {
		return "", types.NewAppError(types.ErrInvalidInput,
			"language codes must be two-letter ISO 639-1 lowercase", nil)
	}
	if sourceLang == targetLang {
		return "", types.NewAppError(types.ErrInvalidInput, "source and target languages are identical", nil)
	}

	o.shutMu.Lock()
	if o.shutdown {
		o.shutMu.Unlock()
		return "", types.NewAppError(types.ErrServiceUnavail, "orchestrator is shutting down", nil)
	}
	o.shutMu.Unlock()

	id := uuid.NewString()
	now := o.now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	entry := &jobEntry{
		job: Job{
			JobID:          id,
			Status:         StatusQueued,
			SourcePath:     sourcePath,
			SourceLanguage: sourceLang,
			TargetLanguage: targetLang,
			CreatedAt:      now,
			LastUpdated:    now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.jobs[id] = entry
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(ctx, entry)

	logger.Info("job submitted",
		logger.String("job_id", id),
		logger.String("source_lang", sourceLang),
		logger.String("target_lang", targetLang))
	return id, nil
}

// Status returns a copy of the job's current state without blocking its
// worker.
func (o *Orchestrator) Status(jobID string) (Job, error) {
	entry, err := o.entry(jobID)
	if err != nil {
		return Job{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job, nil
}

// Result returns the output path of a completed job. A failed job returns
// its error; a job still in flight reports INVALID_INPUT.
func (o *Orchestrator) Result(jobID string) (string, error) {
	job, err := o.Status(jobID)
	if err != nil {
		return "", err
	}
	switch job.Status {
	case StatusCompleted:
		return job.OutputPath, nil
	case StatusFailed:
		code := job.ErrorCode
		if code == "" {
			code = types.ErrInternal
		}
		return "", types.NewAppErrorWithDetails(code, "job failed", job.FailReason, nil)
	default:
		return "", types.NewAppError(types.ErrInvalidInput, "job has not finished", nil)
	}
}

// Cancel signals a job's in-flight work. The worker observes the signal at
// its next suspension point and marks the job FAILED with reason CANCELLED.
func (o *Orchestrator) Cancel(jobID string) error {
	entry, err := o.entry(jobID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	terminal := entry.job.Terminal()
	entry.mu.Unlock()
	if terminal {
		return types.NewAppError(types.ErrInvalidInput, "job already finished", nil)
	}
	entry.cancel()
	return nil
}

// Wait blocks until the job's worker exits. Intended for CLI callers and
// tests; Status stays non-blocking.
func (o *Orchestrator) Wait(jobID string) error {
	entry, err := o.entry(jobID)
	if err != nil {
		return err
	}
	<-entry.done
	return nil
}

func (o *Orchestrator) entry(jobID string) (*jobEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.jobs[jobID]
	if !ok {
		return nil, types.NewAppError(types.ErrNotFound, "unknown job id", nil)
	}
	return entry, nil
}

// run executes the pipeline for one job, updating progress at each stage
// boundary and checking cancellation between stages.
func (o *Orchestrator) run(ctx context.Context, entry *jobEntry) {
	defer o.wg.Done()
	defer close(entry.done)
	defer entry.cancel()

	o.setStatus(entry, StatusRunning)
	jobID := entry.job.JobID
	workDir := filepath.Join(o.workDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		o.fail(entry, types.NewAppError(types.ErrInternal, "failed to create job work directory", err))
		return
	}

	src := entry.job.SourcePath
	if err := o.pipeline.Validate(ctx, src); err != nil {
		o.fail(entry, err)
		return
	}
	o.setProgress(entry, progressValidated)
	if o.checkCancelled(ctx, entry) {
		return
	}

	images, err := o.pipeline.Rasterize(ctx, src, workDir)
	if err != nil {
		o.fail(entry, err)
		return
	}
	o.setProgress(entry, progressRasterized)
	if o.checkCancelled(ctx, entry) {
		return
	}

	pages, err := o.pipeline.Recognize(ctx, images)
	if err != nil {
		o.fail(entry, err)
		return
	}
	o.setProgress(entry, progressRecognized)
	if o.checkCancelled(ctx, entry) {
		return
	}

	doc, err := o.pipeline.Translate(ctx, pages, entry.job.SourceLanguage, entry.job.TargetLanguage, o.sessionID, src)
	if err != nil {
		o.fail(entry, err)
		return
	}
	o.setProgress(entry, progressTranslated)
	if o.checkCancelled(ctx, entry) {
		return
	}

	outPath := filepath.Join(workDir, "translated.pdf")
	if _, err := o.pipeline.Reconstruct(ctx, doc, outPath); err != nil {
		o.fail(entry, err)
		return
	}
	o.setProgress(entry, progressReconstructed)
	if o.checkCancelled(ctx, entry) {
		return
	}

	report, err := o.pipeline.Verify(ctx, src, outPath, pages, doc)
	if err != nil {
		logger.Warn("quality validation failed", logger.String("job_id", jobID), logger.Err(err))
	} else if !report.Pass {
		logger.Warn("quality validation below thresholds",
			logger.String("job_id", jobID),
			logger.Float64("coverage", report.TextCoverageRatio),
			logger.Float64("layout_similarity", report.LayoutHashSimilarity))
	}

	entry.mu.Lock()
	entry.job.OutputPath = outPath
	entry.mu.Unlock()
	o.setProgress(entry, progressDone)
	o.setStatus(entry, StatusCompleted)
	logger.Info("job completed", logger.String("job_id", jobID))
}

func (o *Orchestrator) checkCancelled(ctx context.Context, entry *jobEntry) bool {
	if ctx.Err() == nil {
		return false
	}
	o.fail(entry, types.NewAppError(types.ErrCancelled, "job cancelled", ctx.Err()))
	return true
}

func (o *Orchestrator) setStatus(entry *jobEntry, status Status) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Terminal() {
		return
	}
	entry.job.Status = status
	entry.job.LastUpdated = o.now().UTC()
}

// setProgress only ever moves forward.
func (o *Orchestrator) setProgress(entry *jobEntry, progress int) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Terminal() || progress <= entry.job.Progress {
		return
	}
	entry.job.Progress = progress
	entry.job.LastUpdated = o.now().UTC()
}

// fail marks the job FAILED exactly once.
func (o *Orchestrator) fail(entry *jobEntry, err error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Terminal() {
		return
	}
	entry.job.Status = StatusFailed
	entry.job.ErrorCode = types.CodeOf(err)
	entry.job.Error = err.Error()
	if errIsCancelled(err) {
		entry.job.ErrorCode = types.ErrCancelled
		if entry.job.FailReason == "" {
			entry.job.FailReason = ReasonCancelled
		}
	}
	entry.job.LastUpdated = o.now().UTC()
	logger.Error("job failed", err, logger.String("job_id", entry.job.JobID))
}

// Sweep purges terminal jobs past the retention window and removes their
// work directories. The key set is copied before iteration so job table
// mutation never races the walk.
func (o *Orchestrator) Sweep() int {
	cutoff := o.now().UTC().Add(-o.retention)

	o.mu.RLock()
	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	purged := 0
	for _, id := range ids {
		entry, err := o.entry(id)
		if err != nil {
			continue
		}
		entry.mu.Lock()
		expired := entry.job.Terminal() && entry.job.LastUpdated.Before(cutoff)
		entry.mu.Unlock()
		if !expired {
			continue
		}

		o.mu.Lock()
		delete(o.jobs, id)
		o.mu.Unlock()
		os.RemoveAll(filepath.Join(o.workDir, id))
		purged++
	}
	if purged > 0 {
		logger.Info("purged expired jobs", logger.Int("count", purged))
	}
	return purged
}

// StartSweeper runs Sweep every hour until ctx is done.
func (o *Orchestrator) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(retentionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.Sweep()
			}
		}
	}()
}

// Shutdown stops accepting work, cancels in-flight jobs with reason
// SHUTDOWN, and waits for workers to exit or ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutMu.Lock()
	o.shutdown = true
	o.shutMu.Unlock()

	o.mu.RLock()
	entries := make([]*jobEntry, 0, len(o.jobs))
	for _, entry := range o.jobs {
		entries = append(entries, entry)
	}
	o.mu.RUnlock()

	for _, entry := range entries {
		entry.mu.Lock()
		if !entry.job.Terminal() {
			entry.job.FailReason = ReasonShutdown
		}
		entry.mu.Unlock()
		entry.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return types.NewAppError(types.ErrTimeout, "shutdown timed out waiting for workers", ctx.Err())
	}
}

// validLanguageCode accepts two-letter lowercase ISO 639-1 codes.
func validLanguageCode(code string) bool {
	if len(code) != 2 || code != strings.ToLower(code) {
		return false
	}
	base, err := language.ParseBase(code)
	if err != nil {
		return false
	}
	return base.String() == code
}

// errIsCancelled reports whether err stems from job cancellation.
func errIsCancelled(err error) bool {
	return types.CodeOf(err) == types.ErrCancelled || errors.Is(err, context.Canceled)
}
