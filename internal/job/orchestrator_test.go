package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/types"
)

// stubPipeline succeeds at every stage unless a hook says otherwise.
type stubPipeline struct {
	onValidate    func(ctx context.Context) error
	onRasterize   func(ctx context.Context) error
	onRecognize   func(ctx context.Context) error
	onTranslate   func(ctx context.Context) error
	onReconstruct func(ctx context.Context) error
	onVerify      func(ctx context.Context) error
}

func runHook(ctx context.Context, hook func(ctx context.Context) error) error {
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

func (s *stubPipeline) Validate(ctx context.Context, sourcePath string) error {
	return runHook(ctx, s.onValidate)
}

func (s *stubPipeline) Rasterize(ctx context.Context, sourcePath, workDir string) ([]string, error) {
	if err := runHook(ctx, s.onRasterize); err != nil {
		return nil, err
	}
	return []string{filepath.Join(workDir, "page_0001.png")}, nil
}

func (s *stubPipeline) Recognize(ctx context.Context, imagePaths []string) ([]ocr.PageBlocks, error) {
	if err := runHook(ctx, s.onRecognize); err != nil {
		return nil, err
	}
	return []ocr.PageBlocks{{Width: 612, Height: 792}}, nil
}

func (s *stubPipeline) Translate(ctx context.Context, pages []ocr.PageBlocks, sourceLang, targetLang, sessionID, documentID string) (*layout.TranslatedLayout, error) {
	if err := runHook(ctx, s.onTranslate); err != nil {
		return nil, err
	}
	return &layout.TranslatedLayout{Pages: []layout.TranslatedPage{{PageNumber: 1, Width: 612, Height: 792}}}, nil
}

func (s *stubPipeline) Reconstruct(ctx context.Context, doc *layout.TranslatedLayout, outPath string) (*pdf.BuildReport, error) {
	if err := runHook(ctx, s.onReconstruct); err != nil {
		return nil, err
	}
	return &pdf.BuildReport{Elements: 1}, nil
}

func (s *stubPipeline) Verify(ctx context.Context, sourcePath, outPath string, original []ocr.PageBlocks, doc *layout.TranslatedLayout) (*pdf.ReconstructionReport, error) {
	if err := runHook(ctx, s.onVerify); err != nil {
		return nil, err
	}
	return &pdf.ReconstructionReport{Pass: true}, nil
}

func newTestOrchestrator(t *testing.T, p Pipeline) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(p, Config{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return o
}

func TestSubmitHappyPath(t *testing.T) {
	o := newTestOrchestrator(t, &stubPipeline{})

	id, err := o.Submit("/tmp/in.pdf", "de", "en")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := o.Wait(id); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	job, err := o.Status(id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}

	out, err := o.Result(id)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if filepath.Base(out) != "translated.pdf" {
		t.Errorf("unexpected output path %q", out)
	}
	if !strings.HasPrefix(out, o.workDir) {
		t.Errorf("output %q not under work dir %q", out, o.workDir)
	}
}

func TestSubmitRejectsBadLanguageCodes(t *testing.T) {
	o := newTestOrchestrator(t, &stubPipeline{})
	tests := []struct {
		name     string
		src, tgt string
	}{
		{"uppercase", "DE", "en"},
		{"three letters", "deu", "en"},
		{"one letter", "d", "en"},
		{"empty target", "de", ""},
		{"digits", "de", "12"},
		{"identical pair", "de", "de"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Submit("/tmp/in.pdf", tc.src, tc.tgt)
			if types.CodeOf(err) != types.ErrInvalidInput {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestStageFailureMarksJobFailed(t *testing.T) {
	p := &stubPipeline{
		onRecognize: func(ctx context.Context) error {
			return types.NewAppError(types.ErrServiceUnavail, "ocr backend down", nil)
		},
	}
	o := newTestOrchestrator(t, p)

	id, _ := o.Submit("/tmp/in.pdf", "de", "en")
	o.Wait(id)

	job, _ := o.Status(id)
	if job.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.ErrorCode != types.ErrServiceUnavail {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %s", job.ErrorCode)
	}
	if job.Progress != progressRasterized {
		t.Errorf("progress must stop at the last finished stage, got %d", job.Progress)
	}
	if _, err := o.Result(id); types.CodeOf(err) != types.ErrServiceUnavail {
		t.Errorf("Result must surface the failure code, got %v", err)
	}
}

func TestCancelMidStage(t *testing.T) {
	started := make(chan struct{})
	p := &stubPipeline{
		onTranslate: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := newTestOrchestrator(t, p)

	id, _ := o.Submit("/tmp/in.pdf", "de", "en")
	<-started
	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	o.Wait(id)

	job, _ := o.Status(id)
	if job.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.ErrorCode != types.ErrCancelled {
		t.Errorf("expected CANCELLED code, got %s", job.ErrorCode)
	}
	if job.FailReason != ReasonCancelled {
		t.Errorf("expected reason %s, got %q", ReasonCancelled, job.FailReason)
	}

	// A finished job can no longer be cancelled.
	if err := o.Cancel(id); types.CodeOf(err) != types.ErrInvalidInput {
		t.Errorf("cancelling a finished job must be INVALID_INPUT, got %v", err)
	}
}

func TestResultBeforeCompletion(t *testing.T) {
	started := make(chan struct{})
	p := &stubPipeline{
		onValidate: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := newTestOrchestrator(t, p)

	id, _ := o.Submit("/tmp/in.pdf", "de", "en")
	<-started
	if _, err := o.Result(id); types.CodeOf(err) != types.ErrInvalidInput {
		t.Errorf("in-flight Result must be INVALID_INPUT, got %v", err)
	}
	o.Cancel(id)
	o.Wait(id)
}

func TestStatusUnknownJob(t *testing.T) {
	o := newTestOrchestrator(t, &stubPipeline{})
	if _, err := o.Status("nope"); types.CodeOf(err) != types.ErrNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSweepPurgesExpiredJobs(t *testing.T) {
	o := newTestOrchestrator(t, &stubPipeline{})

	id, _ := o.Submit("/tmp/in.pdf", "de", "en")
	o.Wait(id)

	jobDir := filepath.Join(o.workDir, id)
	if _, err := os.Stat(jobDir); err != nil {
		t.Fatalf("work dir missing before sweep: %v", err)
	}

	// Fresh terminal jobs survive the sweep.
	if n := o.Sweep(); n != 0 {
		t.Fatalf("fresh job must not be purged, got %d", n)
	}

	o.now = func() time.Time { return time.Now().Add(DefaultRetention + time.Hour) }
	if n := o.Sweep(); n != 1 {
		t.Fatalf("expected 1 purged job, got %d", n)
	}
	if _, err := o.Status(id); types.CodeOf(err) != types.ErrNotFound {
		t.Errorf("purged job must be NOT_FOUND, got %v", err)
	}
	if _, err := os.Stat(jobDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("work dir must be removed, got %v", err)
	}
}

func TestShutdownFailsInFlightJobs(t *testing.T) {
	started := make(chan struct{})
	p := &stubPipeline{
		onRecognize: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := newTestOrchestrator(t, p)

	id, _ := o.Submit("/tmp/in.pdf", "de", "en")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	job, _ := o.Status(id)
	if job.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.FailReason != ReasonShutdown {
		t.Errorf("expected reason %s, got %q", ReasonShutdown, job.FailReason)
	}

	if _, err := o.Submit("/tmp/in.pdf", "de", "en"); types.CodeOf(err) != types.ErrServiceUnavail {
		t.Errorf("submit after shutdown must be SERVICE_UNAVAILABLE, got %v", err)
	}
}
