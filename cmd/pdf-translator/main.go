package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pdf-translator/internal/choices"
	"pdf-translator/internal/config"
	"pdf-translator/internal/job"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/neologism"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/translate"
)

const pollInterval = 500 * time.Millisecond

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: pdf-translator <input.pdf> <source_lang> <target_lang>")
		fmt.Println("Example: pdf-translator heidegger.pdf de en")
		os.Exit(1)
	}
	inputPDF, sourceLang, targetLang := os.Args[1], os.Args[2], os.Args[3]

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.TranslationAPIKey == "" {
		fmt.Println("Error: translation API key not configured")
		fmt.Printf("Set the %s environment variable\n", config.EnvTranslationAPIKey)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFilePath = filepath.Join(cfg.WorkDir, "pdf-translator.log")
	if err := logger.Init(logCfg); err != nil {
		fmt.Printf("Error: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, inputPDF, sourceLang, targetLang); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, inputPDF, sourceLang, targetLang string) error {
	store, err := choices.Open(cfg.UserChoiceDBPath)
	if err != nil {
		return fmt.Errorf("opening choice store: %w", err)
	}
	defer store.Close()
	store.StartExpirySweeper(ctx)

	var tagger neologism.Tagger
	if cfg.TerminologyPath != "" {
		terms, err := neologism.LoadTerminology(cfg.TerminologyPath)
		if err != nil {
			return fmt.Errorf("loading terminology: %w", err)
		}
		if err := neologism.SeedGlobalChoices(store, terms, sourceLang, targetLang); err != nil {
			return fmt.Errorf("seeding terminology choices: %w", err)
		}
		tagger = neologism.NewHeuristicTagger(terms, "philosophy")
		fmt.Printf("Terms:  %d loaded from %s\n", len(terms), cfg.TerminologyPath)
	}

	sess, err := store.CreateSession(choices.CreateSessionParams{
		Name:           filepath.Base(inputPDF),
		DocumentID:     inputPDF,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		TTL:            time.Duration(cfg.SessionExpiryHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("creating choice session: %w", err)
	}

	client, err := translate.NewClient(ctx, translate.ClientConfig{
		APIKey:            cfg.TranslationAPIKey,
		BaseURL:           cfg.TranslationEndpoint,
		Model:             cfg.TranslationModel,
		Concurrency:       cfg.TranslationConcurrency,
		RequestsPerSecond: cfg.TranslationRateRPS,
	})
	if err != nil {
		return fmt.Errorf("creating translation client: %w", err)
	}
	defer client.Close()

	cache := translate.NewCache(filepath.Join(cfg.WorkDir, "translation_cache.json"))
	if err := cache.Load(); err != nil {
		logger.Warn("translation cache unreadable, starting empty", logger.Err(err))
	}
	defer cache.Save()

	engine := layout.NewEngine(layout.Config{
		FontScaleMin:     cfg.FontScaleMin,
		FontScaleMax:     cfg.FontScaleMax,
		MaxBBoxExpansion: cfg.MaxBBoxExpansion,
		AvgCharWidthEm:   cfg.AvgCharWidthEm,
		LineHeightFactor: cfg.LineHeightFactor,
	})

	opts := []translate.TranslatorOption{
		translate.WithCache(cache),
		translate.WithChoices(store),
	}
	if tagger != nil {
		opts = append(opts, translate.WithTagger(tagger))
	}
	translator := translate.NewTranslator(client, engine, opts...)

	rasterizer := pdf.NewRasterizer(cfg.DPI, pdf.FormatPNG)
	ocrClient := ocr.NewClient(ocr.ClientConfig{
		Endpoint:    cfg.OCREndpoint,
		Token:       cfg.OCRToken,
		Timeout:     cfg.OCRTimeout,
		MaxAttempts: cfg.OCRMaxRetries,
	})

	// Quality checks read text directly; pages that yield nothing fall back
	// to the OCR service when one is configured.
	var ocrFn pdf.OCRFunc
	if cfg.OCREndpoint != "" {
		ocrFn = job.NewOCRFallback(rasterizer, ocrClient)
	}
	extractor := pdf.NewExtractor(ocrFn)

	pipeline := job.NewPipeline(job.PipelineConfig{
		Validator:     pdf.NewValidator(cfg.MaxFileSizeMB),
		Rasterizer:    rasterizer,
		OCRClient:     ocrClient,
		Translator:    translator,
		Reconstructor: pdf.NewReconstructor(cfg.LineHeightFactor),
		Quality:       pdf.NewQualityValidator(pdf.DefaultQualityConfig(), extractor),
	})

	orch, err := job.NewOrchestrator(pipeline, job.Config{
		WorkDir:   filepath.Join(cfg.WorkDir, "jobs"),
		Retention: time.Duration(cfg.JobRetentionHours) * time.Hour,
		SessionID: sess.SessionID,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	orch.StartSweeper(ctx)

	jobID, err := orch.Submit(inputPDF, sourceLang, targetLang)
	if err != nil {
		return err
	}
	fmt.Printf("Input:  %s\n", inputPDF)
	fmt.Printf("Pair:   %s -> %s\n", sourceLang, targetLang)
	fmt.Printf("Job:    %s\n\n", jobID)

	status, err := waitForJob(ctx, orch, jobID)
	if err != nil {
		return err
	}
	if status.Status != job.StatusCompleted {
		return fmt.Errorf("job failed [%s]: %s", status.ErrorCode, status.Error)
	}

	outputPDF := translatedPath(inputPDF)
	if err := copyFile(status.OutputPath, outputPDF); err != nil {
		return fmt.Errorf("copying output: %w", err)
	}

	metrics := client.Metrics()
	fmt.Printf("\n=== Translation Complete ===\n")
	fmt.Printf("Requests:    %d\n", metrics.Requests)
	fmt.Printf("Retries:     %d\n", metrics.Retries)
	fmt.Printf("Cache hits:  %d\n", metrics.CacheHits)
	fmt.Printf("Output:      %s\n", outputPDF)

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return orch.Shutdown(shutCtx)
}

// waitForJob polls until the job reaches a terminal state, echoing progress.
func waitForJob(ctx context.Context, orch *job.Orchestrator, jobID string) (job.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		status, err := orch.Status(jobID)
		if err != nil {
			return job.Job{}, err
		}
		fmt.Printf("\r[%3d%%] %s", status.Progress, status.Status)
		if status.Terminal() {
			fmt.Println()
			return status, nil
		}
		select {
		case <-ctx.Done():
			fmt.Println()
			orch.Cancel(jobID)
			orch.Wait(jobID)
			return orch.Status(jobID)
		case <-ticker.C:
		}
	}
}

func translatedPath(inputPDF string) string {
	base := strings.TrimSuffix(inputPDF, filepath.Ext(inputPDF))
	return base + "_translated.pdf"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
