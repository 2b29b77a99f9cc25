// Package config provides environment-based configuration for the PDF
// translation pipeline. Every key has a documented default; Load never fails
// on a missing variable, only Validate rejects unusable combinations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvOCREndpoint          = "OCR_ENDPOINT"
	EnvOCRToken             = "OCR_TOKEN"
	EnvOCRTimeoutSec        = "OCR_TIMEOUT_SEC"
	EnvOCRMaxRetries        = "OCR_MAX_RETRIES"
	EnvTranslationEndpoint  = "TRANSLATION_ENDPOINT"
	EnvTranslationAPIKey    = "TRANSLATION_API_KEY"
	EnvTranslationModel     = "TRANSLATION_MODEL"
	EnvTranslationConc      = "TRANSLATION_CONCURRENCY"
	EnvTranslationRateLimit = "TRANSLATION_RATE_LIMIT_RPS"
	EnvPDFDPI               = "PDF_DPI"
	EnvMaxFileSizeMB        = "MAX_FILE_SIZE_MB"
	EnvJobRetentionHours    = "JOB_RETENTION_HOURS"
	EnvSessionExpiryHours   = "SESSION_EXPIRY_HOURS"
	EnvUserChoiceDBPath     = "USER_CHOICE_DB_PATH"
	EnvFontScaleMin         = "LAYOUT_FONT_SCALE_MIN"
	EnvFontScaleMax         = "LAYOUT_FONT_SCALE_MAX"
	EnvMaxBBoxExpansion     = "LAYOUT_MAX_BBOX_EXPANSION"
	EnvAvgCharWidthEm       = "AVERAGE_CHAR_WIDTH_EM"
	EnvLineHeightFactor     = "LINE_HEIGHT_FACTOR"
	EnvWorkDir              = "WORK_DIR"
	EnvTerminologyPath      = "TERMINOLOGY_PATH"
)

// Defaults.
const (
	DefaultOCRTimeout         = 300 * time.Second
	DefaultOCRMaxRetries      = 3
	DefaultTranslationConc    = 8
	DefaultTranslationModel   = "gpt-4o-mini"
	DefaultDPI                = 300
	MinDPI                    = 72
	MaxDPI                    = 600
	DefaultMaxFileSizeMB      = 50
	DefaultJobRetentionHours  = 24
	DefaultSessionExpiryHours = 24
	DefaultFontScaleMin       = 0.6
	DefaultFontScaleMax       = 1.2
	DefaultMaxBBoxExpansion   = 0.30
	DefaultAvgCharWidthEm     = 0.5
	DefaultLineHeightFactor   = 1.2
)

// Config holds the full runtime configuration.
type Config struct {
	OCREndpoint   string
	OCRToken      string
	OCRTimeout    time.Duration
	OCRMaxRetries int

	TranslationEndpoint    string
	TranslationAPIKey      string
	TranslationModel       string
	TranslationConcurrency int
	TranslationRateRPS     float64

	DPI           int
	MaxFileSizeMB int

	JobRetentionHours  int
	SessionExpiryHours int
	UserChoiceDBPath   string

	FontScaleMin     float64
	FontScaleMax     float64
	MaxBBoxExpansion float64
	AvgCharWidthEm   float64
	LineHeightFactor float64

	WorkDir         string
	TerminologyPath string
}

// Load reads the configuration from the environment, applying defaults for
// unset or malformed values.
func Load() *Config {
	cfg := &Config{
		OCREndpoint:            os.Getenv(EnvOCREndpoint),
		OCRToken:               os.Getenv(EnvOCRToken),
		OCRTimeout:             time.Duration(envInt(EnvOCRTimeoutSec, 300)) * time.Second,
		OCRMaxRetries:          envInt(EnvOCRMaxRetries, DefaultOCRMaxRetries),
		TranslationEndpoint:    os.Getenv(EnvTranslationEndpoint),
		TranslationAPIKey:      os.Getenv(EnvTranslationAPIKey),
		TranslationModel:       envString(EnvTranslationModel, DefaultTranslationModel),
		TranslationConcurrency: envInt(EnvTranslationConc, DefaultTranslationConc),
		TranslationRateRPS:     envFloat(EnvTranslationRateLimit, 0),
		DPI:                    envInt(EnvPDFDPI, DefaultDPI),
		MaxFileSizeMB:          envInt(EnvMaxFileSizeMB, DefaultMaxFileSizeMB),
		JobRetentionHours:      envInt(EnvJobRetentionHours, DefaultJobRetentionHours),
		SessionExpiryHours:     envInt(EnvSessionExpiryHours, DefaultSessionExpiryHours),
		UserChoiceDBPath:       envString(EnvUserChoiceDBPath, "user_choices.db"),
		FontScaleMin:           envFloat(EnvFontScaleMin, DefaultFontScaleMin),
		FontScaleMax:           envFloat(EnvFontScaleMax, DefaultFontScaleMax),
		MaxBBoxExpansion:       envFloat(EnvMaxBBoxExpansion, DefaultMaxBBoxExpansion),
		AvgCharWidthEm:         envFloat(EnvAvgCharWidthEm, DefaultAvgCharWidthEm),
		LineHeightFactor:       envFloat(EnvLineHeightFactor, DefaultLineHeightFactor),
		WorkDir:                envString(EnvWorkDir, os.TempDir()),
		TerminologyPath:        os.Getenv(EnvTerminologyPath),
	}
	return cfg
}

// Validate checks that the loaded configuration is internally consistent.
func (c *Config) Validate() error {
	if c.DPI < MinDPI || c.DPI > MaxDPI {
		return fmt.Errorf("PDF_DPI %d out of supported range [%d, %d]", c.DPI, MinDPI, MaxDPI)
	}
	if c.FontScaleMin <= 0 || c.FontScaleMax < c.FontScaleMin {
		return fmt.Errorf("font scale bounds invalid: min=%.2f max=%.2f", c.FontScaleMin, c.FontScaleMax)
	}
	if c.MaxBBoxExpansion < 0 {
		return fmt.Errorf("LAYOUT_MAX_BBOX_EXPANSION must be non-negative, got %.2f", c.MaxBBoxExpansion)
	}
	if c.LineHeightFactor <= 0 {
		return fmt.Errorf("LINE_HEIGHT_FACTOR must be positive, got %.2f", c.LineHeightFactor)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", c.MaxFileSizeMB)
	}
	if c.TranslationConcurrency <= 0 {
		return fmt.Errorf("TRANSLATION_CONCURRENCY must be positive, got %d", c.TranslationConcurrency)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
