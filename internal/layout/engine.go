package layout

import (
	"math"
	"strings"
)

// StrategyType identifies how translated text is fitted into the original
// bounding box.
type StrategyType string

const (
	StrategyNone      StrategyType = "NONE"
	StrategyFontScale StrategyType = "FONT_SCALE"
	StrategyTextWrap  StrategyType = "TEXT_WRAP"
	StrategyHybrid    StrategyType = "HYBRID"
)

// Strategy is the decision of how to fit a translation.
//
// Invariants: NONE implies FontScale==1 and WrapLines==1; FONT_SCALE implies
// WrapLines==1 and FontScale within the configured bounds; TEXT_WRAP implies
// FontScale==1 and WrapLines>=2 (except the truncating fallback, where
// WrapLines==MaxLines); HYBRID implies FontScale<1 and WrapLines>=2.
type Strategy struct {
	Type      StrategyType `json:"type"`
	FontScale float64      `json:"font_scale"`
	WrapLines int          `json:"wrap_lines"`
}

// FitAnalysis holds the deterministic fit metrics derived from the source
// length, translated length, bounding box, and font.
type FitAnalysis struct {
	LengthRatio               float64 `json:"length_ratio"`
	OneLineWidth              float64 `json:"one_line_width"`
	MaxLines                  int     `json:"max_lines"`
	LinesNeeded               int     `json:"lines_needed"`
	CanFitWithoutChanges      bool    `json:"can_fit_without_changes"`
	RequiredScaleForSingle    float64 `json:"required_scale_for_single_line"`
	CanScaleToSingleLine      bool    `json:"can_scale_to_single_line"`
	CanWrapWithinHeight       bool    `json:"can_wrap_within_height"`
	bbox                      BoundingBox
	font                      FontInfo
}

// Config holds the numeric constants of the engine. All values are part of
// the contract and directly testable.
type Config struct {
	FontScaleMin     float64
	FontScaleMax     float64
	MaxBBoxExpansion float64
	AvgCharWidthEm   float64
	LineHeightFactor float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		FontScaleMin:     0.6,
		FontScaleMax:     1.2,
		MaxBBoxExpansion: 0.30,
		AvgCharWidthEm:   0.5,
		LineHeightFactor: 1.2,
	}
}

// Engine decides layout strategies and applies text/font/bbox adjustments.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Zero or inverted config values fall back to
// the defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.FontScaleMin <= 0 {
		cfg.FontScaleMin = def.FontScaleMin
	}
	if cfg.FontScaleMax < cfg.FontScaleMin {
		cfg.FontScaleMax = def.FontScaleMax
	}
	if cfg.MaxBBoxExpansion < 0 {
		cfg.MaxBBoxExpansion = def.MaxBBoxExpansion
	}
	if cfg.AvgCharWidthEm <= 0 {
		cfg.AvgCharWidthEm = def.AvgCharWidthEm
	}
	if cfg.LineHeightFactor <= 0 {
		cfg.LineHeightFactor = def.LineHeightFactor
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// AnalyzeFit computes the fit metrics for a translation of tgtLen characters
// replacing a source of srcLen characters inside bbox at the given font.
func (e *Engine) AnalyzeFit(srcLen, tgtLen int, bbox BoundingBox, font FontInfo) FitAnalysis {
	avgCharW := font.Size * e.cfg.AvgCharWidthEm
	oneLineWidth := float64(maxInt(tgtLen, 1)) * avgCharW
	lineHeight := font.Size * e.cfg.LineHeightFactor

	maxLines := int(math.Floor(bbox.Height / lineHeight))
	if maxLines < 1 {
		maxLines = 1
	}
	linesNeeded := int(math.Ceil(oneLineWidth / bbox.Width))
	if linesNeeded < 1 {
		linesNeeded = 1
	}

	requiredScale := bbox.Width / oneLineWidth

	return FitAnalysis{
		LengthRatio:            float64(tgtLen) / float64(maxInt(srcLen, 1)),
		OneLineWidth:           oneLineWidth,
		MaxLines:               maxLines,
		LinesNeeded:            linesNeeded,
		CanFitWithoutChanges:   oneLineWidth <= bbox.Width,
		RequiredScaleForSingle: requiredScale,
		CanScaleToSingleLine:   requiredScale >= e.cfg.FontScaleMin && requiredScale <= e.cfg.FontScaleMax,
		CanWrapWithinHeight:    linesNeeded <= maxLines,
		bbox:                   bbox,
		font:                   font,
	}
}

// DecideStrategy picks a strategy for the given fit analysis in priority
// order: unchanged, font scale, wrap, hybrid, and finally a truncating wrap.
func (e *Engine) DecideStrategy(fit FitAnalysis) Strategy {
	if fit.CanFitWithoutChanges {
		return Strategy{Type: StrategyNone, FontScale: 1.0, WrapLines: 1}
	}

	if fit.CanScaleToSingleLine {
		scale := clamp(fit.RequiredScaleForSingle, e.cfg.FontScaleMin, e.cfg.FontScaleMax)
		return Strategy{Type: StrategyFontScale, FontScale: scale, WrapLines: 1}
	}

	if fit.CanWrapWithinHeight {
		return Strategy{Type: StrategyTextWrap, FontScale: 1.0, WrapLines: fit.LinesNeeded}
	}

	// Hybrid: find the largest scale >= FontScaleMin whose wrapped line count
	// fits the vertically expanded box.
	allowedLines := int(math.Floor(float64(fit.MaxLines) * (1 + e.cfg.MaxBBoxExpansion)))
	if allowedLines < 1 {
		allowedLines = 1
	}
	for scale := 0.95; scale >= e.cfg.FontScaleMin-1e-9; scale -= 0.05 {
		lines := int(math.Ceil(fit.OneLineWidth * scale / fit.bbox.Width))
		if lines < 1 {
			lines = 1
		}
		if lines >= 2 && lines <= allowedLines {
			return Strategy{Type: StrategyHybrid, FontScale: scale, WrapLines: lines}
		}
	}

	// No workable scale: wrap at the box's line capacity and accept
	// truncation. The overflow is surfaced by Apply.
	return Strategy{Type: StrategyTextWrap, FontScale: 1.0, WrapLines: fit.MaxLines}
}

// ApplyResult reports side effects of fitting text into its box.
type ApplyResult struct {
	Text      string
	Font      FontInfo
	BBox      BoundingBox
	Overflow  bool // an oversize word exceeded the line width horizontally
	Truncated bool // lines beyond the expanded box height were dropped
}

// Apply adjusts text, font, and bounding box per the chosen strategy.
// The box width never changes; height may grow up to MaxBBoxExpansion when
// wrapping needs it, after which text is truncated.
func (e *Engine) Apply(text string, bbox BoundingBox, font FontInfo, strategy Strategy) ApplyResult {
	if strategy.Type == StrategyNone {
		return ApplyResult{Text: text, Font: font, BBox: bbox}
	}

	adjFont := font
	adjFont.Size = font.Size * strategy.FontScale
	adjBBox := bbox

	if strategy.Type == StrategyFontScale {
		return ApplyResult{Text: text, Font: adjFont, BBox: adjBBox}
	}

	// Wrapping paths (TEXT_WRAP, HYBRID).
	lines, overflow := e.wrapText(text, adjBBox.Width, adjFont)

	lineHeight := adjFont.Size * e.cfg.LineHeightFactor
	maxLines := int(math.Floor(bbox.Height / lineHeight))
	if maxLines < 1 {
		maxLines = 1
	}

	truncated := false
	if len(lines) > maxLines {
		// Expand the box vertically before giving up.
		neededHeight := float64(len(lines)) * lineHeight
		maxHeight := bbox.Height * (1 + e.cfg.MaxBBoxExpansion)
		if neededHeight <= maxHeight {
			adjBBox.Height = neededHeight
		} else {
			adjBBox.Height = maxHeight
			fit := int(math.Floor(maxHeight / lineHeight))
			if fit < 1 {
				fit = 1
			}
			lines = lines[:fit]
			truncated = true
		}
	}

	return ApplyResult{
		Text:      strings.Join(lines, "\n"),
		Font:      adjFont,
		BBox:      adjBBox,
		Overflow:  overflow,
		Truncated: truncated,
	}
}

// wrapText greedily wraps text on whitespace so each line fits width at the
// given font. A word wider than the line gets its own line and overflows
// horizontally; that is the accepted failure mode and is reported.
func (e *Engine) wrapText(text string, width float64, font FontInfo) ([]string, bool) {
	avgCharW := font.Size * e.cfg.AvgCharWidthEm
	if avgCharW <= 0 {
		return []string{text}, false
	}
	maxChars := int(math.Floor(width / avgCharW))
	if maxChars < 1 {
		maxChars = 1
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}, false
	}

	var lines []string
	overflow := false
	current := ""
	for _, word := range words {
		if len([]rune(word)) > maxChars {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, word)
			overflow = true
			continue
		}
		if current == "" {
			current = word
		} else if len([]rune(current))+1+len([]rune(word)) <= maxChars {
			current += " " + word
		} else {
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines, overflow
}

// QualityScore scores in [0,1] how closely a strategy preserves the original
// appearance: penalties for font scaling and wrapping, a small bonus for an
// unchanged layout.
func (e *Engine) QualityScore(fit FitAnalysis, strategy Strategy) float64 {
	score := 1.0
	score -= 0.35 * math.Abs(1-strategy.FontScale)
	score -= 0.25 * math.Max(0, float64(strategy.WrapLines-1)/float64(maxInt(fit.MaxLines, 1)))
	if strategy.Type == StrategyNone {
		score += 0.05
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
