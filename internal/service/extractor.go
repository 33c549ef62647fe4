package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cbc-analysis-server/internal/domain"
)

// Extractor turns report text into a FeatureRecord using one of the supported layouts.
// It is stateless across calls and safe for concurrent use.
type Extractor struct {
	defaultLayout domain.Layout
	table         *tableLayout
}

// NewExtractor creates an extractor from configuration. Empty markers fall back to
// "COMPLETE BLOOD COUNT" and "RESULT"; an unknown layout falls back to the header/value-line layout.
func NewExtractor(cfg domain.ExtractorConfig) *Extractor {
	layout, err := domain.ParseLayout(cfg.Layout)
	if err != nil {
		layout = domain.LayoutHeaderValueLine
	}
	section := cfg.SectionMarker
	if section == "" {
		section = "COMPLETE BLOOD COUNT"
	}
	header := cfg.TableHeaderMarker
	if header == "" {
		header = "RESULT"
	}
	return &Extractor{
		defaultLayout: layout,
		table:         newTableLayout(section, header),
	}
}

// DefaultLayout returns the layout used when a caller does not choose one.
func (e *Extractor) DefaultLayout() domain.Layout {
	return e.defaultLayout
}

// Extract parses pre-split lines. An empty layout selects the configured default.
func (e *Extractor) Extract(lines []string, layout domain.Layout) (domain.FeatureRecord, error) {
	if layout == "" {
		layout = e.defaultLayout
	}
	switch layout {
	case domain.LayoutHeaderValueLine:
		return extractHeaderValueLine(lines)
	case domain.LayoutLabeledTable:
		return e.table.extract(lines)
	default:
		return domain.FeatureRecord{}, domain.NewValidationError("layout", "unsupported report layout", string(layout))
	}
}

// ExtractText splits text into lines and parses it.
func (e *Extractor) ExtractText(text string, layout domain.Layout) (domain.FeatureRecord, error) {
	return e.Extract(SplitLines(text), layout)
}

// SplitLines splits on \n and \r\n and trims surrounding whitespace. Blank lines are kept.
func SplitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// thousandsPattern matches comma-grouped integers in western ("12,500") or Indian ("2,50,000")
// grouping, with an optional fraction. The last group always has three digits.
var thousandsPattern = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d{1,2}(?:,\d{2})+,\d{3})(?:\.\d+)?$`)

// sexParser normalises a layout's raw sex token.
type sexParser func(string) (domain.SexValue, bool)

// buildRecord validates raw per-feature text in canonical order. The first failing feature is
// the one reported, whether it is absent or unparseable.
func buildRecord(raw map[domain.Feature]string, parseSex sexParser) (domain.FeatureRecord, error) {
	values := make(map[domain.Feature]float64, len(domain.CanonicalFeatures))
	var sex domain.SexValue

	for _, f := range domain.CanonicalFeatures {
		text, ok := raw[f]
		if !ok {
			return domain.FeatureRecord{}, domain.NewMissingFeatureError(f)
		}
		if f == domain.Sex {
			s, ok := parseSex(text)
			if !ok {
				return domain.FeatureRecord{}, domain.NewInvalidValueError(f, text)
			}
			sex = s
			continue
		}
		v, err := parseNumber(text)
		if err != nil {
			return domain.FeatureRecord{}, domain.NewInvalidValueError(f, text)
		}
		values[f] = v
	}

	return domain.NewFeatureRecord(values, sex)
}

// parseNumber parses a finite decimal. Commas are accepted only as thousands separators; a
// decimal comma such as "12,5" is rejected rather than read as 125.
func parseNumber(text string) (float64, error) {
	cleaned := strings.TrimSpace(text)
	if strings.Contains(cleaned, ",") {
		if !thousandsPattern.MatchString(cleaned) {
			return 0, strconv.ErrSyntax
		}
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}
