package service

import (
	"regexp"
	"strings"

	"github.com/cbc-analysis-server/internal/domain"
)

// tableLabels lists the surface labels of labelled CBC tables, per feature, in declared order.
// Age and sex come from the patient-info header instead.
var tableLabels = []domain.FeatureAliases{
	{Feature: domain.Hematocrit, Aliases: []string{"HEMATOCRIT", "HAEMATOCRIT", "HCT", "PCV", "PACKED CELL VOLUME"}},
	{Feature: domain.Hemoglobin, Aliases: []string{"HEMOGLOBIN", "HAEMOGLOBIN", "HGB", "HB"}},
	{Feature: domain.Erythrocyte, Aliases: []string{"ERYTHROCYTE", "RBC", "RBC COUNT", "TOTAL RBC COUNT", "RED BLOOD CELL", "RED BLOOD CELL COUNT"}},
	{Feature: domain.Leucocyte, Aliases: []string{"LEUCOCYTE", "LEUKOCYTE", "WBC", "TLC", "TOTAL WBC COUNT", "TOTAL LEUCOCYTE COUNT", "WHITE BLOOD CELL", "WHITE BLOOD CELL COUNT"}},
	{Feature: domain.Thrombocyte, Aliases: []string{"THROMBOCYTE", "PLT", "PLATELET", "PLATELET COUNT"}},
	{Feature: domain.MCH, Aliases: []string{"MCH", "MEAN CORPUSCULAR HEMOGLOBIN", "MEAN CELL HEMOGLOBIN"}},
	{Feature: domain.MCHC, Aliases: []string{"MCHC", "MEAN CORPUSCULAR HEMOGLOBIN CONCENTRATION", "MEAN CELL HEMOGLOBIN CONCENTRATION"}},
	{Feature: domain.MCV, Aliases: []string{"MCV", "MEAN CORPUSCULAR VOLUME", "MEAN CELL VOLUME"}},
}

var (
	leadingNumberPattern = regexp.MustCompile(`^\s*(?:\([^)]*\)\s*|[:=]\s*)*(\d[\d,]*(?:\.\d+)?)`)
	ageFieldPattern      = regexp.MustCompile(`(?i)\bAge\s*:\s*(\d+(?:\.\d+)?)`)
	sexFieldPattern      = regexp.MustCompile(`(?i)\b(?:Sex|Gender)\s*:\s*([A-Za-z]+)`)
)

type labelPattern struct {
	feature domain.Feature
	label   string
	re      *regexp.Regexp
}

// tableLayout handles labelled CBC tables found under a panel heading.
type tableLayout struct {
	sectionMarker string
	headerMarker  string
	labels        []labelPattern
}

func newTableLayout(sectionMarker, headerMarker string) *tableLayout {
	t := &tableLayout{
		sectionMarker: strings.ToUpper(sectionMarker),
		headerMarker:  strings.ToUpper(headerMarker),
	}
	for _, row := range tableLabels {
		for _, label := range row.Aliases {
			words := strings.Fields(label)
			for i, w := range words {
				words[i] = regexp.QuoteMeta(w)
			}
			t.labels = append(t.labels, labelPattern{
				feature: row.Feature,
				label:   label,
				re:      regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`),
			})
		}
	}
	return t
}

func (t *tableLayout) extract(lines []string) (domain.FeatureRecord, error) {
	start, ok := t.locateTable(lines)
	if !ok {
		return domain.FeatureRecord{}, domain.NewStructureError("no " + strings.ToLower(t.sectionMarker) + " table found")
	}

	raw := make(map[domain.Feature]string, len(domain.CanonicalFeatures))
	for i := start; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		match, end, found := t.claim(line, raw)
		if !found {
			continue
		}
		// The value must lead the rest of the line, past any bracketed unit or separator, so
		// digits inside "(10^3/uL)" are never taken for the reading.
		if m := leadingNumberPattern.FindStringSubmatch(line[end:]); m != nil {
			raw[match] = m[1]
			continue
		}
		if num, ok := nextNumericLine(lines, i+1); ok {
			raw[match] = num
		}
	}

	text := strings.Join(lines, "\n")
	if m := ageFieldPattern.FindStringSubmatch(text); m != nil {
		raw[domain.Age] = m[1]
	}
	if m := sexFieldPattern.FindStringSubmatch(text); m != nil {
		raw[domain.Sex] = m[1]
	}

	return buildRecord(raw, domain.ParseSex)
}

// locateTable returns the index of the first line after the table-header marker that follows
// the section marker.
func (t *tableLayout) locateTable(lines []string) (int, bool) {
	section := -1
	for i, line := range lines {
		if strings.Contains(strings.ToUpper(line), t.sectionMarker) {
			section = i
			break
		}
	}
	if section < 0 {
		return 0, false
	}
	for i := section + 1; i < len(lines); i++ {
		if strings.Contains(strings.ToUpper(lines[i]), t.headerMarker) {
			return i + 1, true
		}
	}
	return 0, false
}

// claim finds the not-yet-recorded feature whose label matches the line. When several match, the
// longest label wins, so "MEAN CORPUSCULAR HEMOGLOBIN CONCENTRATION" is MCHC rather than
// hemoglobin. It returns the byte offset just past the winning label.
func (t *tableLayout) claim(line string, recorded map[domain.Feature]string) (domain.Feature, int, bool) {
	var (
		best    domain.Feature
		bestLen int
		bestEnd int
	)
	for _, lp := range t.labels {
		if _, done := recorded[lp.feature]; done {
			continue
		}
		loc := lp.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if n := loc[1] - loc[0]; n > bestLen {
			best, bestLen, bestEnd = lp.feature, n, loc[1]
		}
	}
	return best, bestEnd, bestLen > 0
}

// nextNumericLine scans forward for the first line that is wholly a number.
func nextNumericLine(lines []string, from int) (string, bool) {
	for j := from; j < len(lines); j++ {
		candidate := strings.TrimSpace(lines[j])
		if candidate == "" {
			continue
		}
		if _, err := parseNumber(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}
