package service

import (
	"strings"
	"unicode"

	"github.com/cbc-analysis-server/internal/domain"
)

// extractHeaderValueLine handles reports with a flat header line of feature tokens followed by a
// line of values in the same column order.
func extractHeaderValueLine(lines []string) (domain.FeatureRecord, error) {
	header, data, ok := locateHeaderAndData(lines)
	if !ok {
		return domain.FeatureRecord{}, domain.NewStructureError("no header line with hematocrit and sex columns followed by a data line")
	}

	headers := strings.Fields(header)
	values := strings.Fields(data)
	if len(headers) != len(values) {
		return domain.FeatureRecord{}, domain.NewColumnMismatchError(len(headers), len(values))
	}

	// A repeated header token keeps its last column.
	tokens := make(map[string]string, len(headers))
	for i, h := range headers {
		tokens[strings.ToUpper(h)] = values[i]
	}

	return buildRecord(resolveAliases(tokens), parseColumnSex)
}

// parseColumnSex accepts the classifier's numeric encodings or a literal M or F. Spelled-out
// forms are not valid in a value column.
func parseColumnSex(raw string) (domain.SexValue, bool) {
	switch strings.TrimSpace(raw) {
	case "M", "1", "1.0":
		return domain.Male, true
	case "F", "0", "0.0":
		return domain.Female, true
	default:
		return "", false
	}
}

// locateHeaderAndData returns the first header/data pair. A header line must mention a
// hematocrit alias and SEX; the data line is the next line carrying a digit. A later header seen
// before any data line replaces the earlier one.
func locateHeaderAndData(lines []string) (string, string, bool) {
	header := ""
	for _, line := range lines {
		if isHeaderLine(line) {
			header = line
			continue
		}
		if header != "" && containsDigit(line) {
			return header, line, true
		}
	}
	return "", "", false
}

func isHeaderLine(line string) bool {
	upper := strings.ToUpper(line)
	if !strings.Contains(upper, "SEX") {
		return false
	}
	for _, alias := range domain.AliasesFor(domain.Hematocrit) {
		if strings.Contains(upper, alias) {
			return true
		}
	}
	return false
}

func containsDigit(line string) bool {
	return strings.IndexFunc(line, unicode.IsDigit) >= 0
}

// resolveAliases picks, per feature, the value of the first alias in declared order that the
// header carries. Features with no alias present are left out.
func resolveAliases(tokens map[string]string) map[domain.Feature]string {
	resolved := make(map[domain.Feature]string, len(domain.FeatureAliasTable))
	for _, row := range domain.FeatureAliasTable {
		for _, alias := range row.Aliases {
			if v, ok := tokens[alias]; ok {
				resolved[row.Feature] = v
				break
			}
		}
	}
	return resolved
}
