package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-analysis-server/internal/domain"
)

const headerValueReport = `City Diagnostics Lab
Patient: J. Doe

HEMATOCRIT HEMOGLOBIN ERYTHROCYTE LEUCOCYTE THROMBOCYTE MCH MCHC MCV AGE SEX
30.5 10.2 3.9 8.1 210 26.0 33.4 70.0 40 M
`

const labeledTableReport = `SUNRISE PATHOLOGY
Name: Jane Roe      Age: 67 Years
Sex: Female         Ref: Self

COMPLETE BLOOD COUNT (CBC)
Test                       Result    Unit        Reference
Hemoglobin (Hb)            11.2      g/dL        12.0 - 15.0
Total RBC count            4.1       mill/cumm   4.5 - 5.5
Packed Cell Volume (PCV)   34.0      %           40 - 50
Mean Corpuscular Volume (MCV)
78.5
Mean Corpuscular Hemoglobin Concentration (MCHC)   31.2   g/dL
MCH                        27.3      pg          27 - 32
Total WBC count            12,500    cumm        4000 - 11000
Platelet Count             2,50,000  cumm        150000 - 410000
`

func newTestExtractor() *Extractor {
	return NewExtractor(domain.ExtractorConfig{})
}

func TestExtractor_HeaderValueLine(t *testing.T) {
	rec, err := newTestExtractor().ExtractText(headerValueReport, domain.LayoutHeaderValueLine)
	require.NoError(t, err)

	assert.Equal(t, domain.FeatureRecord{
		Hematocrit:  30.5,
		Hemoglobin:  10.2,
		Erythrocyte: 3.9,
		Leucocyte:   8.1,
		Thrombocyte: 210,
		MCH:         26.0,
		MCHC:        33.4,
		MCV:         70.0,
		Age:         40,
		Sex:         domain.Male,
	}, rec)
}

func TestExtractor_HeaderValueLine_Errors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		sentinel error
		feature  domain.Feature
	}{
		{
			name:     "no header",
			text:     "HGB 11\nHCT 30\n",
			sentinel: domain.ErrStructureNotFound,
		},
		{
			name:     "header without data line",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\nno values here\n",
			sentinel: domain.ErrStructureNotFound,
		},
		{
			name:     "column mismatch",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 10 4 8 200 27 33 80 40\n",
			sentinel: domain.ErrColumnMismatch,
		},
		{
			name:     "missing feature reported in canonical order",
			text:     "HGB HCT MCV SEX AGE\n11 30 75 M 70\n",
			sentinel: domain.ErrMissingFeature,
			feature:  domain.Erythrocyte,
		},
		{
			name:     "non numeric value",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 low 4 8 200 27 33 80 40 M\n",
			sentinel: domain.ErrInvalidValue,
			feature:  domain.Hemoglobin,
		},
		{
			name:     "unrecognised sex",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 10 4 8 200 27 33 80 40 X\n",
			sentinel: domain.ErrInvalidValue,
			feature:  domain.Sex,
		},
		{
			name:     "non finite value",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 10 4 8 200 27 33 NaN 40 M\n",
			sentinel: domain.ErrInvalidValue,
			feature:  domain.MCV,
		},
		{
			name:     "decimal comma is invalid",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 12,5 4 8 200 27 33 80 40 M\n",
			sentinel: domain.ErrInvalidValue,
			feature:  domain.Hemoglobin,
		},
		{
			name:     "spelled out sex is invalid",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 10 4 8 200 27 33 80 40 male\n",
			sentinel: domain.ErrInvalidValue,
			feature:  domain.Sex,
		},
		{
			name:     "lower case sex letter is invalid",
			text:     "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 10 4 8 200 27 33 80 40 f\n",
			sentinel: domain.ErrInvalidValue,
			feature:  domain.Sex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExtractor().ExtractText(tt.text, domain.LayoutHeaderValueLine)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)

			extractionErr, ok := domain.AsExtractionError(err)
			require.True(t, ok)
			assert.Equal(t, tt.feature, extractionErr.Feature)
		})
	}
}

func TestExtractor_InvalidValueMessageOmitsRawText(t *testing.T) {
	_, err := newTestExtractor().ExtractText(
		"HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n30 secret-token 4 8 200 27 33 80 40 M\n",
		domain.LayoutHeaderValueLine,
	)
	require.Error(t, err)

	extractionErr, ok := domain.AsExtractionError(err)
	require.True(t, ok)
	assert.Equal(t, "secret-token", extractionErr.RawValue)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestResolveAliases_RoundTrip(t *testing.T) {
	lines := SplitLines("HGB HCT MCV SEX AGE\n11 30 75 M 70")
	header, data, ok := locateHeaderAndData(lines)
	require.True(t, ok)

	tokens := map[string]string{}
	headers, values := strings.Fields(header), strings.Fields(data)
	for i := range headers {
		tokens[headers[i]] = values[i]
	}

	resolved := resolveAliases(tokens)
	assert.Equal(t, map[domain.Feature]string{
		domain.Hemoglobin: "11",
		domain.Hematocrit: "30",
		domain.MCV:        "75",
		domain.Sex:        "M",
		domain.Age:        "70",
	}, resolved)
}

func TestResolveAliases_FirstDeclaredAliasWins(t *testing.T) {
	resolved := resolveAliases(map[string]string{
		"HCT":        "31",
		"HEMATOCRIT": "42",
		"HB":         "9",
		"HGB":        "13",
	})

	assert.Equal(t, "42", resolved[domain.Hematocrit])
	assert.Equal(t, "13", resolved[domain.Hemoglobin])
}

func TestLocateHeaderAndData_FirstPairWins(t *testing.T) {
	lines := SplitLines(`hematocrit hemoglobin sex
40 13 F
Hematocrit Hemoglobin Sex
30 9 M`)

	header, data, ok := locateHeaderAndData(lines)
	require.True(t, ok)
	assert.Equal(t, "hematocrit hemoglobin sex", header)
	assert.Equal(t, "40 13 F", data)
}

func TestExtractor_HeaderValueLine_DuplicateColumnLastWins(t *testing.T) {
	rec, err := newTestExtractor().ExtractText(
		"HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX HGB\n30 10 4 8 200 27 33 80 40 M 14\n",
		domain.LayoutHeaderValueLine,
	)
	require.NoError(t, err)
	assert.Equal(t, 14.0, rec.Hemoglobin)
	assert.Equal(t, domain.Male, rec.Sex)
}

func TestExtractor_HeaderValueLine_NumericSex(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.SexValue
	}{
		{"1", domain.Male},
		{"1.0", domain.Male},
		{"0", domain.Female},
		{"0.0", domain.Female},
		{"M", domain.Male},
		{"F", domain.Female},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			text := "HCT HGB RBC WBC PLT MCH MCHC MCV AGE SEX\n40 14 4.8 7 250 29 34 88 35 " + tt.raw
			rec, err := newTestExtractor().ExtractText(text, domain.LayoutHeaderValueLine)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Sex)
		})
	}
}

func TestExtractor_LabeledTable(t *testing.T) {
	rec, err := newTestExtractor().ExtractText(labeledTableReport, domain.LayoutLabeledTable)
	require.NoError(t, err)

	assert.Equal(t, domain.FeatureRecord{
		Hematocrit:  34.0,
		Hemoglobin:  11.2,
		Erythrocyte: 4.1,
		Leucocyte:   12500,
		Thrombocyte: 250000,
		MCH:         27.3,
		MCHC:        31.2,
		MCV:         78.5,
		Age:         67,
		Sex:         domain.Female,
	}, rec)
}

func TestExtractor_LabeledTable_Errors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		sentinel error
		feature  domain.Feature
	}{
		{
			name:     "no section marker",
			text:     "Hemoglobin 11.2\nAge: 40\nSex: M\n",
			sentinel: domain.ErrStructureNotFound,
		},
		{
			name:     "no table header after section",
			text:     "COMPLETE BLOOD COUNT\nHemoglobin 11.2\n",
			sentinel: domain.ErrStructureNotFound,
		},
		{
			name: "missing platelet row",
			text: `Age: 40
Sex: M
COMPLETE BLOOD COUNT
Test Result
Hemoglobin 14
PCV 42
RBC 4.9
WBC 7000
MCH 29
MCHC 34
MCV 88`,
			sentinel: domain.ErrMissingFeature,
			feature:  domain.Thrombocyte,
		},
		{
			name: "missing patient age",
			text: `Sex: M
COMPLETE BLOOD COUNT
Test Result
Hemoglobin 14
PCV 42
RBC 4.9
WBC 7000
Platelet 250000
MCH 29
MCHC 34
MCV 88`,
			sentinel: domain.ErrMissingFeature,
			feature:  domain.Age,
		},
		{
			name: "decimal comma is invalid",
			text: `Age: 40
Sex: M
COMPLETE BLOOD COUNT
Test Result
Hemoglobin 12,5
PCV 42
RBC 4.9
WBC 7000
Platelet 250000
MCH 29
MCHC 34
MCV 88`,
			sentinel: domain.ErrInvalidValue,
			feature:  domain.Hemoglobin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExtractor().ExtractText(tt.text, domain.LayoutLabeledTable)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			if tt.feature != "" {
				extractionErr, ok := domain.AsExtractionError(err)
				require.True(t, ok)
				assert.Equal(t, tt.feature, extractionErr.Feature)
			}
		})
	}
}

func TestExtractor_LabeledTable_UnitBeforeValue(t *testing.T) {
	text := `Age: 40
Sex: M
COMPLETE BLOOD COUNT
Test Result
Hemoglobin (g/dL) 14
PCV (%) 42
RBC (10^6/uL) 4.9
WBC (10^3/uL) 7.5
Platelet (10^3/uL) 250
MCH (pg) 29
MCHC (g/dL) 34
MCV (fL) 88`

	rec, err := newTestExtractor().ExtractText(text, domain.LayoutLabeledTable)
	require.NoError(t, err)
	assert.Equal(t, 7.5, rec.Leucocyte)
	assert.Equal(t, 4.9, rec.Erythrocyte)
	assert.Equal(t, 250.0, rec.Thrombocyte)
	assert.Equal(t, 14.0, rec.Hemoglobin)
}

func TestExtractor_LabeledTable_ValueAfterUnitFallsThrough(t *testing.T) {
	text := `Age: 40
Sex: M
COMPLETE BLOOD COUNT
Test Result
Hemoglobin 14
PCV 42
RBC 4.9
WBC count, per 10^3 uL
7.5
Platelet 250
MCH 29
MCHC 34
MCV 88`

	rec, err := newTestExtractor().ExtractText(text, domain.LayoutLabeledTable)
	require.NoError(t, err)
	assert.Equal(t, 7.5, rec.Leucocyte)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"11.2", 11.2, false},
		{" 42 ", 42, false},
		{"12,500", 12500, false},
		{"2,50,000", 250000, false},
		{"1,234,567.5", 1234567.5, false},
		{"12,50,000", 1250000, false},
		{"12,5", 0, true},
		{"12,50", 0, true},
		{"1,2345", 0, true},
		{",500", 0, true},
		{"1,,000", 0, true},
		{"Inf", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseNumber(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor_CustomMarkers(t *testing.T) {
	extractor := NewExtractor(domain.ExtractorConfig{
		Layout:            "labeled_table",
		SectionMarker:     "HAEMATOLOGY",
		TableHeaderMarker: "OBSERVED VALUE",
	})
	text := `Age: 52
Gender: Male
HAEMATOLOGY REPORT
Investigation   Observed Value
Haemoglobin 13.9
Haematocrit 41
RBC Count 4.7
TLC 6.5
Platelet Count 310
MCH 29.6
MCHC 33.9
MCV 87.2`

	rec, err := extractor.ExtractText(text, "")
	require.NoError(t, err)
	assert.Equal(t, domain.LayoutLabeledTable, extractor.DefaultLayout())
	assert.Equal(t, 13.9, rec.Hemoglobin)
	assert.Equal(t, 41.0, rec.Hematocrit)
	assert.Equal(t, 6.5, rec.Leucocyte)
	assert.Equal(t, 310.0, rec.Thrombocyte)
	assert.Equal(t, domain.Male, rec.Sex)
}

func TestExtractor_UnknownLayout(t *testing.T) {
	_, err := newTestExtractor().ExtractText(headerValueReport, domain.Layout("auto"))
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("  a \r\n\r\nb"))
}
