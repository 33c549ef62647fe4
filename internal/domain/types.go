// Package domain contains the core entities for complete-blood-count (CBC) report analysis:
// the canonical feature record extracted from a laboratory report, the fixed-order classifier
// input vector, and the rule-based analysis result rendered into the clinical narrative.
package domain

import (
	"fmt"
	"math"
	"strings"
)

// Feature names one of the ten canonical blood-panel features.
type Feature string

const (
	Hematocrit  Feature = "hematocrit"
	Hemoglobin  Feature = "hemoglobin"
	Erythrocyte Feature = "erythrocyte"
	Leucocyte   Feature = "leucocyte"
	Thrombocyte Feature = "thrombocyte"
	MCH         Feature = "mch"
	MCHC        Feature = "mchc"
	MCV         Feature = "mcv"
	Age         Feature = "age"
	Sex         Feature = "sex"
)

// CanonicalFeatures is the declaration order of the feature contract. Extraction validates in this
// order and the classifier input vector is laid out in this order.
var CanonicalFeatures = []Feature{
	Hematocrit,
	Hemoglobin,
	Erythrocyte,
	Leucocyte,
	Thrombocyte,
	MCH,
	MCHC,
	MCV,
	Age,
	Sex,
}

// String returns the canonical feature name.
func (f Feature) String() string {
	return string(f)
}

// IsValid reports whether f is one of the canonical features.
func (f Feature) IsValid() bool {
	for _, c := range CanonicalFeatures {
		if c == f {
			return true
		}
	}
	return false
}

// DisplayName returns the capitalised label used in manual-entry payloads and reports.
func (f Feature) DisplayName() string {
	if f == "" {
		return ""
	}
	return strings.ToUpper(string(f[:1])) + string(f[1:])
}

// SexValue is the normalised categorical sex of the patient.
type SexValue string

const (
	Male   SexValue = "M"
	Female SexValue = "F"
)

// IsValid reports whether s is one of M or F.
func (s SexValue) IsValid() bool {
	return s == Male || s == Female
}

// String returns the single-letter representation.
func (s SexValue) String() string {
	return string(s)
}

// ParseSex normalises a raw report token into M or F. Numeric encodings follow the classifier
// convention (1 = M, 0 = F).
func ParseSex(raw string) (SexValue, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "M", "MALE", "1", "1.0":
		return Male, true
	case "F", "FEMALE", "0", "0.0":
		return Female, true
	default:
		return "", false
	}
}

// FeatureRecord is the canonical, fully populated extraction of one patient's panel.
// A record is only ever produced complete; see NewFeatureRecord.
type FeatureRecord struct {
	Hematocrit  float64  `json:"hematocrit"`
	Hemoglobin  float64  `json:"hemoglobin"`
	Erythrocyte float64  `json:"erythrocyte"`
	Leucocyte   float64  `json:"leucocyte"`
	Thrombocyte float64  `json:"thrombocyte"`
	MCH         float64  `json:"mch"`
	MCHC        float64  `json:"mchc"`
	MCV         float64  `json:"mcv"`
	Age         float64  `json:"age"`
	Sex         SexValue `json:"sex"`
}

// NewFeatureRecord assembles a record from numeric values and a sex value. Features are checked in
// canonical order so the first absent feature is the one reported.
func NewFeatureRecord(values map[Feature]float64, sex SexValue) (FeatureRecord, error) {
	var rec FeatureRecord
	for _, f := range CanonicalFeatures {
		if f == Sex {
			if sex == "" {
				return FeatureRecord{}, NewMissingFeatureError(Sex)
			}
			if !sex.IsValid() {
				return FeatureRecord{}, NewInvalidValueError(Sex, string(sex))
			}
			rec.Sex = sex
			continue
		}
		v, ok := values[f]
		if !ok {
			return FeatureRecord{}, NewMissingFeatureError(f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FeatureRecord{}, NewInvalidValueError(f, fmt.Sprintf("%v", v))
		}
		rec.setNumeric(f, v)
	}
	return rec, nil
}

// Value returns the numeric value of a feature. Sex is returned in its classifier encoding.
func (r FeatureRecord) Value(f Feature) float64 {
	switch f {
	case Hematocrit:
		return r.Hematocrit
	case Hemoglobin:
		return r.Hemoglobin
	case Erythrocyte:
		return r.Erythrocyte
	case Leucocyte:
		return r.Leucocyte
	case Thrombocyte:
		return r.Thrombocyte
	case MCH:
		return r.MCH
	case MCHC:
		return r.MCHC
	case MCV:
		return r.MCV
	case Age:
		return r.Age
	case Sex:
		if r.Sex == Male {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func (r *FeatureRecord) setNumeric(f Feature, v float64) {
	switch f {
	case Hematocrit:
		r.Hematocrit = v
	case Hemoglobin:
		r.Hemoglobin = v
	case Erythrocyte:
		r.Erythrocyte = v
	case Leucocyte:
		r.Leucocyte = v
	case Thrombocyte:
		r.Thrombocyte = v
	case MCH:
		r.MCH = v
	case MCHC:
		r.MCHC = v
	case MCV:
		r.MCV = v
	case Age:
		r.Age = v
	}
}

// Validate checks the record invariant: every numeric field finite and sex normalised.
func (r FeatureRecord) Validate() error {
	for _, f := range CanonicalFeatures {
		if f == Sex {
			if !r.Sex.IsValid() {
				return NewValidationError(Sex.DisplayName(), "must be M or F", r.Sex)
			}
			continue
		}
		v := r.Value(f)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError(f.DisplayName(), "must be a finite number", v)
		}
	}
	return nil
}

// ModelInputWidth is the number of columns the external classifier expects.
const ModelInputWidth = 10

// ModelInputVector is the classifier encoding of a FeatureRecord:
// [hematocrit, hemoglobin, erythrocyte, leucocyte, thrombocyte, mch, mchc, mcv, age, sex_encoded].
// The column order is a contract with the trained model.
type ModelInputVector [ModelInputWidth]float64

// Slice returns the vector as a slice, for JSON encoding and linear algebra.
func (v ModelInputVector) Slice() []float64 {
	out := make([]float64, ModelInputWidth)
	copy(out, v[:])
	return out
}

// AnalysisResult holds the triggered conditions, findings and treatments in rule-evaluation order.
type AnalysisResult struct {
	Conditions []string `json:"conditions"`
	Findings   []string `json:"findings"`
	Treatments []string `json:"treatments"`
}

// NewAnalysisResult returns an empty result with non-nil sequences.
func NewAnalysisResult() AnalysisResult {
	return AnalysisResult{
		Conditions: []string{},
		Findings:   []string{},
		Treatments: []string{},
	}
}

// HasConditions reports whether any condition was triggered.
func (a AnalysisResult) HasConditions() bool {
	return len(a.Conditions) > 0
}

// Verdict is the interpreted output of the classifier.
type Verdict struct {
	Label    int  `json:"label"`
	Abnormal bool `json:"abnormal"`
}

// Prediction returns the wire value used by the HTTP boundary: "Yes" for an abnormal (in-care) case.
func (v Verdict) Prediction() string {
	if v.Abnormal {
		return "Yes"
	}
	return "No"
}

// Layout selects one of the supported report layouts.
type Layout string

const (
	// LayoutHeaderValueLine is a flat header line of feature tokens followed by a line of values.
	LayoutHeaderValueLine Layout = "header_value_line"
	// LayoutLabeledTable is a labelled CBC table under a panel heading with a patient-info header.
	LayoutLabeledTable Layout = "labeled_table"
)

// ParseLayout resolves a configured layout name. An empty name selects the header/value-line layout.
func ParseLayout(name string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(name))) {
	case "", LayoutHeaderValueLine:
		return LayoutHeaderValueLine, nil
	case LayoutLabeledTable:
		return LayoutLabeledTable, nil
	default:
		return "", NewValidationError("layout", "unsupported report layout", name)
	}
}

// String returns the layout name.
func (l Layout) String() string {
	return string(l)
}
