package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cbc-analysis-server/internal/domain"
)

// Severity selects the markup wrapper for a span of report text.
type Severity string

const (
	SeverityHigh Severity = "high"
	SeverityOK   Severity = "ok"
)

var severityClass = map[Severity]string{
	SeverityHigh: "text-danger",
	SeverityOK:   "text-success",
}

// Highlight wraps text in the span for its severity.
func Highlight(sev Severity, text string) string {
	return fmt.Sprintf("<span class='%s'>%s</span>", severityClass[sev], text)
}

// SeverityTerm is one entry of the highlighting table.
type SeverityTerm struct {
	Term     string
	Severity Severity
}

// SeverityTerms are the medical terms highlighted in finding and treatment text. Where one term
// contains another, the longer one is listed first and wins.
var SeverityTerms = []SeverityTerm{
	{Term: "iron deficiency anemia", Severity: SeverityHigh},
	{Term: "iron deficiency", Severity: SeverityHigh},
	{Term: "vitamin B12 or folate deficiency", Severity: SeverityHigh},
	{Term: "infection or inflammation", Severity: SeverityHigh},
	{Term: "myeloproliferative disorder", Severity: SeverityHigh},
	{Term: "reactive thrombocytosis", Severity: SeverityHigh},
	{Term: "increased red cell mass", Severity: SeverityHigh},
	{Term: "dehydration", Severity: SeverityHigh},
	{Term: "chronic disease", Severity: SeverityHigh},
	{Term: "acute blood loss", Severity: SeverityHigh},
	{Term: "thalassemia", Severity: SeverityHigh},
	{Term: "spherocytosis", Severity: SeverityHigh},
	{Term: "hemolysis", Severity: SeverityHigh},
}

const reportTitle = "BLOOD ANALYSIS REPORT\n\n"

// healthyReport is emitted whenever no condition was identified.
var healthyReport = reportTitle +
	"Identified Conditions:\n" +
	"• " + Highlight(SeverityOK, "No abnormal conditions detected") + "\n\n" +
	"Clinical Findings:\n" +
	"• " + Highlight(SeverityOK, "All blood parameters are within normal ranges") + "\n\n" +
	"Treatment Recommendations:\n" +
	"• Maintain current health status\n" +
	"• Continue regular exercise and balanced diet\n" +
	"• Schedule routine follow-up in 12 months\n"

// Reporter renders an AnalysisResult into the narrative report.
type Reporter struct {
	highlighter *strings.Replacer
}

// NewReporter creates a reporter using SeverityTerms
func NewReporter() *Reporter {
	return NewReporterWithTerms(SeverityTerms)
}

// NewReporterWithTerms creates a reporter with a custom highlighting table
func NewReporterWithTerms(terms []SeverityTerm) *Reporter {
	pairs := make([]string, 0, len(terms)*2)
	for _, t := range terms {
		pairs = append(pairs, t.Term, Highlight(t.Severity, t.Term))
	}
	return &Reporter{highlighter: strings.NewReplacer(pairs...)}
}

// Render produces the report. With no conditions it emits the fixed healthy template, even when
// findings such as the age note are present. The patient footer is always appended.
func (r *Reporter) Render(result domain.AnalysisResult, rec domain.FeatureRecord) string {
	var b strings.Builder

	if !result.HasConditions() {
		b.WriteString(healthyReport)
		writePatientFooter(&b, rec)
		return b.String()
	}

	b.WriteString(reportTitle)
	b.WriteString("Status: " + Highlight(SeverityHigh, "Abnormal blood parameters detected") + "\n\n")

	b.WriteString("Identified Conditions:\n")
	for _, condition := range result.Conditions {
		b.WriteString("• " + Highlight(SeverityHigh, condition) + "\n")
	}

	b.WriteString("\nClinical Findings:\n")
	for _, finding := range result.Findings {
		b.WriteString("• " + r.Mark(finding) + "\n")
		writeValueBlock(&b, finding, rec)
	}

	b.WriteString("\nTreatment Recommendations:\n")
	for _, treatment := range result.Treatments {
		b.WriteString("• " + r.Mark(treatment) + "\n")
	}

	writePatientFooter(&b, rec)
	return b.String()
}

// Mark applies the severity table to a line of text in a single pass.
func (r *Reporter) Mark(text string) string {
	return r.highlighter.Replace(text)
}

// writeValueBlock lists the measured values a finding refers to, with reference ranges.
func writeValueBlock(b *strings.Builder, finding string, rec domain.FeatureRecord) {
	lower := strings.ToLower(finding)
	switch {
	case strings.Contains(lower, "hemoglobin"):
		b.WriteString("  Values:\n")
		writeValue(b, "Hemoglobin", rec.Hemoglobin, " g/dL", "12-16 g/dL")
		writeValue(b, "Hematocrit", rec.Hematocrit, "%", "36-48%")
		writeValue(b, "MCV", rec.MCV, " fL", "80-100 fL")
	case strings.Contains(lower, "white blood cell"):
		b.WriteString("  Values:\n")
		writeValue(b, "Leucocyte", rec.Leucocyte, " x10^9/L", "4-11 x10^9/L")
	case strings.Contains(lower, "platelet"):
		b.WriteString("  Values:\n")
		writeValue(b, "Thrombocyte", rec.Thrombocyte, " x10^9/L", "150-450 x10^9/L")
	}
}

func writeValue(b *strings.Builder, name string, value float64, unit, normal string) {
	fmt.Fprintf(b, "  - %s: %s (Normal: %s)\n", name, Highlight(SeverityHigh, fmt.Sprintf("%.1f%s", value, unit)), normal)
}

func writePatientFooter(b *strings.Builder, rec domain.FeatureRecord) {
	b.WriteString("\nPatient Information:\n")
	b.WriteString("• Age: " + strconv.FormatFloat(rec.Age, 'f', -1, 64) + "\n")
	b.WriteString("• Sex: " + rec.Sex.String() + "\n")
}
