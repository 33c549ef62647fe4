package service

import (
	"github.com/cbc-analysis-server/internal/domain"
)

// Outcome is what a triggered rule contributes to an AnalysisResult. An empty Condition means
// the rule adds a finding only.
type Outcome struct {
	Condition  string
	Finding    string
	Treatments []string
}

// Rule is one clinical threshold check. Evaluate returns the outcome and whether the rule fired.
type Rule struct {
	Name        string
	Description string
	Evaluate    func(rec domain.FeatureRecord) (Outcome, bool)
}

// RuleInfo describes a rule for discovery surfaces (CLI, MCP)
type RuleInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RuleEngine applies the fixed, ordered CBC rule table. It holds no per-request state and is
// safe for concurrent use.
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine creates a rule engine with the standard CBC rule table
func NewRuleEngine() *RuleEngine {
	engine := &RuleEngine{}
	engine.initializeRules()
	return engine
}

// Evaluate runs every rule in table order against the same record. Rules are not mutually
// exclusive; each triggered rule appends its outcome. Evaluate never fails.
func (e *RuleEngine) Evaluate(rec domain.FeatureRecord) domain.AnalysisResult {
	result := domain.NewAnalysisResult()
	for _, rule := range e.rules {
		outcome, fired := rule.Evaluate(rec)
		if !fired {
			continue
		}
		if outcome.Condition != "" {
			result.Conditions = append(result.Conditions, outcome.Condition)
		}
		if outcome.Finding != "" {
			result.Findings = append(result.Findings, outcome.Finding)
		}
		result.Treatments = append(result.Treatments, outcome.Treatments...)
	}
	return result
}

// Rules lists the rule table in evaluation order.
func (e *RuleEngine) Rules() []RuleInfo {
	infos := make([]RuleInfo, len(e.rules))
	for i, r := range e.rules {
		infos[i] = RuleInfo{Name: r.Name, Description: r.Description}
	}
	return infos
}

func (e *RuleEngine) addRule(name, description string, evaluate func(rec domain.FeatureRecord) (Outcome, bool)) {
	e.rules = append(e.rules, Rule{
		Name:        name,
		Description: description,
		Evaluate:    evaluate,
	})
}

// initializeRules declares the rule table. Order here is the order of conditions, findings and
// treatments in every result.
func (e *RuleEngine) initializeRules() {
	e.addRule("Anemia",
		"Hemoglobin < 12 g/dL and hematocrit < 36%, typed by MCV (<80 microcytic, >100 macrocytic, else normocytic)",
		evaluateAnemia)

	e.addRule("Leukocytosis", "Leucocyte count > 11 x10^9/L",
		func(rec domain.FeatureRecord) (Outcome, bool) {
			return Outcome{
				Condition: "Leukocytosis",
				Finding:   "Elevated white blood cell count indicates possible infection or inflammation",
				Treatments: []string{
					"Further testing to identify infection source",
					"Consider CBC with differential",
					"Possible antibiotic therapy based on infection source",
				},
			}, rec.Leucocyte > 11
		})

	e.addRule("Thrombocytosis", "Thrombocyte count > 450 x10^9/L",
		func(rec domain.FeatureRecord) (Outcome, bool) {
			return Outcome{
				Condition: "Thrombocytosis",
				Finding:   "Elevated platelet count suggests reactive thrombocytosis or a myeloproliferative disorder",
				Treatments: []string{
					"Repeat platelet count in 2-4 weeks to confirm persistence",
					"Screen for underlying inflammation, infection or iron deficiency",
				},
			}, rec.Thrombocyte > 450
		})

	e.addRule("Polycythemia", "Hematocrit > 52% and hemoglobin > 18 g/dL",
		func(rec domain.FeatureRecord) (Outcome, bool) {
			return Outcome{
				Condition: "Polycythemia",
				Finding:   "Raised hematocrit and hemoglobin indicate increased red cell mass or dehydration",
				Treatments: []string{
					"Assess hydration status and repeat CBC",
					"Test JAK2 mutation and serum erythropoietin level",
					"Refer to hematology for evaluation",
				},
			}, rec.Hematocrit > 52 && rec.Hemoglobin > 18
		})

	e.addRule("Red cell content", "MCHC < 32 g/dL (hypochromia) or MCHC > 36 g/dL (hyperchromia)",
		evaluateRedCellContent)

	e.addRule("Age note", "Age > 65 years adds an age-related finding",
		func(rec domain.FeatureRecord) (Outcome, bool) {
			return Outcome{
				Finding: "Patient is over 65; age-related changes in blood parameters should be considered",
			}, rec.Age > 65
		})
}

func evaluateAnemia(rec domain.FeatureRecord) (Outcome, bool) {
	if !(rec.Hemoglobin < 12 && rec.Hematocrit < 36) {
		return Outcome{}, false
	}
	switch {
	case rec.MCV < 80:
		return Outcome{
			Condition: "Microcytic Anemia",
			Finding:   "Low hemoglobin, hematocrit, and MCV indicate iron deficiency anemia",
			Treatments: []string{
				"Prescribe iron supplements (ferrous sulfate 325mg oral daily)",
				"Dietary modifications: increase iron-rich foods",
				"Follow-up blood test in 3 months",
			},
		}, true
	case rec.MCV > 100:
		return Outcome{
			Condition: "Macrocytic Anemia",
			Finding:   "Low hemoglobin with high MCV suggests vitamin B12 or folate deficiency",
			Treatments: []string{
				"Vitamin B12 injections or oral supplements",
				"Folic acid supplementation",
				"Dietary counseling for B12 and folate-rich foods",
			},
		}, true
	default:
		return Outcome{
			Condition: "Normocytic Anemia",
			Finding:   "Low hemoglobin with normal MCV suggests chronic disease or acute blood loss",
			Treatments: []string{
				"Evaluate for chronic kidney disease, chronic inflammation and occult blood loss",
				"Follow-up blood test in 1 month",
			},
		}, true
	}
}

func evaluateRedCellContent(rec domain.FeatureRecord) (Outcome, bool) {
	switch {
	case rec.MCHC < 32:
		return Outcome{
			Condition: "Hypochromia",
			Finding:   "Low MCHC indicates pale red cells, commonly seen with iron deficiency or thalassemia",
			Treatments: []string{
				"Check serum ferritin and iron studies",
				"Consider hemoglobin electrophoresis to rule out thalassemia",
				"Iron supplementation if iron deficiency is confirmed",
			},
		}, true
	case rec.MCHC > 36:
		return Outcome{
			Condition: "Hyperchromia",
			Finding:   "High MCHC suggests spherocytosis or a sample artefact such as hemolysis",
			Treatments: []string{
				"Repeat sample to exclude hemolysis or lipemia",
				"Peripheral blood smear to check for spherocytes",
			},
		}, true
	default:
		return Outcome{}, false
	}
}
