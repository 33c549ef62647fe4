package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-analysis-server/internal/domain"
)

// normalRecord is a panel with every value inside reference ranges.
func normalRecord() domain.FeatureRecord {
	return domain.FeatureRecord{
		Hematocrit:  42,
		Hemoglobin:  14,
		Erythrocyte: 4.8,
		Leucocyte:   7,
		Thrombocyte: 250,
		MCH:         29,
		MCHC:        34,
		MCV:         88,
		Age:         40,
		Sex:         domain.Male,
	}
}

func TestRuleEngine_Evaluate(t *testing.T) {
	engine := NewRuleEngine()

	tests := []struct {
		name           string
		mutate         func(r *domain.FeatureRecord)
		wantConditions []string
		wantFindings   int
		wantTreatments int
	}{
		{
			name:           "all normal",
			mutate:         func(r *domain.FeatureRecord) {},
			wantConditions: []string{},
		},
		{
			name: "microcytic anemia",
			mutate: func(r *domain.FeatureRecord) {
				r.Hemoglobin, r.Hematocrit, r.MCV = 10, 30, 70
			},
			wantConditions: []string{"Microcytic Anemia"},
			wantFindings:   1,
			wantTreatments: 3,
		},
		{
			name: "macrocytic anemia",
			mutate: func(r *domain.FeatureRecord) {
				r.Hemoglobin, r.Hematocrit, r.MCV = 10, 30, 105
			},
			wantConditions: []string{"Macrocytic Anemia"},
			wantFindings:   1,
			wantTreatments: 3,
		},
		{
			name: "normocytic anemia at mcv boundary 80",
			mutate: func(r *domain.FeatureRecord) {
				r.Hemoglobin, r.Hematocrit, r.MCV = 10, 30, 80
			},
			wantConditions: []string{"Normocytic Anemia"},
			wantFindings:   1,
			wantTreatments: 2,
		},
		{
			name: "normocytic anemia at mcv boundary 100",
			mutate: func(r *domain.FeatureRecord) {
				r.Hemoglobin, r.Hematocrit, r.MCV = 10, 30, 100
			},
			wantConditions: []string{"Normocytic Anemia"},
			wantFindings:   1,
			wantTreatments: 2,
		},
		{
			name: "low hemoglobin alone is not anemia",
			mutate: func(r *domain.FeatureRecord) {
				r.Hemoglobin, r.Hematocrit, r.MCV = 10, 36, 70
			},
			wantConditions: []string{},
		},
		{
			name:           "leukocytosis",
			mutate:         func(r *domain.FeatureRecord) { r.Leucocyte = 11.5 },
			wantConditions: []string{"Leukocytosis"},
			wantFindings:   1,
			wantTreatments: 3,
		},
		{
			name:           "leucocyte at threshold",
			mutate:         func(r *domain.FeatureRecord) { r.Leucocyte = 11 },
			wantConditions: []string{},
		},
		{
			name:           "thrombocytosis",
			mutate:         func(r *domain.FeatureRecord) { r.Thrombocyte = 451 },
			wantConditions: []string{"Thrombocytosis"},
			wantFindings:   1,
			wantTreatments: 2,
		},
		{
			name: "polycythemia",
			mutate: func(r *domain.FeatureRecord) {
				r.Hematocrit, r.Hemoglobin = 55, 19
			},
			wantConditions: []string{"Polycythemia"},
			wantFindings:   1,
			wantTreatments: 3,
		},
		{
			name:           "hypochromia",
			mutate:         func(r *domain.FeatureRecord) { r.MCHC = 31 },
			wantConditions: []string{"Hypochromia"},
			wantFindings:   1,
			wantTreatments: 3,
		},
		{
			name:           "hyperchromia",
			mutate:         func(r *domain.FeatureRecord) { r.MCHC = 37 },
			wantConditions: []string{"Hyperchromia"},
			wantFindings:   1,
			wantTreatments: 2,
		},
		{
			name:           "age note adds a finding only",
			mutate:         func(r *domain.FeatureRecord) { r.Age = 70 },
			wantConditions: []string{},
			wantFindings:   1,
		},
		{
			name: "overlapping rules append in table order",
			mutate: func(r *domain.FeatureRecord) {
				r.Hemoglobin, r.Hematocrit, r.MCV = 9, 28, 72
				r.Leucocyte, r.Thrombocyte, r.MCHC, r.Age = 14, 500, 30, 80
			},
			wantConditions: []string{"Microcytic Anemia", "Leukocytosis", "Thrombocytosis", "Hypochromia"},
			wantFindings:   5,
			wantTreatments: 3 + 3 + 2 + 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := normalRecord()
			tt.mutate(&rec)

			result := engine.Evaluate(rec)

			assert.Equal(t, tt.wantConditions, result.Conditions)
			assert.Len(t, result.Findings, tt.wantFindings)
			assert.Len(t, result.Treatments, tt.wantTreatments)
		})
	}
}

func TestRuleEngine_MicrocyticScenario(t *testing.T) {
	rec := domain.FeatureRecord{
		Hemoglobin: 10, Hematocrit: 30, MCV: 70, Leucocyte: 8, Thrombocyte: 200,
		MCHC: 34, Age: 40, Sex: domain.Male, Erythrocyte: 4.0, MCH: 25,
	}

	result := NewRuleEngine().Evaluate(rec)

	assert.Equal(t, []string{"Microcytic Anemia"}, result.Conditions)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Low hemoglobin, hematocrit, and MCV indicate iron deficiency anemia", result.Findings[0])
	assert.Equal(t, []string{
		"Prescribe iron supplements (ferrous sulfate 325mg oral daily)",
		"Dietary modifications: increase iron-rich foods",
		"Follow-up blood test in 3 months",
	}, result.Treatments)
	assert.NotContains(t, result.Conditions, "Leukocytosis")
	assert.NotContains(t, result.Conditions, "Thrombocytosis")
}

func TestRuleEngine_AnemiaSubBranchesExclusive(t *testing.T) {
	engine := NewRuleEngine()
	anemias := map[string]bool{"Microcytic Anemia": true, "Macrocytic Anemia": true, "Normocytic Anemia": true}

	for _, mcv := range []float64{50, 79.9, 80, 90, 100, 100.1, 130} {
		rec := normalRecord()
		rec.Hemoglobin, rec.Hematocrit, rec.MCV = 11, 33, mcv

		count := 0
		for _, c := range engine.Evaluate(rec).Conditions {
			if anemias[c] {
				count++
			}
		}
		assert.Equal(t, 1, count, "mcv=%v", mcv)
	}
}

func TestRuleEngine_HypoAndHyperchromiaExclusive(t *testing.T) {
	engine := NewRuleEngine()
	for _, mchc := range []float64{20, 31.9, 32, 34, 36, 36.1, 45} {
		rec := normalRecord()
		rec.MCHC = mchc
		conditions := engine.Evaluate(rec).Conditions
		assert.False(t, contains(conditions, "Hypochromia") && contains(conditions, "Hyperchromia"), "mchc=%v", mchc)
	}
}

func TestRuleEngine_Idempotent(t *testing.T) {
	engine := NewRuleEngine()
	rec := normalRecord()
	rec.Hemoglobin, rec.Hematocrit, rec.Leucocyte = 9, 29, 15

	assert.Equal(t, engine.Evaluate(rec), engine.Evaluate(rec))
}

func TestRuleEngine_Rules(t *testing.T) {
	rules := NewRuleEngine().Rules()

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
		assert.NotEmpty(t, r.Description)
	}
	assert.Equal(t, []string{"Anemia", "Leukocytosis", "Thrombocytosis", "Polycythemia", "Red cell content", "Age note"}, names)
}

func contains(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}
