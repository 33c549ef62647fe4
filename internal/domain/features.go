package domain

// FeatureAliases is one row of the alias table: the surface labels accepted for a feature, in
// preference order.
type FeatureAliases struct {
	Feature Feature
	Aliases []string
}

// FeatureAliasTable maps each canonical feature to the uppercase header tokens accepted for it in
// header/value-line reports. The first alias present in a report always wins.
var FeatureAliasTable = []FeatureAliases{
	{Feature: Hematocrit, Aliases: []string{"HEMATOCRIT", "HCT"}},
	{Feature: Hemoglobin, Aliases: []string{"HEMOGLOBIN", "HGB", "HB"}},
	{Feature: Erythrocyte, Aliases: []string{"ERYTHROCYTE", "RBC"}},
	{Feature: Leucocyte, Aliases: []string{"LEUCOCYTE", "WBC"}},
	{Feature: Thrombocyte, Aliases: []string{"THROMBOCYTE", "PLT"}},
	{Feature: MCH, Aliases: []string{"MCH"}},
	{Feature: MCHC, Aliases: []string{"MCHC"}},
	{Feature: MCV, Aliases: []string{"MCV"}},
	{Feature: Age, Aliases: []string{"AGE"}},
	{Feature: Sex, Aliases: []string{"SEX"}},
}

// AliasesFor returns the alias list of a feature, or nil for an unknown feature.
func AliasesFor(f Feature) []string {
	for _, row := range FeatureAliasTable {
		if row.Feature == f {
			return row.Aliases
		}
	}
	return nil
}
