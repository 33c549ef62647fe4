package service

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cbc-analysis-server/internal/domain"
)

// BinarySexEncoder encodes M as 1 and F as 0.
type BinarySexEncoder struct{}

// Encode implements domain.SexEncoder
func (BinarySexEncoder) Encode(sex domain.SexValue) float64 {
	if sex == domain.Male {
		return 1
	}
	return 0
}

// IdentityScaler leaves the vector untouched, for models trained on raw values.
type IdentityScaler struct{}

// Transform implements domain.Scaler
func (IdentityScaler) Transform(v domain.ModelInputVector) domain.ModelInputVector {
	return v
}

// StandardScaler applies (x - mean) / scale per column.
type StandardScaler struct {
	Mean  domain.ModelInputVector
	Scale domain.ModelInputVector
}

type standardScalerFile struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadStandardScaler reads {"mean": [...], "scale": [...]} with one entry per model column.
func LoadStandardScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scaler %s: %w", path, err)
	}
	var file standardScalerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding scaler %s: %w", path, err)
	}
	return NewStandardScaler(file.Mean, file.Scale)
}

// NewStandardScaler validates column counts. A zero scale is treated as 1, matching how
// constant columns are stored by common training toolkits.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) != domain.ModelInputWidth || len(scale) != domain.ModelInputWidth {
		return nil, fmt.Errorf("scaler needs %d mean and scale values, got %d and %d",
			domain.ModelInputWidth, len(mean), len(scale))
	}
	s := &StandardScaler{}
	for i := 0; i < domain.ModelInputWidth; i++ {
		s.Mean[i] = mean[i]
		s.Scale[i] = scale[i]
		if s.Scale[i] == 0 {
			s.Scale[i] = 1
		}
	}
	return s, nil
}

// Transform implements domain.Scaler
func (s *StandardScaler) Transform(v domain.ModelInputVector) domain.ModelInputVector {
	var out domain.ModelInputVector
	for i := range v {
		out[i] = (v[i] - s.Mean[i]) / s.Scale[i]
	}
	return out
}

// FeatureEncoder builds the classifier input vector from a record: canonical column order, sex
// encoded, then scaled.
type FeatureEncoder struct {
	sex    domain.SexEncoder
	scaler domain.Scaler
}

// NewFeatureEncoder creates an encoder. Nil collaborators default to BinarySexEncoder and
// IdentityScaler.
func NewFeatureEncoder(sex domain.SexEncoder, scaler domain.Scaler) *FeatureEncoder {
	if sex == nil {
		sex = BinarySexEncoder{}
	}
	if scaler == nil {
		scaler = IdentityScaler{}
	}
	return &FeatureEncoder{sex: sex, scaler: scaler}
}

// Encode returns [hematocrit, hemoglobin, erythrocyte, leucocyte, thrombocyte, mch, mchc, mcv,
// age, sex] after scaling.
func (e *FeatureEncoder) Encode(rec domain.FeatureRecord) domain.ModelInputVector {
	var v domain.ModelInputVector
	for i, f := range domain.CanonicalFeatures {
		if f == domain.Sex {
			v[i] = e.sex.Encode(rec.Sex)
			continue
		}
		v[i] = rec.Value(f)
	}
	return e.scaler.Transform(v)
}
