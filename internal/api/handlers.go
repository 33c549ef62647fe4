package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cbc-analysis-server/internal/domain"
	"github.com/cbc-analysis-server/internal/middleware"
	"github.com/cbc-analysis-server/internal/service"
	"github.com/cbc-analysis-server/pkg/doctext"
)

// PredictionResponse is the success body of both prediction endpoints.
type PredictionResponse struct {
	Status           string                `json:"status"`
	Prediction       string                `json:"prediction"`
	DetailedAnalysis string                `json:"detailed_analysis"`
	Result           domain.AnalysisResult `json:"result"`
	RequestID        string                `json:"request_id,omitempty"`
}

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id"`
}

// ManualPanelRequest is the /predict_manual body. Numeric fields are pointers so that an explicit
// zero is distinguished from an omitted field.
type ManualPanelRequest struct {
	Hematocrit  *PanelNumber `json:"Hematocrit" binding:"required"`
	Hemoglobin  *PanelNumber `json:"Hemoglobin" binding:"required"`
	Erythrocyte *PanelNumber `json:"Erythrocyte" binding:"required"`
	Leucocyte   *PanelNumber `json:"Leucocyte" binding:"required"`
	Thrombocyte *PanelNumber `json:"Thrombocyte" binding:"required"`
	Mch         *PanelNumber `json:"Mch" binding:"required"`
	Mchc        *PanelNumber `json:"Mchc" binding:"required"`
	Mcv         *PanelNumber `json:"Mcv" binding:"required"`
	Age         *PanelNumber `json:"Age" binding:"required"`
	Sex         string       `json:"Sex" binding:"required"`
}

// PanelNumber holds a manual-entry value sent either as a JSON number or as a numeric string
// ("30.5"). The text is only parsed in Record, so a bad string is a validation error.
type PanelNumber string

// UnmarshalJSON accepts a number or a string and rejects every other JSON type.
func (n *PanelNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*n = PanelNumber(strings.TrimSpace(text))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("panel value must be a number or numeric string: %w", err)
	}
	*n = PanelNumber(num)
	return nil
}

// Float parses the value as a finite decimal.
func (n PanelNumber) Float() (float64, error) {
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// Record converts the request into a FeatureRecord.
func (r ManualPanelRequest) Record() (domain.FeatureRecord, error) {
	sex, ok := domain.ParseSex(r.Sex)
	if !ok {
		return domain.FeatureRecord{}, domain.NewValidationError("Sex", "must be M or F", r.Sex)
	}

	fields := []struct {
		key     string
		feature domain.Feature
		value   *PanelNumber
	}{
		{"Hematocrit", domain.Hematocrit, r.Hematocrit},
		{"Hemoglobin", domain.Hemoglobin, r.Hemoglobin},
		{"Erythrocyte", domain.Erythrocyte, r.Erythrocyte},
		{"Leucocyte", domain.Leucocyte, r.Leucocyte},
		{"Thrombocyte", domain.Thrombocyte, r.Thrombocyte},
		{"Mch", domain.MCH, r.Mch},
		{"Mchc", domain.MCHC, r.Mchc},
		{"Mcv", domain.MCV, r.Mcv},
		{"Age", domain.Age, r.Age},
	}

	values := make(map[domain.Feature]float64, len(fields))
	for _, f := range fields {
		if f.value == nil {
			return domain.FeatureRecord{}, domain.NewValidationError(f.key, "is required", "")
		}
		v, err := f.value.Float()
		if err != nil {
			return domain.FeatureRecord{}, domain.NewValidationError(f.key, "must be a number", string(*f.value))
		}
		values[f.feature] = v
	}
	return domain.NewFeatureRecord(values, sex)
}

// handlePredict analyses an uploaded report (multipart field "file").
func (s *Server) handlePredict(c *gin.Context) {
	layout, err := domain.ParseLayout(c.PostForm("layout"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, err)
			return
		}
		s.writeAPIError(c, http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput, "No file part in the request", "", requestID(c)))
		return
	}
	if header.Filename == "" {
		s.writeAPIError(c, http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput, "No selected file", "", requestID(c)))
		return
	}
	if !doctext.Supported(header.Filename) {
		s.writeError(c, doctext.ErrUnsupportedType)
		return
	}

	file, err := header.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(c, err)
		return
	}

	text, err := s.documents.Text(c.Request.Context(), header.Filename, data)
	if err != nil {
		s.writeError(c, err)
		return
	}

	analysis, err := s.analyzer.AnalyzeText(c.Request.Context(), text, layout)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeAnalysis(c, "upload", analysis)
}

// handlePredictManual analyses a panel entered as JSON.
func (s *Server) handlePredictManual(c *gin.Context) {
	var req ManualPanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, err)
			return
		}
		s.writeAPIError(c, http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput, "Invalid request body", err.Error(), requestID(c)))
		return
	}

	rec, err := req.Record()
	if err != nil {
		s.writeError(c, err)
		return
	}

	analysis, err := s.analyzer.AnalyzeRecord(c.Request.Context(), rec)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeAnalysis(c, "manual", analysis)
}

func (s *Server) writeAnalysis(c *gin.Context, source string, analysis *service.Analysis) {
	s.metrics.ObservePrediction(source, analysis.Prediction())
	c.JSON(http.StatusOK, PredictionResponse{
		Status:           "success",
		Prediction:       analysis.Prediction(),
		DetailedAnalysis: analysis.Report,
		Result:           analysis.Result,
		RequestID:        requestID(c),
	})
}

// writeError maps pipeline errors onto HTTP statuses and error codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status, apiErr := classifyError(err, requestID(c))

	entry := middleware.RequestLogger(c, s.logger).WithFields(logrus.Fields{
		"status": status,
		"code":   apiErr.Code,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.WithError(err).Info("Request rejected")
	}

	s.writeAPIError(c, status, apiErr)
}

func (s *Server) writeAPIError(c *gin.Context, status int, apiErr *domain.APIError) {
	s.metrics.ObserveFailure(apiErr.Code)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Status:    "error",
		Error:     apiErr.Message,
		Code:      apiErr.Code,
		Details:   apiErr.Details,
		RequestID: apiErr.RequestID,
	})
}

func classifyError(err error, reqID string) (int, *domain.APIError) {
	var (
		validationErr *domain.ValidationError
		tooLarge      *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, domain.NewAPIError(
			domain.ErrCodePayloadTooLarge, "Uploaded file is too large", "", reqID)
	case errors.Is(err, doctext.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, domain.NewAPIError(
			domain.ErrCodeUnsupportedFile, "Only .pdf and .txt reports are supported", "", reqID)
	case errors.Is(err, doctext.ErrUnreadable):
		return http.StatusUnprocessableEntity, domain.NewAPIError(
			domain.ErrCodeDocumentUnreadable, "The document could not be read", err.Error(), reqID)
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeValidation, validationErr.Error(), "", reqID)
	}

	if extractionErr, ok := domain.AsExtractionError(err); ok {
		return http.StatusUnprocessableEntity, domain.NewAPIError(
			domain.ErrCodeExtraction, "Could not extract blood parameters from the report",
			extractionErr.Error(), reqID)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.NewAPIError(
			domain.ErrCodeTimeout, "Request timed out", "", reqID)
	case errors.Is(err, domain.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable, domain.NewAPIError(
			domain.ErrCodeClassification, "Classifier is unavailable", "", reqID)
	}

	return http.StatusInternalServerError, domain.NewAPIError(
		domain.ErrCodeInternalServer, "Internal server error", "", reqID)
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.CorrelationIDKey)
}
