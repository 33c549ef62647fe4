package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cbc-analysis-server/internal/domain"
	"github.com/cbc-analysis-server/internal/service"
)

// Tool names
const (
	ToolAnalyzeReportText = "analyze_report_text"
	ToolAnalyzePanel      = "analyze_panel"
	ToolExtractFeatures   = "extract_features"
	ToolListRules         = "list_rules"
)

// ToolNames lists the registered tools in registration order.
var ToolNames = []string{ToolAnalyzeReportText, ToolAnalyzePanel, ToolExtractFeatures, ToolListRules}

// AnalyzeReportTextParams defines parameters for analyze_report_text
type AnalyzeReportTextParams struct {
	Text   string `json:"text" jsonschema:"full text of the laboratory report"`
	Layout string `json:"layout,omitempty" jsonschema:"header_value_line or labeled_table; defaults to the configured layout"`
}

// AnalyzePanelParams defines parameters for analyze_panel
type AnalyzePanelParams struct {
	Hematocrit  float64 `json:"hematocrit" jsonschema:"hematocrit in percent"`
	Hemoglobin  float64 `json:"hemoglobin" jsonschema:"hemoglobin in g/dL"`
	Erythrocyte float64 `json:"erythrocyte" jsonschema:"red cell count in millions per microlitre"`
	Leucocyte   float64 `json:"leucocyte" jsonschema:"white cell count in thousands per microlitre"`
	Thrombocyte float64 `json:"thrombocyte" jsonschema:"platelet count in thousands per microlitre"`
	MCH         float64 `json:"mch" jsonschema:"mean corpuscular hemoglobin in pg"`
	MCHC        float64 `json:"mchc" jsonschema:"mean corpuscular hemoglobin concentration in g/dL"`
	MCV         float64 `json:"mcv" jsonschema:"mean corpuscular volume in fL"`
	Age         float64 `json:"age" jsonschema:"age in years"`
	Sex         string  `json:"sex" jsonschema:"M or F"`
}

// ExtractFeaturesParams defines parameters for extract_features
type ExtractFeaturesParams struct {
	Text   string `json:"text" jsonschema:"full text of the laboratory report"`
	Layout string `json:"layout,omitempty" jsonschema:"header_value_line or labeled_table; defaults to the configured layout"`
}

// ListRulesParams is empty; list_rules takes no arguments.
type ListRulesParams struct{}

// AnalysisOutput is the structured result of both analysis tools.
type AnalysisOutput struct {
	Prediction       string               `json:"prediction"`
	Abnormal         bool                 `json:"abnormal"`
	Conditions       []string             `json:"conditions"`
	Findings         []string             `json:"findings"`
	Treatments       []string             `json:"treatments"`
	DetailedAnalysis string               `json:"detailed_analysis"`
	Record           domain.FeatureRecord `json:"record"`
}

// RulesOutput is the structured result of list_rules.
type RulesOutput struct {
	Rules []service.RuleInfo `json:"rules"`
}

func newAnalysisOutput(a *service.Analysis) AnalysisOutput {
	return AnalysisOutput{
		Prediction:       a.Prediction(),
		Abnormal:         a.Verdict.Abnormal,
		Conditions:       a.Result.Conditions,
		Findings:         a.Result.Findings,
		Treatments:       a.Result.Treatments,
		DetailedAnalysis: a.Report,
		Record:           a.Record,
	}
}

func (s *Server) handleAnalyzeReportText(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeReportTextParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAnalyzeReportText).Info("Tool invoked")

	if params.Text == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("text is required")), nil, nil
	}
	layout, err := domain.ParseLayout(params.Layout)
	if err != nil {
		return s.createErrorResult("Invalid layout", err), nil, nil
	}

	analysis, err := s.analyzer.AnalyzeText(ctx, params.Text, layout)
	if err != nil {
		return s.createErrorResult("Analysis failed", err), nil, nil
	}
	return s.createJSONResult(newAnalysisOutput(analysis))
}

func (s *Server) handleAnalyzePanel(ctx context.Context, req *mcp.CallToolRequest, params AnalyzePanelParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAnalyzePanel).Info("Tool invoked")

	sex, ok := domain.ParseSex(params.Sex)
	if !ok {
		return s.createErrorResult("Invalid parameter", domain.NewValidationError("sex", "must be M or F", params.Sex)), nil, nil
	}
	rec, err := domain.NewFeatureRecord(map[domain.Feature]float64{
		domain.Hematocrit:  params.Hematocrit,
		domain.Hemoglobin:  params.Hemoglobin,
		domain.Erythrocyte: params.Erythrocyte,
		domain.Leucocyte:   params.Leucocyte,
		domain.Thrombocyte: params.Thrombocyte,
		domain.MCH:         params.MCH,
		domain.MCHC:        params.MCHC,
		domain.MCV:         params.MCV,
		domain.Age:         params.Age,
	}, sex)
	if err != nil {
		return s.createErrorResult("Invalid panel", err), nil, nil
	}

	analysis, err := s.analyzer.AnalyzeRecord(ctx, rec)
	if err != nil {
		return s.createErrorResult("Analysis failed", err), nil, nil
	}
	return s.createJSONResult(newAnalysisOutput(analysis))
}

func (s *Server) handleExtractFeatures(ctx context.Context, req *mcp.CallToolRequest, params ExtractFeaturesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolExtractFeatures).Info("Tool invoked")

	if params.Text == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("text is required")), nil, nil
	}
	layout, err := domain.ParseLayout(params.Layout)
	if err != nil {
		return s.createErrorResult("Invalid layout", err), nil, nil
	}

	rec, err := s.analyzer.Extract(ctx, params.Text, layout)
	if err != nil {
		return s.createErrorResult("Extraction failed", err), nil, nil
	}
	return s.createJSONResult(rec)
}

func (s *Server) handleListRules(ctx context.Context, req *mcp.CallToolRequest, params ListRulesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListRules).Debug("Tool invoked")
	return s.createJSONResult(RulesOutput{Rules: s.analyzer.Rules()})
}

// createJSONResult renders out as indented JSON text content and also returns it as the
// structured result.
func (s *Server) createJSONResult(out any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, out, nil
}

// createErrorResult creates an error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
