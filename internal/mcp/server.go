// Package mcp exposes the CBC analysis pipeline as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cbc-analysis-server/internal/domain"
	"github.com/cbc-analysis-server/internal/service"
)

// Analyzer is the pipeline surface the tools call into.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string, layout domain.Layout) (*service.Analysis, error)
	AnalyzeRecord(ctx context.Context, rec domain.FeatureRecord) (*service.Analysis, error)
	Extract(ctx context.Context, text string, layout domain.Layout) (domain.FeatureRecord, error)
	Rules() []service.RuleInfo
}

// ServerInfo contains MCP server metadata
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server represents the CBC analysis MCP server
type Server struct {
	analyzer  Analyzer
	info      ServerInfo
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// Option is a functional option for Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerInfo overrides the advertised implementation name and version.
func WithServerInfo(cfg domain.MCPConfig) Option {
	return func(s *Server) {
		if cfg.ServerName != "" {
			s.info.Name = cfg.ServerName
		}
		if cfg.ServerVersion != "" {
			s.info.Version = cfg.ServerVersion
		}
	}
}

// NewServer creates a new MCP server instance with all tools registered.
func NewServer(analyzer Analyzer, opts ...Option) *Server {
	server := &Server{
		analyzer: analyzer,
		info: ServerInfo{
			Name:    "cbc-analysis-server",
			Version: "1.0.0",
		},
		logger: logrus.New(),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    server.info.Name,
		Version: server.info.Version,
	}, nil)

	server.registerTools()
	return server
}

// Info returns the advertised implementation metadata.
func (s *Server) Info() ServerInfo {
	return s.info
}

// Start serves MCP over stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"name":      s.info.Name,
		"version":   s.info.Version,
		"transport": "stdio",
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers every tool with the SDK. Input schemas are inferred from the
// parameter structs.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolAnalyzeReportText,
		Description: "Analyse the text of a complete blood count report: extract the ten panel values, " +
			"classify them and return the clinical narrative.",
	}, s.handleAnalyzeReportText)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAnalyzePanel,
		Description: "Analyse a blood panel given as individual values.",
	}, s.handleAnalyzePanel)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolExtractFeatures,
		Description: "Extract the ten panel values from report text without classifying them.",
	}, s.handleExtractFeatures)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListRules,
		Description: "List the clinical rules applied to abnormal panels, in evaluation order.",
	}, s.handleListRules)

	s.logger.WithField("tool_count", len(ToolNames)).Debug("Registered MCP tools")
}
