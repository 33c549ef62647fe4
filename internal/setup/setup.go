// Package setup registers the CBC analysis MCP server with Claude Desktop.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key of our entry under mcpServers.
const ServerName = "cbc-analysis"

// Environment variables written into the client entry. They mirror the CBC_ variables read by
// the lite configuration.
const (
	EnvAbnormalLabel = "CBC_CLASSIFIER_ABNORMAL_LABEL"
	EnvModelPath     = "CBC_CLASSIFIER_MODEL_PATH"
	EnvScalerPath    = "CBC_CLASSIFIER_SCALER_PATH"
	EnvLayout        = "CBC_EXTRACTOR_LAYOUT"
)

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// SetupOptions contains options for the setup process.
type SetupOptions struct {
	BinaryPath    string // Path to the MCP server binary
	ConfigPath    string // Claude Desktop config file; detected when empty
	ModelPath     string // Linear model artefact
	ScalerPath    string // Optional standard scaler artefact
	AbnormalLabel string // "0" or "1"
	Layout        string // Default extraction layout
	AutoConfirm   bool   // Skip confirmation prompts
}

// GetClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func GetClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClaudeDesktopConfig loads the existing configuration; a missing file is an empty config.
func LoadClaudeDesktopConfig(configPath string) (*ClaudeDesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClaudeDesktopConfig{MCPServers: make(map[string]MCPServerConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ClaudeDesktopConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}
	return &config, nil
}

// SaveClaudeDesktopConfig saves the configuration to the Claude Desktop config file.
func SaveClaudeDesktopConfig(configPath string, config *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return GetClaudeDesktopConfigPath()
}

// ServerEntry builds our mcpServers entry. Other servers in the file are left untouched by
// ConfigureClaudeDesktop.
func ServerEntry(opts SetupOptions) (MCPServerConfig, error) {
	if opts.AbnormalLabel != "0" && opts.AbnormalLabel != "1" {
		return MCPServerConfig{}, fmt.Errorf("abnormal label must be 0 or 1, got %q", opts.AbnormalLabel)
	}

	entry := MCPServerConfig{
		Command: opts.BinaryPath,
		Env: map[string]string{
			EnvAbnormalLabel: opts.AbnormalLabel,
		},
	}
	for key, value := range map[string]string{
		EnvModelPath:  opts.ModelPath,
		EnvScalerPath: opts.ScalerPath,
		EnvLayout:     opts.Layout,
	} {
		if value == "" {
			continue
		}
		if key != EnvLayout {
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
		}
		entry.Env[key] = value
	}
	return entry, nil
}

// ConfigureClaudeDesktop adds or updates the CBC analysis server in the Claude Desktop config.
func ConfigureClaudeDesktop(opts SetupOptions) (string, error) {
	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", err
	}

	config, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return "", err
	}

	if opts.BinaryPath == "" {
		opts.BinaryPath, err = findBinary()
		if err != nil {
			return "", fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry, err := ServerEntry(opts)
	if err != nil {
		return "", err
	}
	config.MCPServers[ServerName] = entry

	if err := SaveClaudeDesktopConfig(configPath, config); err != nil {
		return "", err
	}
	return configPath, nil
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	const binaryName = "cbc-mcp-server"

	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(os.Getenv("HOME"), ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if absPath, err := filepath.Abs(loc); err == nil {
				return absPath, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", binaryName)
}

// Status represents the current setup status.
type Status struct {
	ClaudeDesktopConfigured bool
	ClaudeDesktopPath       string
	ServerPath              string
	ModelPath               string
	AbnormalLabel           string
	Issues                  []string
}

// GetStatus inspects our Claude Desktop entry and the files it points at.
func GetStatus(configPath string) (*Status, error) {
	configPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	status := &Status{ClaudeDesktopPath: configPath, Issues: []string{}}

	config, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not load Claude Desktop config: %v", err))
		return status, nil
	}

	entry, ok := config.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "CBC analysis server not configured in Claude Desktop")
		return status, nil
	}

	status.ClaudeDesktopConfigured = true
	status.ServerPath = entry.Command
	status.ModelPath = entry.Env[EnvModelPath]
	status.AbnormalLabel = entry.Env[EnvAbnormalLabel]

	if info, err := os.Stat(entry.Command); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
	} else if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
	}
	if status.AbnormalLabel != "0" && status.AbnormalLabel != "1" {
		status.Issues = append(status.Issues, fmt.Sprintf("%s must be 0 or 1", EnvAbnormalLabel))
	}
	if status.ModelPath != "" {
		if _, err := os.Stat(status.ModelPath); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Model file not found: %s", status.ModelPath))
		}
	}

	return status, nil
}

// Validate reports whether the current setup can start the server.
func Validate(configPath string) (bool, []string) {
	status, err := GetStatus(configPath)
	if err != nil {
		return false, []string{err.Error()}
	}
	return len(status.Issues) == 0, status.Issues
}
