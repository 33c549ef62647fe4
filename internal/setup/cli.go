package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CLI provides command-line interface for setup operations.
type CLI struct {
	ConfigPath string // overrides the detected Claude Desktop config path
	reader     *bufio.Reader
	out        io.Writer
}

// NewCLI creates a setup CLI reading answers from stdin and printing to stdout.
func NewCLI() *CLI {
	return NewCLIWithIO(os.Stdin, os.Stdout)
}

// NewCLIWithIO creates a setup CLI over the given streams.
func NewCLIWithIO(in io.Reader, out io.Writer) *CLI {
	return &CLI{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "claude-desktop":
		return c.setupClaudeDesktop(args[1:])
	case "status":
		return c.showStatus()
	case "validate":
		return c.validate()
	case "wizard":
		return c.runWizard()
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

func (c *CLI) showHelp() error {
	fmt.Fprintln(c.out, `
CBC Analysis MCP Server Setup

Usage:
  cbc-mcp-server setup <command> [options]

Commands:
  wizard          Interactive setup wizard
  claude-desktop  Configure Claude Desktop integration
  status          Show current setup status
  validate        Validate current configuration

Options for claude-desktop:
  --binary, -b PATH          Server binary (defaults to this executable)
  --model, -m PATH           Linear model JSON
  --scaler, -s PATH          Standard scaler JSON
  --abnormal-label, -l 0|1   Classifier label that means abnormal (required)
  --layout LAYOUT            header_value_line or labeled_table
  --config PATH              Claude Desktop config file
  --auto, -y                 Do not ask for confirmation

Example:
  cbc-mcp-server setup claude-desktop --model ./model/cbc_model.json --abnormal-label 1`)
	return nil
}

func (c *CLI) setupClaudeDesktop(args []string) error {
	opts := SetupOptions{ConfigPath: c.ConfigPath}

	for i := 0; i < len(args); i++ {
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}
		switch args[i] {
		case "--binary", "-b":
			opts.BinaryPath = next()
		case "--model", "-m":
			opts.ModelPath = next()
		case "--scaler", "-s":
			opts.ScalerPath = next()
		case "--abnormal-label", "-l":
			opts.AbnormalLabel = next()
		case "--layout":
			opts.Layout = next()
		case "--config":
			opts.ConfigPath = next()
		case "--auto", "-y":
			opts.AutoConfirm = true
		}
	}

	if opts.BinaryPath == "" {
		if execPath, err := os.Executable(); err == nil {
			opts.BinaryPath = execPath
		}
	}
	if opts.AbnormalLabel == "" {
		return fmt.Errorf("--abnormal-label is required (0 or 1)")
	}

	configPath, _ := resolveConfigPath(opts.ConfigPath)
	fmt.Fprintln(c.out, "Claude Desktop Configuration")
	fmt.Fprintln(c.out, "============================")
	fmt.Fprintf(c.out, "Config file: %s\n", configPath)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.ModelPath != "" {
		fmt.Fprintf(c.out, "Model: %s\n", opts.ModelPath)
	}
	fmt.Fprintf(c.out, "Abnormal label: %s\n\n", opts.AbnormalLabel)

	if !opts.AutoConfirm && !c.confirm("Proceed with configuration? [Y/n]: ", true) {
		fmt.Fprintln(c.out, "Configuration cancelled.")
		return nil
	}

	if _, err := ConfigureClaudeDesktop(opts); err != nil {
		return fmt.Errorf("failed to configure Claude Desktop: %w", err)
	}

	fmt.Fprintln(c.out, "\n✓ Claude Desktop configured successfully!")
	fmt.Fprintln(c.out, "Restart Claude Desktop, then ask it to analyse a CBC report.")
	return nil
}

func (c *CLI) showStatus() error {
	status, err := GetStatus(c.ConfigPath)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "CBC Analysis MCP Server Status")
	fmt.Fprintln(c.out, "==============================")
	fmt.Fprintf(c.out, "Config path: %s\n", status.ClaudeDesktopPath)
	if !status.ClaudeDesktopConfigured {
		fmt.Fprintln(c.out, "Status: ✗ Not configured")
	} else {
		fmt.Fprintln(c.out, "Status: ✓ Configured")
		fmt.Fprintf(c.out, "Binary: %s\n", status.ServerPath)
		fmt.Fprintf(c.out, "Model: %s\n", valueOr(status.ModelPath, "(default)"))
		fmt.Fprintf(c.out, "Abnormal label: %s\n", valueOr(status.AbnormalLabel, "(unset)"))
	}

	if len(status.Issues) > 0 {
		fmt.Fprintln(c.out, "\nIssues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(c.out, "  ⚠ %s\n", issue)
		}
	}
	return nil
}

func (c *CLI) validate() error {
	valid, issues := Validate(c.ConfigPath)
	if valid {
		fmt.Fprintln(c.out, "✓ Configuration is valid!")
		return nil
	}

	fmt.Fprintln(c.out, "✗ Configuration has issues:")
	for _, issue := range issues {
		fmt.Fprintf(c.out, "  - %s\n", issue)
	}
	return fmt.Errorf("configuration has %d issue(s)", len(issues))
}

func (c *CLI) runWizard() error {
	fmt.Fprintln(c.out, "CBC Analysis MCP Server - Setup Wizard")
	fmt.Fprintln(c.out)

	execPath, _ := os.Executable()
	opts := SetupOptions{
		ConfigPath:    c.ConfigPath,
		BinaryPath:    c.ask("Server binary path", execPath),
		ModelPath:     c.ask("Model file", "model/cbc_model.json"),
		ScalerPath:    c.ask("Scaler file (blank for none)", ""),
		AbnormalLabel: c.ask("Which classifier label means abnormal, 0 or 1", ""),
	}

	if _, err := os.Stat(opts.BinaryPath); err != nil {
		fmt.Fprintf(c.out, "⚠ Warning: Binary not found at %s\n", opts.BinaryPath)
		if !c.confirm("Continue anyway? [y/N]: ", false) {
			return fmt.Errorf("setup cancelled")
		}
	}

	configPath, err := ConfigureClaudeDesktop(opts)
	if err != nil {
		return fmt.Errorf("failed to configure: %w", err)
	}

	fmt.Fprintf(c.out, "\n✓ Wrote %s\n", configPath)
	fmt.Fprintln(c.out, "Restart Claude Desktop to load the new configuration.")
	return nil
}

func (c *CLI) ask(prompt, def string) string {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", prompt)
	}
	answer, _ := c.reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func (c *CLI) confirm(prompt string, def bool) bool {
	fmt.Fprint(c.out, prompt)
	response, _ := c.reader.ReadString('\n')
	switch strings.TrimSpace(strings.ToLower(response)) {
	case "":
		return def
	case "y", "yes":
		return true
	default:
		return false
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
