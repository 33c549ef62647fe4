// Command cbc-cli runs the CBC analysis pipeline against local report files without starting a
// server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cbc-analysis-server/internal/app"
	"github.com/cbc-analysis-server/internal/config"
	"github.com/cbc-analysis-server/internal/domain"
	"github.com/cbc-analysis-server/internal/service"
	"github.com/cbc-analysis-server/pkg/doctext"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "cbc-cli",
		Short:        "Analyse complete blood count reports from the command line",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Directory containing config.yaml")
	rootCmd.PersistentFlags().Bool("json", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log pipeline activity to stderr")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(manualCmd())
	rootCmd.AddCommand(rulesCmd())
	return rootCmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract, classify and report on a PDF or text report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			layout, err := layoutFlag(cmd, cfg)
			if err != nil {
				return err
			}
			text, err := readDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			pipeline, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			analysis, err := pipeline.Analyzer.AnalyzeText(cmd.Context(), text, layout)
			if err != nil {
				return err
			}
			return printAnalysis(cmd, analysis)
		},
	}
	cmd.Flags().String("layout", "", "Report layout: header_value_line or labeled_table")
	return cmd
}

// extract needs no classifier, so it only loads the extractor section of the configuration.
func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the feature record found in a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			layout, err := layoutFlag(cmd, cfg)
			if err != nil {
				return err
			}
			text, err := readDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rec, err := service.NewExtractor(cfg.Extractor).ExtractText(text, layout)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, f := range domain.CanonicalFeatures {
				if f == domain.Sex {
					fmt.Fprintf(w, "%s\t%s\n", f.DisplayName(), rec.Sex)
					continue
				}
				fmt.Fprintf(w, "%s\t%g\n", f.DisplayName(), rec.Value(f))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("layout", "", "Report layout: header_value_line or labeled_table")
	return cmd
}

func manualCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Analyse a panel given as flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			values := make(map[domain.Feature]float64)
			for _, f := range domain.CanonicalFeatures {
				if f == domain.Sex {
					continue
				}
				flag := manualFlags[f]
				if !cmd.Flags().Changed(flag) {
					return domain.NewMissingFeatureError(f)
				}
				v, err := cmd.Flags().GetFloat64(flag)
				if err != nil {
					return err
				}
				values[f] = v
			}
			rawSex, _ := cmd.Flags().GetString("sex")
			sex, ok := domain.ParseSex(rawSex)
			if !ok {
				sex = domain.SexValue(rawSex)
			}
			rec, err := domain.NewFeatureRecord(values, sex)
			if err != nil {
				return err
			}

			pipeline, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			analysis, err := pipeline.Analyzer.AnalyzeRecord(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return printAnalysis(cmd, analysis)
		},
	}
	for _, f := range domain.CanonicalFeatures {
		if f == domain.Sex {
			continue
		}
		cmd.Flags().Float64(manualFlags[f], 0, f.DisplayName())
	}
	cmd.Flags().String("sex", "", "M or F")
	return cmd
}

var manualFlags = map[domain.Feature]string{
	domain.Hematocrit:  "hct",
	domain.Hemoglobin:  "hgb",
	domain.Erythrocyte: "rbc",
	domain.Leucocyte:   "wbc",
	domain.Thrombocyte: "plt",
	domain.MCH:         "mch",
	domain.MCHC:        "mchc",
	domain.MCV:         "mcv",
	domain.Age:         "age",
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the clinical rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := service.NewRuleEngine().Rules()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), rules)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for i, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Name, r.Description)
			}
			return w.Flush()
		},
	}
}

func loadConfig(cmd *cobra.Command) (*domain.Config, *logrus.Logger, error) {
	var opts []config.Option
	if dir, _ := cmd.Flags().GetString("config"); dir != "" {
		opts = append(opts, config.WithConfigPaths(dir))
	}
	manager, err := config.NewManager(opts...)
	if err != nil {
		return nil, nil, err
	}
	cfg := manager.GetConfig()

	logging := cfg.Logging
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		logging.Level = "warn"
	}
	return cfg, app.NewLogger(logging), nil
}

func layoutFlag(cmd *cobra.Command, cfg *domain.Config) (domain.Layout, error) {
	raw, _ := cmd.Flags().GetString("layout")
	if raw == "" {
		raw = cfg.Extractor.Layout
	}
	return domain.ParseLayout(raw)
}

func readDocument(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return doctext.NewSource().Text(ctx, filepath.Base(path), data)
}

func printAnalysis(cmd *cobra.Command, analysis *service.Analysis) error {
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, map[string]any{
			"prediction": analysis.Prediction(),
			"record":     analysis.Record,
			"result":     analysis.Result,
			"report":     analysis.Report,
		})
	}
	fmt.Fprintf(out, "Prediction: %s\n\n%s\n", analysis.Prediction(), analysis.Report)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
