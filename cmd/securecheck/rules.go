package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securecheckio/rules-engine/pkg/cli"
	"github.com/securecheckio/rules-engine/pkg/rules/source"
	"github.com/securecheckio/rules-engine/pkg/telemetry/logging"
)

var rulesFlags struct {
	output string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule libraries",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a rule file or directory",
	Long: `Parse and validate every rule in the given file or directory, reporting
the enabled count and each rule's priority key. Rules are listed in load
order, not sorted by priority.

Examples:
  securecheck rules validate rules/
  securecheck rules validate rules/injection.yaml -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)

	rulesValidateCmd.Flags().StringVarP(&rulesFlags.output, "output", "o", "text", "output format (text, json)")
}

type ruleSummary struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Action   string `json:"action"`
	Enabled  bool   `json:"enabled"`
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(&logging.Config{Level: "warn", Format: "text"}, os.Stderr)
	if err != nil {
		return err
	}

	src := source.NewFileSource(args[0], logger)
	list, err := src.LoadRules(cmd.Context())
	if err != nil {
		return err
	}

	summaries := make([]ruleSummary, 0, len(list))
	enabled := 0
	for _, r := range list {
		if r.IsEnabled() {
			enabled++
		}
		summaries = append(summaries, ruleSummary{
			ID:       r.ID,
			Priority: r.PriorityKey(),
			Action:   string(r.Action),
			Enabled:  r.IsEnabled(),
		})
	}

	if cli.OutputFormat(rulesFlags.output) == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, map[string]any{
			"rules":   summaries,
			"total":   len(list),
			"enabled": enabled,
		})
	}

	fmt.Printf("%d rules (%d enabled)\n", len(list), enabled)
	for _, s := range summaries {
		status := ""
		if !s.Enabled {
			status = " (disabled)"
		}
		fmt.Printf("  [%2d] %s %s%s\n", s.Priority, s.ID, s.Action, status)
	}
	return nil
}
