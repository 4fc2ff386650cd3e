// cmd/tools/registry-updater/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"decision-workers/internal/alerting"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/models"
	"decision-workers/pkg/registry"
)

var registryPath string

var rootCmd = &cobra.Command{
	Use:           "registry-updater",
	Short:         "Maintain the alert rules registry",
	SilenceUsage:  true,
	SilenceErrors: true,
	Example: `  registry-updater add-pattern --pattern "inventory.*" --severity high
  registry-updater bind --eventType roas.drop.detected --rule roas-drop
  registry-updater classify --event testdata/stockout.json
  registry-updater validate --path configs/alert-rules.json`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryPath, "path", "configs/alert-rules.json", "Path to registry file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the alert rules registry",
		RunE:  func(cmd *cobra.Command, args []string) error { return validateRegistry() },
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show streams, patterns, bindings and built-in rules",
		RunE:  func(cmd *cobra.Command, args []string) error { return listRegistry() },
	})

	patternCmd := &cobra.Command{
		Use:   "add-pattern",
		Short: "Append an alert type-pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, _ := cmd.Flags().GetString("pattern")
			severity, _ := cmd.Flags().GetString("severity")
			return addPattern(pattern, severity)
		},
	}
	patternCmd.Flags().String("pattern", "", "Event type pattern (literal, wildcard or regex)")
	patternCmd.Flags().String("severity", "medium", "Severity for events matching the pattern")
	patternCmd.MarkFlagRequired("pattern")
	rootCmd.AddCommand(patternCmd)

	bindCmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind an exact event type to a rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType, _ := cmd.Flags().GetString("eventType")
			ruleID, _ := cmd.Flags().GetString("rule")
			description, _ := cmd.Flags().GetString("description")
			return bindRule(eventType, ruleID, description)
		},
	}
	bindCmd.Flags().String("eventType", "", "Exact event type (e.g., inventory.stockout.warning)")
	bindCmd.Flags().String("rule", "", "Registered rule id (see 'list')")
	bindCmd.Flags().String("description", "", "Description")
	bindCmd.MarkFlagRequired("eventType")
	bindCmd.MarkFlagRequired("rule")
	rootCmd.AddCommand(bindCmd)

	streamCmd := &cobra.Command{
		Use:   "add-stream",
		Short: "Add a monitored stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			return addStream(name)
		},
	}
	streamCmd.Flags().String("name", "", "Monitored stream (event source)")
	streamCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(streamCmd)

	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one event file against the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			eventFile, _ := cmd.Flags().GetString("event")
			return classifyEvent(cmd.Context(), eventFile)
		},
	}
	classifyCmd.Flags().String("event", "", "Path to a CloudEvents JSON document")
	classifyCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(classifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadOrCreate returns an empty registry when the file does not exist yet.
func loadOrCreate() (*registry.RuleRegistry, error) {
	reg, err := registry.LoadRegistry(registryPath)
	if errors.Is(err, os.ErrNotExist) {
		return &registry.RuleRegistry{Version: "1.0.0"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

// build checks reg the way the worker manager does at startup.
func build(reg *registry.RuleRegistry) (*alerting.Registry, error) {
	if problems := reg.Lint(); len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return alerting.Build(alerting.DefinitionFromFile(reg))
}

// save refuses to write a registry the worker manager would reject.
func save(reg *registry.RuleRegistry) error {
	if _, err := build(reg); err != nil {
		return fmt.Errorf("registry would be invalid: %w", err)
	}
	return registry.SaveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	built, err := build(reg)
	if err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	fmt.Printf("Registry validation passed. %d streams, %d patterns, %d bindings.\n",
		len(built.Streams()), len(built.Patterns()), len(built.Bindings()))
	return nil
}

func listRegistry() error {
	reg, err := loadOrCreate()
	if err != nil {
		return err
	}
	built, err := build(reg)
	if err != nil {
		return err
	}

	streams := built.Streams()
	if len(streams) == 0 {
		fmt.Println("Streams: (all)")
	} else {
		fmt.Printf("Streams: %s\n", strings.Join(streams, ", "))
	}

	fmt.Println("Patterns (first match wins):")
	for i, p := range built.Patterns() {
		fmt.Printf("  %d. %-40s %-8s %s\n", i+1, p.Raw, p.Severity, p.Kind)
	}

	fmt.Println("Bindings:")
	for _, b := range built.Bindings() {
		fmt.Printf("  %-40s -> %s\n", b.EventType, b.RuleID)
	}

	fmt.Printf("Rules: %s\n", strings.Join(built.RuleIDs(), ", "))
	return nil
}

func addPattern(pattern, severity string) error {
	reg, err := loadOrCreate()
	if err != nil {
		return err
	}
	for _, p := range reg.Patterns {
		if p.Pattern == pattern {
			return fmt.Errorf("pattern %s already exists", pattern)
		}
	}
	reg.Patterns = append(reg.Patterns, registry.PatternEntry{Pattern: pattern, Severity: severity})
	if err := save(reg); err != nil {
		return err
	}
	fmt.Printf("Added pattern: %s (%s)\n", pattern, severity)
	return nil
}

// bindRule replaces an existing binding for eventType.
func bindRule(eventType, ruleID, description string) error {
	reg, err := loadOrCreate()
	if err != nil {
		return err
	}
	entry := registry.RuleEntry{EventType: eventType, RuleID: ruleID, Description: description}

	replaced := false
	for i := range reg.Rules {
		if reg.Rules[i].EventType == eventType {
			reg.Rules[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		reg.Rules = append(reg.Rules, entry)
	}

	if err := save(reg); err != nil {
		return err
	}
	fmt.Printf("Bound %s to rule %s\n", eventType, ruleID)
	return nil
}

func addStream(name string) error {
	reg, err := loadOrCreate()
	if err != nil {
		return err
	}
	for _, s := range reg.Streams {
		if s == name {
			return fmt.Errorf("stream %s already monitored", name)
		}
	}
	reg.Streams = append(reg.Streams, name)
	if err := save(reg); err != nil {
		return err
	}
	fmt.Printf("Added stream: %s\n", name)
	return nil
}

// classifyEvent dry-runs the classifier against one event, without dedup.
func classifyEvent(ctx context.Context, path string) error {
	reg, err := loadOrCreate()
	if err != nil {
		return err
	}
	built, err := build(reg)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ingestor := alerting.NewIngestor(alerting.NewClassifier(built, logger.NewNoOpLogger()), nil, nil, logger.NewNoOpLogger())
	result, err := ingestor.Ingest(ctx, raw)
	if err != nil {
		return err
	}

	switch {
	case result.Skipped != "":
		fmt.Printf("Skipped: %s\n", result.Skipped)
	case !result.Verdict.IsAlert:
		fmt.Println("Not an alert")
	default:
		fmt.Printf("Severity: %s (matched by %s", result.Verdict.Severity, result.Verdict.MatchedBy)
		if result.Verdict.RuleID != "" {
			fmt.Printf(", rule %s", result.Verdict.RuleID)
		}
		if result.Verdict.Pattern != "" {
			fmt.Printf(", pattern %s", result.Verdict.Pattern)
		}
		fmt.Println(")")
		if msg := result.Verdict.RuleError(); msg != "" {
			fmt.Printf("Rule error: %s (downgraded to %s)\n", msg, models.SeverityMedium)
		}
	}
	return nil
}
