package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/logger"
	"github.com/codeW-Krish/ai-course-backend/internal/observability"
	"github.com/codeW-Krish/ai-course-backend/internal/outline"
)

var (
	outlineReq     outline.Request
	outlineOutFile string
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Draft a course outline with the LLM without storing it",
	Long: "Ask the configured provider for a course outline and print it as JSON. " +
		"Useful for trying prompts and models before creating courses through the API.",
	RunE: runOutline,
}

func init() {
	f := outlineCmd.Flags()
	f.StringVar(&outlineReq.Title, "title", "", "Course title (required)")
	f.StringVar(&outlineReq.Description, "description", "", "Course description (required)")
	f.IntVar(&outlineReq.NumUnits, "units", 3, "Number of units")
	f.StringVar(&outlineReq.Difficulty, "difficulty", "Beginner", "Beginner, Intermediate or Advanced")
	f.BoolVar(&outlineReq.IncludeVideos, "videos", false, "Ask for YouTube-friendly subtopics")
	f.StringVar(&outlineReq.Provider, "provider", "", "Provider name (default from config)")
	f.StringVar(&outlineReq.Model, "model", "", "Model override")
	f.StringVarP(&outlineOutFile, "out", "o", "", "Write JSON to this file instead of stdout")
	_ = outlineCmd.MarkFlagRequired("title")
	_ = outlineCmd.MarkFlagRequired("description")
	rootCmd.AddCommand(outlineCmd)
}

func runOutline(cmd *cobra.Command, _ []string) error {
	// Fail on bad flags before paying for provider setup
	if err := outlineReq.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()
	providers, err := llm.NewRegistryFromKeys(ctx, cfg.ProviderKeys(), cfg.LLM.Provider)
	if err != nil {
		return fmt.Errorf("failed to configure LLM providers: %w", err)
	}
	defer func() { _ = providers.Close() }()

	// Drafting never touches the store
	svc := outline.NewService(nil, providers, log)
	draft, err := svc.Draft(ctx, &outlineReq)
	if err != nil {
		return fmt.Errorf("failed to draft outline: %w", err)
	}
	if verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintOutline(draft)
	}

	jsonBytes, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if outlineOutFile == "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
		return nil
	}
	if err := os.WriteFile(outlineOutFile, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Outline written to %s\n", outlineOutFile)
	return nil
}
