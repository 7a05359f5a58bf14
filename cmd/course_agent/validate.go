package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeW-Krish/ai-course-backend/internal/content"
	"github.com/codeW-Krish/ai-course-backend/internal/observability"
	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
)

var (
	validateOutlineFile string
	validateBatchFile   string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an outline or a lesson batch against its schema",
	Long: "Check a JSON file the way provider output is checked: --outline for a course outline, " +
		"--batch for an array of subtopic lessons. Exits non-zero when validation fails.",
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateOutlineFile, "outline", "", "Path to outline JSON")
	validateCmd.Flags().StringVar(&validateBatchFile, "batch", "", "Path to lesson batch JSON")
	validateCmd.MarkFlagsOneRequired("outline", "batch")
	validateCmd.MarkFlagsMutuallyExclusive("outline", "batch")
	rootCmd.AddCommand(validateCmd)
}

func readJSONFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if validateOutlineFile != "" {
		doc, err := readJSONFile(validateOutlineFile)
		if err != nil {
			return err
		}
		outline, err := content.ParseOutline(doc)
		if err != nil {
			return reportValidation(cmd, err)
		}
		if verbose {
			observability.NewPrinter(cmd.ErrOrStderr()).PrintOutline(outline)
		}
		_, _ = fmt.Fprintf(out, "Validation passed: %d units, %d subtopics\n", len(outline.Units), outline.SubtopicCount())
		return nil
	}

	doc, err := readJSONFile(validateBatchFile)
	if err != nil {
		return err
	}
	batch, err := content.DecodeBatch(doc)
	if err != nil {
		return reportValidation(cmd, err)
	}
	if verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintBatch(batch)
	}
	for _, rej := range batch.Rejected {
		_, _ = fmt.Fprintf(out, "item %d (%q): %v\n", rej.Index, rej.SubtopicTitle, rej.Err)
	}
	if len(batch.Rejected) > 0 {
		return fmt.Errorf("validation failed: %d of %d items rejected",
			len(batch.Rejected), len(batch.Items)+len(batch.Rejected))
	}
	_, _ = fmt.Fprintf(out, "Validation passed: %d items\n", len(batch.Items))
	return nil
}

func reportValidation(cmd *cobra.Command, err error) error {
	var ve *schemas.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	for _, fe := range ve.Errors {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", fe.Field, fe.Message)
	}
	return fmt.Errorf("validation failed: %d errors", len(ve.Errors))
}
