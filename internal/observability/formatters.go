// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/codeW-Krish/ai-course-backend/internal/content"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintOutline outputs the units of an outline with their first subtopics.
func (p *Printer) PrintOutline(outline *types.Outline) {
	if outline == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Course:     %s\n", outline.CourseTitle))
	if outline.Difficulty != "" {
		sb.WriteString(fmt.Sprintf("Difficulty: %s\n", outline.Difficulty))
	}
	sb.WriteString(fmt.Sprintf("Units: %d  Subtopics: %d\n", len(outline.Units), outline.SubtopicCount()))

	for _, u := range outline.Units {
		sb.WriteString(fmt.Sprintf("\n%d. %s\n", u.Position, u.Title))
		count := min(len(u.Subtopics), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", u.Subtopics[i]))
		}
		if len(u.Subtopics) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(u.Subtopics)-maxItemsToShow))
		}
	}

	p.printBox("COURSE OUTLINE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatch outputs the accepted lessons of a batch and why items were rejected.
func (p *Printer) PrintBatch(batch *content.Batch) {
	if batch == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Accepted: %d  Rejected: %d\n", len(batch.Items), len(batch.Rejected)))

	if len(batch.Items) > 0 {
		sb.WriteString("\n")
		count := min(len(batch.Items), maxItemsToShow)
		for i := 0; i < count; i++ {
			item := batch.Items[i]
			sb.WriteString(fmt.Sprintf("✓ %s\n", item.SubtopicTitle))
			sb.WriteString(fmt.Sprintf("    %d concepts, %d examples", len(item.CoreConcepts), len(item.Examples)))
			if item.CodeOrMath != nil {
				sb.WriteString(", code")
			}
			sb.WriteString("\n")
		}
		if len(batch.Items) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(batch.Items)-maxItemsToShow))
		}
	}

	for _, rej := range batch.Rejected {
		title := rej.SubtopicTitle
		if title == "" {
			title = fmt.Sprintf("item %d", rej.Index)
		}
		sb.WriteString(fmt.Sprintf("\n✗ %s\n", title))
		for _, fe := range rej.Err.Errors {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", fe.Field, fe.Message))
		}
	}

	p.printBox("LESSON BATCH", strings.TrimSuffix(sb.String(), "\n"))
}
