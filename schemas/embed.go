// Package schemas embeds the JSON Schema documents that LLM output is validated against.
package schemas

import (
	"embed"
	"fmt"
)

// Schema file names.
const (
	Outline         = "outline.schema.json"
	SubtopicContent = "subtopic_content.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Load returns the raw schema document with the given file name.
func Load(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return string(data), nil
}

// Names lists the embedded schema files.
func Names() []string {
	return []string{Outline, SubtopicContent}
}
