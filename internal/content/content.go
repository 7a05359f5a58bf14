package content

import (
	"fmt"
	"strconv"

	"github.com/codeW-Krish/ai-course-backend/internal/schemas"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
	schemafiles "github.com/codeW-Krish/ai-course-backend/schemas"
)

var (
	outlineSchema = schemas.MustCompile(schemafiles.Outline)
	itemSchema    = schemas.MustCompile(schemafiles.SubtopicContent)
)

// ParseOutline normalizes and validates a decoded outline. Failures are returned as
// *schemas.ValidationError with field paths.
func ParseOutline(raw any) (*types.Outline, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, schemas.NewValidationError(schemas.RootField, fmt.Sprintf("expected an object, got %s", kindOf(raw)))
	}

	doc := normalizeOutline(obj)
	if err := outlineSchema.Validate(doc); err != nil {
		return nil, err
	}

	outline := &types.Outline{}
	outline.CourseTitle, _ = doc["course_title"].(string)
	outline.Difficulty, _ = doc["difficulty"].(string)
	for _, ru := range doc["units"].([]any) {
		u := ru.(map[string]any)
		outline.Units = append(outline.Units, types.OutlineUnit{
			Position:  toInt(u["position"]),
			Title:     u["title"].(string),
			Subtopics: toStrings(u["subtopics"]),
		})
	}
	return outline, nil
}

// TruncateUnits returns a shallow copy of a decoded outline with its units list cut to at
// most limit entries, and the number of units it held before. Units past limit are never
// validated. count is -1 when raw has no units list; raw is then returned unchanged.
func TruncateUnits(raw any, limit int) (truncated any, count int) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return raw, -1
	}
	units, ok := obj["units"].([]any)
	if !ok {
		return raw, -1
	}
	if len(units) <= limit {
		return raw, len(units)
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	out["units"] = units[:limit]
	return out, len(units)
}

// Rejected is a batch item that failed the content contract.
type Rejected struct {
	Index int
	// SubtopicTitle is best effort; empty when the item had none.
	SubtopicTitle string
	Err           *schemas.ValidationError
}

// Batch is the outcome of decoding one provider response for a subtopic batch.
type Batch struct {
	Items    []types.SubtopicContent
	Rejected []Rejected
}

// DecodeBatch validates each element of a batch response independently. A response that is
// not an array fails as a whole with *schemas.ValidationError; malformed elements are
// collected in Rejected and never fail the batch.
func DecodeBatch(raw any) (*Batch, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, schemas.NewValidationError(schemas.RootField, fmt.Sprintf("expected an array of subtopic content, got %s", kindOf(raw)))
	}

	batch := &Batch{}
	for i, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			batch.Rejected = append(batch.Rejected, Rejected{
				Index: i,
				Err:   schemas.NewValidationError(strconv.Itoa(i), fmt.Sprintf("expected an object, got %s", kindOf(el))),
			})
			continue
		}

		doc := normalizeItem(obj)
		if err := itemSchema.Validate(doc); err != nil {
			title, _ := doc["subtopic_title"].(string)
			batch.Rejected = append(batch.Rejected, Rejected{
				Index:         i,
				SubtopicTitle: title,
				Err:           asValidationError(err).WithPrefix(strconv.Itoa(i)),
			})
			continue
		}
		batch.Items = append(batch.Items, toSubtopicContent(doc))
	}
	return batch, nil
}

func toSubtopicContent(doc map[string]any) types.SubtopicContent {
	c := types.SubtopicContent{
		SubtopicTitle:  doc["subtopic_title"].(string),
		Title:          doc["title"].(string),
		WhyThisMatters: doc["why_this_matters"].(string),
		CoreConcepts:   []types.CoreConcept{},
		Examples:       []types.Example{},
	}
	for _, rc := range doc["core_concepts"].([]any) {
		m := rc.(map[string]any)
		c.CoreConcepts = append(c.CoreConcepts, types.CoreConcept{
			Concept:     m["concept"].(string),
			Explanation: m["explanation"].(string),
		})
	}
	for _, re := range doc["examples"].([]any) {
		m := re.(map[string]any)
		c.Examples = append(c.Examples, types.Example{
			Type:    m["type"].(string),
			Content: m["content"].(string),
		})
	}
	if s, ok := doc["code_or_math"].(string); ok {
		c.CodeOrMath = &s
	}
	if kws, ok := doc["youtube_keywords"].([]any); ok {
		c.YoutubeKeywords = toStrings(kws)
	}
	return c
}

func asValidationError(err error) *schemas.ValidationError {
	if ve, ok := err.(*schemas.ValidationError); ok {
		return ve
	}
	return schemas.NewValidationError(schemas.RootField, err.Error())
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
