package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Document is one recipe record as stored in the index.
type Document struct {
	RecipeID       string    `json:"recipe_id"`
	RecipeCategory string    `json:"recipe_category"`
	RecipeName     string    `json:"recipe_name"`
	Ingredients    []string  `json:"ingredients"`
	Recipe         string    `json:"recipe"`
	Description    string    `json:"description"`
	TotalTime      int       `json:"total_time"`
	RecipeVector   []float32 `json:"recipe_vector,omitempty"`
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// EmbeddingText is the text a document's vector is computed from: the recipe
// body, falling back to name and description for records without one.
func (d Document) EmbeddingText() string {
	if body := strings.TrimSpace(d.Recipe); body != "" {
		return body
	}
	return strings.TrimSpace(d.RecipeName + "\n" + d.Description)
}

// Fields renders the document as a field map. An empty selection returns
// every field except the vector.
func (d Document) Fields(selected ...string) map[string]any {
	all := map[string]any{
		FieldRecipeID:       d.RecipeID,
		FieldRecipeCategory: d.RecipeCategory,
		FieldRecipeName:     d.RecipeName,
		FieldIngredients:    append([]string(nil), d.Ingredients...),
		FieldRecipe:         d.Recipe,
		FieldDescription:    d.Description,
		FieldTotalTime:      d.TotalTime,
	}
	if len(selected) == 0 {
		return all
	}
	out := make(map[string]any, len(selected))
	for _, name := range selected {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (d Document) validate(dims int) error {
	if strings.TrimSpace(d.RecipeID) == "" {
		return fmt.Errorf("document has empty %s", FieldRecipeID)
	}
	if dims > 0 && len(d.RecipeVector) > 0 && len(d.RecipeVector) != dims {
		return fmt.Errorf("document %s: vector has %d dimensions, index expects %d", d.RecipeID, len(d.RecipeVector), dims)
	}
	return nil
}

// ParseTotalTime reads durations written like "45 mins" or "1 hr 10 mins"
// into whole minutes.
func ParseTotalTime(raw string) (int, error) {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty total time")
	}
	total := 0
	for i := 0; i < len(fields); i++ {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return 0, fmt.Errorf("parse total time %q: %w", raw, err)
		}
		unit := "mins"
		if i+1 < len(fields) {
			unit = fields[i+1]
			i++
		}
		switch {
		case strings.HasPrefix(unit, "h"):
			total += n * 60
		case strings.HasPrefix(unit, "m"):
			total += n
		default:
			return 0, fmt.Errorf("parse total time %q: unknown unit %q", raw, unit)
		}
	}
	return total, nil
}
