package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/search"
	"github.com/harunnryd/resep/pkg/tools"
)

var QueryRecipesSignature = tools.Signature{
	Name:        "query_recipes",
	Description: "Retrieve recipes from the recipe search index",
	Params: []tools.Param{
		{Name: "query", Type: tools.TypeString, Required: true, Description: "The query string to search for recipes"},
		{
			Name: "ingredients_filter", Type: tools.TypeString,
			Description: "The odata filter to apply for the ingredients field. Only actual ingredient names should be used in this filter. If you're not sure something is an ingredient, don't include this filter. Example: ingredients/any(i: i eq 'salt' or i eq 'pepper')",
		},
		{
			Name: "time_filter", Type: tools.TypeString,
			Description: "The odata filter to apply for the total_time field. If a user asks for a quick or easy recipe, you should filter down to recipes that will take less than 30 minutes. Example: total_time lt 25",
		},
	},
}

// RecipeFields are the fields query_recipes reads back.
var RecipeFields = []string{
	search.FieldRecipeID,
	search.FieldRecipe,
	search.FieldRecipeCategory,
	search.FieldRecipeName,
	search.FieldDescription,
}

type RecipeOptions struct {
	K              int
	SemanticConfig string
}

type recipeArgs struct {
	Query             string `json:"query"`
	IngredientsFilter string `json:"ingredients_filter"`
	TimeFilter        string `json:"time_filter"`
}

// QueryRecipes embeds the query, runs a hybrid search and renders the hits as
// prompt text, one "Recipe <id>: <name>: <description>" line per hit.
func QueryRecipes(searcher search.Searcher, embedder search.Embedder, opts RecipeOptions) tools.Tool {
	if opts.K <= 0 {
		opts.K = search.DefaultK
	}
	if opts.SemanticConfig == "" {
		opts.SemanticConfig = search.DefaultSemanticConfig
	}
	return tools.Typed(QueryRecipesSignature, func(ctx context.Context, in recipeArgs) (string, error) {
		var vec []float32
		if embedder != nil {
			v, err := embedder.Embed(ctx, in.Query)
			if err != nil {
				return "", errorsx.Wrap(fmt.Errorf("embed query: %w", err), errorsx.ReasonEmbedding)
			}
			vec = v
		}
		results, err := searcher.Query(ctx, search.Query{
			Text:           in.Query,
			Vector:         vec,
			K:              opts.K,
			Filter:         search.JoinFilters(in.TimeFilter, in.IngredientsFilter),
			SemanticConfig: opts.SemanticConfig,
			Select:         RecipeFields,
		})
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, r := range results {
			fmt.Fprintf(&b, "Recipe %v: %v: %v\n ", r.Fields[search.FieldRecipeID], r.Fields[search.FieldRecipeName], r.Fields[search.FieldDescription])
		}
		return b.String(), nil
	})
}
