package builtin

import (
	"time"

	"github.com/harunnryd/resep/pkg/search"
	"github.com/harunnryd/resep/pkg/tools"
)

// Deps are the collaborators some tools need. Tools whose collaborators are
// missing are left out.
type Deps struct {
	StockDataPath string
	Searcher      search.Searcher
	Embedder      search.Embedder
	Recipes       RecipeOptions
	Now           func() time.Time
}

// All returns every tool that can be built from deps, in a stable order.
func All(deps Deps) []tools.Tool {
	out := []tools.Tool{
		Weather(),
		CurrentTime(deps.Now),
		Calculator(),
	}
	if deps.StockDataPath != "" {
		out = append(out, StockMarketData(deps.StockDataPath))
	}
	if deps.Searcher != nil {
		out = append(out, QueryRecipes(deps.Searcher, deps.Embedder, deps.Recipes))
	}
	return out
}

// Select picks tools by name from All(deps), keeping the order of names.
// Unknown names are ignored.
func Select(deps Deps, names ...string) []tools.Tool {
	byName := make(map[string]tools.Tool)
	for _, t := range All(deps) {
		byName[t.Signature().Name] = t
	}
	var out []tools.Tool
	for _, n := range names {
		if t, ok := byName[n]; ok {
			out = append(out, t)
		}
	}
	return out
}
