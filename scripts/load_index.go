// load_index embeds and indexes a recipes JSONL file and runs a sample
// query against it, reporting counts as it goes.
//
//	go run scripts/load_index.go -config config.yaml -file data/recipes.jsonl
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/harunnryd/resep/pkg/app"
	"github.com/harunnryd/resep/pkg/search"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	file := flag.String("file", "", "recipes JSONL (defaults to data.recipes_path)")
	query := flag.String("q", "pasta", "sample query to run after loading")
	filter := flag.String("filter", "total_time lt 60", "OData filter for the sample query")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fail(err)
	}
	cfg.Search.LoadOnStart = false
	if *file == "" {
		*file = cfg.Data.RecipesPath
	}
	engine, err := app.NewEngine(app.EngineOptions{Config: cfg})
	if err != nil {
		fail(err)
	}
	defer engine.Close()

	uploaded := 0
	stats, err := engine.LoadRecipes(ctx, *file, func(n int) {
		uploaded += n
		fmt.Printf("\ruploaded %d documents", uploaded)
	})
	fmt.Println()
	if err != nil {
		fail(err)
	}
	color.Green("read %d, uploaded %d in %d batches", stats.Read, stats.Uploaded, stats.Batches)

	if *query == "" {
		return
	}
	req := search.Query{Text: *query, Filter: *filter, K: cfg.Search.K, Select: []string{search.FieldRecipeName}}
	if emb := engine.Embedder(); emb != nil {
		vec, err := emb.Embed(ctx, *query)
		if err != nil {
			fail(err)
		}
		req.Vector = vec
	}
	hits, err := engine.Index().Query(ctx, req)
	if err != nil {
		fail(err)
	}
	for i, h := range hits {
		fmt.Printf("%d. %v (%.3f)\n", i+1, h.Fields[search.FieldRecipeName], h.Score)
	}
}

func fail(err error) {
	color.Red("%v", err)
	os.Exit(1)
}
