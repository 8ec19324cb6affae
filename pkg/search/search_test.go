package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/metrics"
)

func testIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()
	schema := RecipeSchema("test")
	schema.Dimensions = 3
	idx, err := NewIndex(schema, opts...)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	docs := []Document{
		{
			RecipeID: "1", RecipeCategory: "Pasta", RecipeName: "Classic Lasagna",
			Ingredients: []string{"Pasta", "Tomato", "Beef", "Ricotta"},
			Recipe:      "Layer lasagna sheets with beef ragu and ricotta, then bake.",
			Description: "A hearty baked lasagna.", TotalTime: 90,
			RecipeVector: []float32{1, 0, 0},
		},
		{
			RecipeID: "2", RecipeCategory: "Pasta", RecipeName: "Garlic Spaghetti",
			Ingredients: []string{"Pasta", "Garlic", "Salt", "Olive Oil"},
			Recipe:      "Boil spaghetti, toss with garlic and oil.",
			Description: "Quick weeknight pasta.", TotalTime: 20,
			RecipeVector: []float32{0.9, 0.1, 0},
		},
		{
			RecipeID: "3", RecipeCategory: "Salad", RecipeName: "Greek Salad",
			Ingredients: []string{"Tomato", "Cucumber", "Feta", "Salt"},
			Recipe:      "Chop vegetables and toss with feta.",
			Description: "Fresh and crunchy.", TotalTime: 15,
			RecipeVector: []float32{0, 0, 1},
		},
	}
	n, err := idx.Upload(context.Background(), docs)
	if err != nil || n != len(docs) {
		t.Fatalf("upload: n=%d err=%v", n, err)
	}
	return idx
}

func ids(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestQueryText(t *testing.T) {
	idx := testIndex(t)
	rs, err := idx.Query(context.Background(), Query{Text: "lasagna", SemanticConfig: DefaultSemanticConfig})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs) != 1 || rs[0].ID != "1" {
		t.Fatalf("expected lasagna only, got %v", ids(rs))
	}
	if rs[0].Fields[FieldRecipeName] != "Classic Lasagna" {
		t.Fatalf("unexpected fields %v", rs[0].Fields)
	}
}

func TestQueryFilterNumeric(t *testing.T) {
	idx := testIndex(t)
	rs, err := idx.Query(context.Background(), Query{Text: "pasta", Filter: "total_time lt 60"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs) != 1 || rs[0].ID != "2" {
		t.Fatalf("expected spaghetti only, got %v", ids(rs))
	}
}

func TestQueryFilterIngredients(t *testing.T) {
	idx := testIndex(t)
	rs, err := idx.Query(context.Background(), Query{
		Filter: JoinFilters("total_time le 20", "ingredients/any(i: i eq 'salt' or i eq 'beef')"),
		K:      10,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got := ids(rs)
	if len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Fatalf("expected [2 3], got %v", got)
	}
}

func TestQueryVectorTopK(t *testing.T) {
	idx := testIndex(t)
	rs, err := idx.Query(context.Background(), Query{Vector: []float32{1, 0, 0}, K: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got := ids(rs)
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("expected nearest [1 2], got %v", got)
	}
	if math.Abs(rs[0].VectorScore-1) > 1e-9 {
		t.Fatalf("expected cosine 1, got %f", rs[0].VectorScore)
	}
}

func TestQuerySelect(t *testing.T) {
	idx := testIndex(t)
	rs, err := idx.Query(context.Background(), Query{
		Text:   "salad",
		Select: []string{FieldRecipeID, FieldRecipeName, FieldDescription},
	})
	if err != nil || len(rs) == 0 {
		t.Fatalf("query: %v (%d results)", err, len(rs))
	}
	if len(rs[0].Fields) != 3 {
		t.Fatalf("expected 3 selected fields, got %v", rs[0].Fields)
	}
	if _, ok := rs[0].Fields[FieldRecipe]; ok {
		t.Fatalf("recipe field should not be selected")
	}
}

func TestQueryRejectsBadFilter(t *testing.T) {
	idx := testIndex(t)
	_, err := idx.Query(context.Background(), Query{Text: "pasta", Filter: "calories lt 500"})
	if !errorsx.HasReason(err, errorsx.ReasonIndexQuery) {
		t.Fatalf("expected index_query error, got %v", err)
	}
}

func TestUploadRejectsWrongDimensions(t *testing.T) {
	idx := testIndex(t)
	_, err := idx.Upload(context.Background(), []Document{{RecipeID: "9", RecipeVector: []float32{1, 2}}})
	if !errorsx.HasReason(err, errorsx.ReasonIndexUpload) {
		t.Fatalf("expected index_upload error, got %v", err)
	}
	if n, _ := idx.Count(); n != 3 {
		t.Fatalf("failed upload must not change count, got %d", n)
	}
}

func TestResetAndClose(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	idx := testIndex(t, WithObserver(mem))
	if mem.Count(metrics.EventIndexUpload) != 1 {
		t.Fatalf("expected upload event")
	}
	if err := idx.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := idx.Count(); n != 0 {
		t.Fatalf("expected empty index after reset, got %d", n)
	}
	rs, err := idx.Query(context.Background(), Query{Text: "pasta"})
	if err != nil || len(rs) != 0 {
		t.Fatalf("expected no results, got %v (%v)", rs, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := idx.Query(context.Background(), Query{Text: "pasta"}); !errors.Is(err, ErrIndexClosed) {
		t.Fatalf("expected ErrIndexClosed, got %v", err)
	}
}

func TestParseFilter(t *testing.T) {
	valid := []string{
		"",
		"total_time lt 25",
		"total_time ge 10 and total_time le 30",
		"ingredients/any(i: i eq 'salt' or o eq 'pepper')",
		"(total_time gt 5) and not recipe_id eq '3'",
		"recipe_id ne 'it''s'",
	}
	for _, f := range valid {
		if _, err := ParseFilter(f); err != nil {
			t.Fatalf("ParseFilter(%q): %v", f, err)
		}
	}
	invalid := []string{
		"total_time lt",
		"total_time lt 'ten'",
		"total_time between 1",
		"ingredients/any(i: i gt 'salt')",
		"tags/any(t: t eq 'x')",
		"recipe_name eq 'x'",
		"ingredients/any(i: i eq 'salt'",
		"total_time lt 10 )",
	}
	for _, f := range invalid {
		if _, err := ParseFilter(f); err == nil {
			t.Fatalf("ParseFilter(%q) should fail", f)
		}
	}
}

func TestJoinFilters(t *testing.T) {
	if got := JoinFilters("total_time lt 30", " ", "ingredients/any(i: i eq 'salt')"); got != "total_time lt 30 and ingredients/any(i: i eq 'salt')" {
		t.Fatalf("unexpected join %q", got)
	}
	if got := JoinFilters("", ""); got != "" {
		t.Fatalf("expected empty join, got %q", got)
	}
}

func TestParseTotalTime(t *testing.T) {
	cases := map[string]int{"45 mins": 45, "1 hr 10 mins": 70, "2 hrs": 120, "30": 30}
	for in, want := range cases {
		got, err := ParseTotalTime(in)
		if err != nil || got != want {
			t.Fatalf("ParseTotalTime(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "soon", "10 fortnights"} {
		if _, err := ParseTotalTime(bad); err == nil {
			t.Fatalf("ParseTotalTime(%q) should fail", bad)
		}
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors: %f", got)
	}
	if got := Cosine([]float32{1, 2}, []float32{1}); got != 0 {
		t.Fatalf("length mismatch: %f", got)
	}
	if got := Cosine([]float32{2, 2}, []float32{1, 1}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("parallel vectors: %f", got)
	}
}
