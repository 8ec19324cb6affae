package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/metrics"
)

// ErrIndexClosed is returned by every operation on a closed Index.
var ErrIndexClosed = errors.New("search index closed")

// DefaultK is the number of results returned when a query does not set K.
const DefaultK = 3

// DefaultAlpha weights BM25 and vector scores equally.
const DefaultAlpha = 0.5

// Query is one hybrid search request.
type Query struct {
	Text           string
	Vector         []float32
	K              int
	Filter         string
	SemanticConfig string
	Select         []string
}

// Result is one ranked hit.
type Result struct {
	ID          string
	Score       float64
	TextScore   float64
	VectorScore float64
	Fields      map[string]any
}

// Searcher runs hybrid queries.
type Searcher interface {
	Query(ctx context.Context, q Query) ([]Result, error)
}

// Index is an in-memory recipe index.
type Index struct {
	mu     sync.RWMutex
	schema Schema
	text   bleve.Index
	docs   map[string]Document
	closed bool

	alpha  float64
	logger *slog.Logger
	obs    metrics.Observer
}

type Option func(*Index)

// WithAlpha sets the BM25 weight in [0,1]; the vector weight is 1-alpha.
func WithAlpha(alpha float64) Option {
	return func(i *Index) {
		if alpha >= 0 && alpha <= 1 {
			i.alpha = alpha
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Index) { i.logger = logging.NewComponentLogger(l, "search") }
}

func WithObserver(obs metrics.Observer) Option {
	return func(i *Index) { i.obs = metrics.OrNoop(obs) }
}

// NewIndex creates an empty index for schema.
func NewIndex(schema Schema, opts ...Option) (*Index, error) {
	idx := &Index{
		schema: schema,
		docs:   make(map[string]Document),
		alpha:  DefaultAlpha,
		logger: logging.NewComponentLogger(nil, "search"),
		obs:    metrics.NoopObserver{},
	}
	for _, opt := range opts {
		opt(idx)
	}
	text, err := bleve.NewMemOnly(schema.mapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	idx.text = text
	return idx, nil
}

func (i *Index) Schema() Schema { return i.schema }

// Upload adds or replaces documents and returns how many were stored.
func (i *Index) Upload(ctx context.Context, docs []Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return 0, ErrIndexClosed
	}
	batch := i.text.NewBatch()
	for _, d := range docs {
		if err := d.validate(i.schema.Dimensions); err != nil {
			return 0, errorsx.Wrap(err, errorsx.ReasonIndexUpload)
		}
		if err := batch.Index(d.RecipeID, textRecord(d)); err != nil {
			return 0, errorsx.Wrap(fmt.Errorf("index %s: %w", d.RecipeID, err), errorsx.ReasonIndexUpload)
		}
	}
	if err := i.text.Batch(batch); err != nil {
		return 0, errorsx.Wrap(fmt.Errorf("apply batch: %w", err), errorsx.ReasonIndexUpload)
	}
	for _, d := range docs {
		d.Ingredients = append([]string(nil), d.Ingredients...)
		d.RecipeVector = append([]float32(nil), d.RecipeVector...)
		i.docs[d.RecipeID] = d
	}
	metrics.Record(i.obs, metrics.EventIndexUpload, float64(len(docs)), map[string]string{"index": i.schema.Name})
	return len(docs), nil
}

// Get returns a stored document by key.
func (i *Index) Get(id string) (Document, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	d, ok := i.docs[id]
	return d, ok
}

func (i *Index) Count() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrIndexClosed
	}
	return len(i.docs), nil
}

// Reset drops every document and recreates the index with the same schema.
func (i *Index) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrIndexClosed
	}
	fresh, err := bleve.NewMemOnly(i.schema.mapping())
	if err != nil {
		return fmt.Errorf("recreate bleve index: %w", err)
	}
	if err := i.text.Close(); err != nil {
		i.logger.Warn("bleve_close_failed", "error", err)
	}
	i.text = fresh
	i.docs = make(map[string]Document)
	i.logger.Info("index_reset", "index", i.schema.Name)
	return nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.text.Close()
}

// Query ranks documents matching q.Filter by a blend of BM25 over the text
// fields and cosine similarity against q.Vector. Only the K nearest vectors
// contribute a vector score.
func (i *Index) Query(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	filter, err := ParseFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	k := q.K
	if k <= 0 {
		k = DefaultK
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrIndexClosed
	}
	if len(i.docs) == 0 {
		return []Result{}, nil
	}

	var filterQuery query.Query = bleve.NewMatchAllQuery()
	if filter != nil {
		filterQuery = filter.q
	}
	candidates, err := i.search(ctx, filterQuery)
	if err != nil {
		return nil, err
	}

	hasText := strings.TrimSpace(q.Text) != ""
	var textScores map[string]float64
	if hasText {
		textQuery := bleve.NewConjunctionQuery(i.textQuery(q.Text, q.SemanticConfig), filterQuery)
		textScores, err = i.search(ctx, textQuery)
		if err != nil {
			return nil, err
		}
	}
	vectorScores := i.nearest(q.Vector, candidates, k)

	results := i.blend(candidates, textScores, vectorScores, hasText, len(q.Vector) > 0)
	if len(results) > k {
		results = results[:k]
	}
	for n := range results {
		results[n].Fields = i.docs[results[n].ID].Fields(q.Select...)
	}

	metrics.Record(i.obs, metrics.EventIndexQuery, float64(len(results)), map[string]string{"index": i.schema.Name})
	i.logger.Debug("index_query",
		"text", q.Text,
		"filter", filter.String(),
		"candidates", len(candidates),
		"results", len(results),
		"took_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func (i *Index) search(ctx context.Context, q query.Query) (map[string]float64, error) {
	req := bleve.NewSearchRequestOptions(q, len(i.docs), 0, false)
	res, err := i.text.SearchInContext(ctx, req)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("bleve search: %w", err), errorsx.ReasonIndexQuery)
	}
	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

func (i *Index) textQuery(text, semanticConfig string) query.Query {
	boosts := map[string]float64{}
	if cfg, ok := i.schema.SemanticConfig(semanticConfig); ok && cfg.Boost > 0 {
		for _, f := range cfg.ContentFields {
			boosts[f] = cfg.Boost
		}
		if cfg.TitleField != "" {
			boosts[cfg.TitleField] = cfg.Boost
		}
	}
	var fields []query.Query
	for _, name := range i.schema.searchableFields() {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(name)
		if b, ok := boosts[name]; ok {
			mq.SetBoost(b)
		}
		fields = append(fields, mq)
	}
	return bleve.NewDisjunctionQuery(fields...)
}

func (i *Index) nearest(vec []float32, candidates map[string]float64, k int) map[string]float64 {
	if len(vec) == 0 {
		return nil
	}
	type scored struct {
		id    string
		score float64
	}
	all := make([]scored, 0, len(candidates))
	for id := range candidates {
		if d, ok := i.docs[id]; ok && len(d.RecipeVector) > 0 {
			all = append(all, scored{id: id, score: Cosine(vec, d.RecipeVector)})
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].id < all[b].id
	})
	if len(all) > k {
		all = all[:k]
	}
	out := make(map[string]float64, len(all))
	for _, s := range all {
		out[s.id] = s.score
	}
	return out
}

func (i *Index) blend(candidates, text, vector map[string]float64, hasText, hasVector bool) []Result {
	alpha := i.alpha
	switch {
	case hasText && !hasVector:
		alpha = 1
	case hasVector && !hasText:
		alpha = 0
	}
	maxText := 0.0
	for _, s := range text {
		if s > maxText {
			maxText = s
		}
	}
	var out []Result
	for id := range candidates {
		ts, inText := text[id]
		vs, inVector := vector[id]
		if (hasText || hasVector) && !inText && !inVector {
			continue
		}
		norm := 0.0
		if maxText > 0 {
			norm = ts / maxText
		}
		out = append(out, Result{
			ID:          id,
			Score:       alpha*norm + (1-alpha)*vs,
			TextScore:   ts,
			VectorScore: vs,
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// textRecord is what Bleve sees for a document.
func textRecord(d Document) map[string]any {
	keys := make([]string, 0, len(d.Ingredients))
	for _, ing := range d.Ingredients {
		keys = append(keys, normalizeIngredient(ing))
	}
	return map[string]any{
		FieldRecipeID:       d.RecipeID,
		FieldRecipeCategory: d.RecipeCategory,
		FieldRecipeName:     d.RecipeName,
		FieldIngredients:    d.Ingredients,
		FieldRecipe:         d.Recipe,
		FieldDescription:    d.Description,
		FieldTotalTime:      float64(d.TotalTime),
		fieldIngredientKeys: keys,
	}
}
