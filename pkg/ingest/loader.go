// Package ingest loads recipe records from JSON Lines into a search index:
// each line is parsed, embedded and uploaded in fixed-size batches.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/resep/pkg/errorsx"
	"github.com/harunnryd/resep/pkg/logging"
	"github.com/harunnryd/resep/pkg/search"
)

const DefaultBatchSize = 100

// maxLineSize bounds a single JSONL record; recipe bodies can be long.
const maxLineSize = 4 << 20

// Sink is the part of the index the loader writes to.
type Sink interface {
	Upload(ctx context.Context, docs []search.Document) (int, error)
	Reset() error
}

// Stats summarizes one load.
type Stats struct {
	Read     int
	Uploaded int
	Batches  int
}

type Option func(*Loader)

func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithReset drops every document before loading, recreating the index.
func WithReset(reset bool) Option {
	return func(l *Loader) { l.reset = reset }
}

// WithProgress is called after every uploaded batch with its size.
func WithProgress(fn func(uploaded int)) Option {
	return func(l *Loader) { l.progress = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = logging.NewComponentLogger(log, "ingest") }
}

type Loader struct {
	sink      Sink
	embedder  search.Embedder
	batchSize int
	reset     bool
	progress  func(int)
	log       *slog.Logger
}

// NewLoader builds a loader. A nil embedder uploads documents without vectors.
func NewLoader(sink Sink, embedder search.Embedder, opts ...Option) *Loader {
	l := &Loader{
		sink:      sink,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		reset:     true,
		log:       logging.NewComponentLogger(slog.Default(), "ingest"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) LoadFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open recipes: %w", err)
	}
	defer f.Close()
	return l.Load(ctx, f)
}

// Load reads r to the end. Blank lines are skipped; any malformed line
// aborts the load with its line number.
func (l *Loader) Load(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	if l.reset {
		if err := l.sink.Reset(); err != nil {
			return stats, errorsx.Wrap(fmt.Errorf("reset index: %w", err), errorsx.ReasonIndexUpload)
		}
		l.log.Info("index_reset")
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	batch := make([]search.Document, 0, l.batchSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		doc, err := ParseRecord([]byte(raw))
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Read++
		if l.embedder != nil {
			vec, err := l.embedder.Embed(ctx, doc.EmbeddingText())
			if err != nil {
				return stats, errorsx.Wrap(fmt.Errorf("line %d: embed %s: %w", line, doc.RecipeID, err), errorsx.ReasonEmbedding)
			}
			doc.RecipeVector = vec
		}
		batch = append(batch, doc)
		if len(batch) == l.batchSize {
			if err := l.flush(ctx, batch, &stats); err != nil {
				return stats, err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read recipes: %w", err)
	}
	if len(batch) > 0 {
		if err := l.flush(ctx, batch, &stats); err != nil {
			return stats, err
		}
	}
	l.log.Info("ingest_completed", "read", stats.Read, "uploaded", stats.Uploaded, "batches", stats.Batches)
	return stats, nil
}

func (l *Loader) flush(ctx context.Context, batch []search.Document, stats *Stats) error {
	n, err := l.sink.Upload(ctx, batch)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonIndexUpload)
	}
	stats.Uploaded += n
	stats.Batches++
	l.log.Debug("batch_uploaded", "documents", n)
	if l.progress != nil {
		l.progress(n)
	}
	return nil
}

// record mirrors one JSONL line. total_time arrives as text ("45 mins") and
// recipe_id may be numeric, so decoding is weakly typed.
type record struct {
	RecipeID       string   `mapstructure:"recipe_id"`
	RecipeCategory string   `mapstructure:"recipe_category"`
	RecipeName     string   `mapstructure:"recipe_name"`
	Ingredients    []string `mapstructure:"ingredients"`
	Recipe         string   `mapstructure:"recipe"`
	Description    string   `mapstructure:"description"`
	TotalTime      string   `mapstructure:"total_time"`
}

// ParseRecord turns one JSON object into a document.
func ParseRecord(raw []byte) (search.Document, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return search.Document{}, fmt.Errorf("decode record: %w", err)
	}
	if fields == nil {
		return search.Document{}, fmt.Errorf("decode record: not an object")
	}

	// json.Number has a string kind, so numeric ids decode as their text.
	var rec record
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return search.Document{}, err
	}
	if err := decoder.Decode(fields); err != nil {
		return search.Document{}, fmt.Errorf("decode record: %w", err)
	}

	doc := search.Document{
		RecipeID:       strings.TrimSpace(rec.RecipeID),
		RecipeCategory: rec.RecipeCategory,
		RecipeName:     rec.RecipeName,
		Ingredients:    rec.Ingredients,
		Recipe:         rec.Recipe,
		Description:    rec.Description,
	}
	if doc.RecipeID == "" {
		return search.Document{}, fmt.Errorf("record has no %s", search.FieldRecipeID)
	}
	if strings.TrimSpace(rec.TotalTime) != "" {
		minutes, err := search.ParseTotalTime(rec.TotalTime)
		if err != nil {
			return search.Document{}, fmt.Errorf("record %s: %w", doc.RecipeID, err)
		}
		doc.TotalTime = minutes
	}
	return doc, nil
}

