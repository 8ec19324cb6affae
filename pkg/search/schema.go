package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	FieldRecipeID       = "recipe_id"
	FieldRecipeCategory = "recipe_category"
	FieldRecipeName     = "recipe_name"
	FieldIngredients    = "ingredients"
	FieldRecipe         = "recipe"
	FieldDescription    = "description"
	FieldTotalTime      = "total_time"
	FieldRecipeVector   = "recipe_vector"

	// ingredient names are also indexed untokenized and lowercased for any() filters.
	fieldIngredientKeys = "ingredient_keys"
)

// DefaultSemanticConfig is the semantic configuration name recipe queries use.
const DefaultSemanticConfig = "my-semantic-config"

// DefaultDimensions matches text-embedding-ada-002.
const DefaultDimensions = 1536

// FieldKind describes how a field is indexed.
type FieldKind string

const (
	KindKey        FieldKind = "key"
	KindSearchable FieldKind = "searchable"
	KindCollection FieldKind = "collection"
	KindFilterable FieldKind = "filterable"
	KindVector     FieldKind = "vector"
)

type Field struct {
	Name string
	Kind FieldKind
}

// SemanticConfig names the fields whose matches count for more.
type SemanticConfig struct {
	Name          string
	TitleField    string
	ContentFields []string
	// Boost multiplies BM25 scores from the prioritized fields.
	Boost float64
}

// Schema is the recipe index layout.
type Schema struct {
	Name       string
	Fields     []Field
	Dimensions int
	Semantic   []SemanticConfig
}

// RecipeSchema returns the layout of the recipe index.
func RecipeSchema(name string) Schema {
	if name == "" {
		name = "recipes"
	}
	return Schema{
		Name: name,
		Fields: []Field{
			{Name: FieldRecipeID, Kind: KindKey},
			{Name: FieldRecipeCategory, Kind: KindSearchable},
			{Name: FieldRecipeName, Kind: KindSearchable},
			{Name: FieldIngredients, Kind: KindCollection},
			{Name: FieldRecipe, Kind: KindSearchable},
			{Name: FieldDescription, Kind: KindSearchable},
			{Name: FieldTotalTime, Kind: KindFilterable},
			{Name: FieldRecipeVector, Kind: KindVector},
		},
		Dimensions: DefaultDimensions,
		Semantic: []SemanticConfig{{
			Name:          DefaultSemanticConfig,
			ContentFields: []string{FieldRecipe},
			Boost:         2,
		}},
	}
}

// SemanticConfig looks up a semantic configuration by name.
func (s Schema) SemanticConfig(name string) (SemanticConfig, bool) {
	for _, c := range s.Semantic {
		if c.Name == name {
			return c, true
		}
	}
	return SemanticConfig{}, false
}

func (s Schema) searchableFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Kind == KindSearchable || f.Kind == KindCollection {
			out = append(out, f.Name)
		}
	}
	return out
}

func (s Schema) mapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	for _, f := range s.Fields {
		switch f.Kind {
		case KindKey:
			fm := bleve.NewKeywordFieldMapping()
			fm.Store = true
			doc.AddFieldMappingsAt(f.Name, fm)
		case KindSearchable, KindCollection:
			fm := bleve.NewTextFieldMapping()
			fm.Analyzer = en.AnalyzerName
			fm.Store = false
			doc.AddFieldMappingsAt(f.Name, fm)
		case KindFilterable:
			fm := bleve.NewNumericFieldMapping()
			fm.Store = false
			doc.AddFieldMappingsAt(f.Name, fm)
		case KindVector:
			// vectors live beside the Bleve index
		}
	}
	keys := bleve.NewTextFieldMapping()
	keys.Analyzer = keyword.Name
	keys.Store = false
	doc.AddFieldMappingsAt(fieldIngredientKeys, keys)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = en.AnalyzerName
	return im
}
