// Package search is the recipe index used for retrieval-augmented chat.
//
// Documents are indexed twice: their text fields go into an in-memory Bleve
// index for BM25 ranking and filtering, and their vectors are kept beside it
// for cosine similarity. Query blends both scores the same way for every
// request:
//
//	score = alpha*bm25/maxBM25 + (1-alpha)*cosine
//
// and breaks ties by document ID so results are deterministic.
//
// # Filters
//
// Filters use a small OData subset, enough for the expressions a model writes
// for the query_recipes tool:
//
//	total_time lt 30
//	ingredients/any(i: i eq 'salt' or i eq 'pepper')
//	total_time le 45 and ingredients/any(i: i eq 'basil')
//
// Comparison operators are eq, ne, lt, le, gt and ge. Clauses are joined with
// "and". Anything else is rejected by ParseFilter with an index_query reason.
//
// # Thread Safety
//
// Index is safe for concurrent use. Writers take an exclusive lock and
// readers share one.
package search
