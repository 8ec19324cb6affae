package search

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/harunnryd/resep/pkg/errorsx"
)

// Filter is a parsed filter expression.
type Filter struct {
	raw string
	q   query.Query
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.raw
}

// ParseFilter parses an OData-subset filter. An empty expression yields a nil
// filter and no error.
func ParseFilter(raw string) (*Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	toks, err := lex(raw)
	if err != nil {
		return nil, errorsx.New(errorsx.ReasonIndexQuery, "invalid filter %q: %v", raw, err)
	}
	p := &parser{toks: toks}
	q, err := p.parseOr()
	if err == nil && !p.done() {
		err = fmt.Errorf("unexpected %q", p.peek().text)
	}
	if err != nil {
		return nil, errorsx.New(errorsx.ReasonIndexQuery, "invalid filter %q: %v", raw, err)
	}
	return &Filter{raw: raw, q: q}, nil
}

// JoinFilters combines expressions with "and", skipping blanks.
func JoinFilters(exprs ...string) string {
	var parts []string
	for _, e := range exprs {
		if e = strings.TrimSpace(e); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, " and ")
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokColon
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) ([]token, error) {
	var out []token
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			out = append(out, token{tokLParen, "("})
			i++
		case c == ')':
			out = append(out, token{tokRParen, ")"})
			i++
		case c == ':':
			out = append(out, token{tokColon, ":"})
			i++
		case c == '\'':
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' {
						b.WriteByte('\'')
						j += 2
						continue
					}
					closed = true
					j++
					break
				}
				b.WriteByte(s[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			out = append(out, token{tokString, b.String()})
			i = j
		case c == '-' || c == '.' || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) && (s[j] == '.' || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			out = append(out, token{tokNumber, s[i:j]})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])) || s[j] == '_' || s[j] == '/') {
				j++
			}
			out = append(out, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	return out, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{kind: -1}
	}
	return p.toks[p.pos]
}

func (p *parser) next() (token, error) {
	if p.done() {
		return token{}, fmt.Errorf("unexpected end of expression")
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.kind != kind {
		return t, fmt.Errorf("expected %s, got %q", what, t.text)
	}
	return t, nil
}

func (p *parser) parseOr() (query.Query, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	qs := []query.Query{left}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		qs = append(qs, right)
	}
	if len(qs) == 1 {
		return left, nil
	}
	return bleve.NewDisjunctionQuery(qs...), nil
}

func (p *parser) parseAnd() (query.Query, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	qs := []query.Query{left}
	for p.keyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		qs = append(qs, right)
	}
	if len(qs) == 1 {
		return left, nil
	}
	return bleve.NewConjunctionQuery(qs...), nil
}

func (p *parser) parseUnary() (query.Query, error) {
	if p.keyword("not") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negate(inner), nil
	}
	if p.peek().kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	field, err := p.expect(tokIdent, "field name")
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(field.text, "/any") {
		return p.parseAny(strings.TrimSuffix(field.text, "/any"))
	}
	return p.parseComparison(field.text)
}

// parseAny handles ingredients/any(i: i eq 'x' or i eq 'y').
func (p *parser) parseAny(collection string) (query.Query, error) {
	if collection != FieldIngredients {
		return nil, fmt.Errorf("any() is only supported on %s", FieldIngredients)
	}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	v, err := p.expect(tokIdent, "range variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, ":"); err != nil {
		return nil, err
	}
	var terms []query.Query
	for {
		ref, err := p.expect(tokIdent, "range variable")
		if err != nil {
			return nil, err
		}
		// models sometimes mistype the range variable; any single-letter name is accepted
		if ref.text != v.text && len(ref.text) != 1 {
			return nil, fmt.Errorf("unknown range variable %q", ref.text)
		}
		if !p.keyword("eq") {
			return nil, fmt.Errorf("any() only supports eq comparisons")
		}
		lit, err := p.expect(tokString, "string literal")
		if err != nil {
			return nil, err
		}
		tq := bleve.NewTermQuery(normalizeIngredient(lit.text))
		tq.SetField(fieldIngredientKeys)
		terms = append(terms, tq)
		if !p.keyword("or") {
			break
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return bleve.NewDisjunctionQuery(terms...), nil
}

func (p *parser) parseComparison(field string) (query.Query, error) {
	op, err := p.expect(tokIdent, "operator")
	if err != nil {
		return nil, err
	}
	lit, err := p.next()
	if err != nil {
		return nil, err
	}
	switch field {
	case FieldTotalTime:
		if lit.kind != tokNumber {
			return nil, fmt.Errorf("%s needs a numeric literal", field)
		}
		v, err := strconv.ParseFloat(lit.text, 64)
		if err != nil {
			return nil, err
		}
		return numericComparison(field, strings.ToLower(op.text), v)
	case FieldRecipeID:
		if lit.kind != tokString {
			return nil, fmt.Errorf("%s needs a string literal", field)
		}
		tq := bleve.NewTermQuery(lit.text)
		tq.SetField(field)
		switch strings.ToLower(op.text) {
		case "eq":
			return tq, nil
		case "ne":
			return negate(tq), nil
		}
		return nil, fmt.Errorf("operator %q not supported on %s", op.text, field)
	}
	return nil, fmt.Errorf("field %q is not filterable", field)
}

func numericComparison(field, op string, v float64) (query.Query, error) {
	yes, no := true, false
	var q *query.NumericRangeQuery
	switch op {
	case "eq":
		q = bleve.NewNumericRangeInclusiveQuery(&v, &v, &yes, &yes)
	case "ne":
		eq := bleve.NewNumericRangeInclusiveQuery(&v, &v, &yes, &yes)
		eq.SetField(field)
		return negate(eq), nil
	case "lt":
		q = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &no)
	case "le":
		q = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &yes)
	case "gt":
		q = bleve.NewNumericRangeInclusiveQuery(&v, nil, &no, nil)
	case "ge":
		q = bleve.NewNumericRangeInclusiveQuery(&v, nil, &yes, nil)
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	q.SetField(field)
	return q, nil
}

func negate(q query.Query) query.Query {
	b := bleve.NewBooleanQuery()
	b.AddMust(bleve.NewMatchAllQuery())
	b.AddMustNot(q)
	return b
}

func normalizeIngredient(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
