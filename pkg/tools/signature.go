package tools

import "github.com/harunnryd/resep/pkg/llm"

// ParamType is the JSON schema type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param declares one named argument of a tool.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
	Required    bool
	Default     any
}

// Mandatory reports whether a caller must supply the parameter. A parameter
// that declares a default is never mandatory.
func (p Param) Mandatory() bool {
	return p.Required && p.Default == nil
}

// Signature is the closed parameter schema of a tool.
type Signature struct {
	Name        string
	Description string
	Params      []Param
}

// Param looks up a declared parameter by exact name.
func (s Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// RequiredNames lists mandatory parameters in declaration order.
func (s Signature) RequiredNames() []string {
	var out []string
	for _, p := range s.Params {
		if p.Mandatory() {
			out = append(out, p.Name)
		}
	}
	return out
}

// Schema renders the parameters as a JSON schema object.
func (s Signature) Schema() map[string]any {
	props := make(map[string]any, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Type == "" {
			prop["type"] = string(TypeString)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
	}
	required := s.RequiredNames()
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Spec converts the signature into a catalog entry for the gateway.
func (s Signature) Spec() llm.Tool {
	return llm.Tool{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  s.Schema(),
	}
}

// WithDefaults returns a copy of args with declared defaults filled in for absent keys.
func (s Signature) WithDefaults(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(s.Params))
	for k, v := range args {
		out[k] = v
	}
	for _, p := range s.Params {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}
