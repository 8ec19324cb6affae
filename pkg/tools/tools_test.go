package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/harunnryd/resep/pkg/errorsx"
)

var calcSig = Signature{
	Name:        "calculator",
	Description: "A simple calculator used to perform basic arithmetic operations",
	Params: []Param{
		{Name: "num1", Type: TypeNumber, Required: true},
		{Name: "num2", Type: TypeNumber, Required: true},
		{Name: "operator", Type: TypeString, Required: true, Enum: []string{"+", "-", "*", "/", "**", "sqrt"}},
	},
}

func TestValidate(t *testing.T) {
	sig := Signature{
		Name: "get_current_weather",
		Params: []Param{
			{Name: "location", Type: TypeString, Required: true},
			{Name: "unit", Type: TypeString, Enum: []string{"celsius", "fahrenheit"}},
		},
	}
	cases := []struct {
		name string
		args map[string]any
		want bool
	}{
		{"required only", map[string]any{"location": "San Francisco, CA"}, true},
		{"required and optional", map[string]any{"location": "Paris", "unit": "celsius"}, true},
		{"missing required", map[string]any{"unit": "celsius"}, false},
		{"unknown key", map[string]any{"location": "Paris", "country": "FR"}, false},
		{"case differs", map[string]any{"Location": "Paris"}, false},
		{"empty", map[string]any{}, false},
		{"nil map", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Validate(sig, tc.args); got != tc.want {
				t.Fatalf("Validate(%v) = %v, want %v", tc.args, got, tc.want)
			}
		})
	}
}

// keys ⊆ params and required ⊆ keys, checked over every subset of a key universe.
func TestValidateSubsetProperty(t *testing.T) {
	sig := Signature{
		Name: "p",
		Params: []Param{
			{Name: "a", Required: true},
			{Name: "b"},
			{Name: "c", Required: true, Default: 1},
		},
	}
	universe := []string{"a", "b", "c", "x"}
	for mask := 0; mask < 1<<len(universe); mask++ {
		args := map[string]any{}
		for i, k := range universe {
			if mask&(1<<i) != 0 {
				args[k] = true
			}
		}
		_, hasA := args["a"]
		_, hasX := args["x"]
		want := hasA && !hasX
		if got := Validate(sig, args); got != want {
			t.Fatalf("Validate(%v) = %v, want %v", args, got, want)
		}
	}
}

func TestCheckExplainsMismatch(t *testing.T) {
	err := Check(calcSig, map[string]any{"num1": 2, "operator": "+", "extra": 1})
	if err == nil {
		t.Fatalf("expected mismatch")
	}
	if !errorsx.HasReason(err, errorsx.ReasonArgumentMismatch) {
		t.Fatalf("expected argument_mismatch reason, got %s", errorsx.Reason(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing: num2") || !strings.Contains(msg, "unknown: extra") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestSchemaListsRequired(t *testing.T) {
	schema := calcSig.Schema()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema")
	}
	required, _ := schema["required"].([]string)
	if strings.Join(required, ",") != "num1,num2,operator" {
		t.Fatalf("unexpected required %v", required)
	}
	props, _ := schema["properties"].(map[string]any)
	op, _ := props["operator"].(map[string]any)
	if len(op["enum"].([]any)) != 6 {
		t.Fatalf("expected operator enum, got %v", op)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	tool := New(calcSig, func(context.Context, map[string]any) (string, error) { return "", nil })
	if _, err := NewRegistry(tool, tool); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewRegistry(New(Signature{}, nil)); err == nil {
		t.Fatalf("expected empty name error")
	}
}

type calcArgs struct {
	Num1     float64 `json:"num1"`
	Num2     float64 `json:"num2"`
	Operator string  `json:"operator"`
}

func addTool() Tool {
	return Typed(calcSig, func(_ context.Context, in calcArgs) (string, error) {
		if in.Operator != "+" {
			return "", errors.New("only + supported")
		}
		return fmt.Sprint(in.Num1 + in.Num2), nil
	})
}

func TestRegistryCall(t *testing.T) {
	panicky := New(Signature{Name: "explode"}, func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	})
	reg := MustRegistry(addTool(), panicky)
	ctx := context.Background()

	out, err := reg.Call(ctx, "calculator", `{"num1": 2, "num2": 3, "operator": "+"}`)
	if err != nil || out != "5" {
		t.Fatalf("expected 5, got %q (%v)", out, err)
	}

	cases := []struct {
		name, tool, args string
		reason           errorsx.ReasonCode
	}{
		{"unknown", "weather", `{}`, errorsx.ReasonUnknownTool},
		{"malformed", "calculator", `{"num1": 2,`, errorsx.ReasonMalformedArguments},
		{"not an object", "calculator", `[1, 2]`, errorsx.ReasonMalformedArguments},
		{"mismatch", "calculator", `{"num1": 2, "operator": "+"}`, errorsx.ReasonArgumentMismatch},
		{"tool error", "calculator", `{"num1": 2, "num2": 3, "operator": "-"}`, errorsx.ReasonToolExecution},
		{"wrong type", "calculator", `{"num1": "two", "num2": 3, "operator": "+"}`, errorsx.ReasonArgumentMismatch},
		{"panic", "explode", `null`, errorsx.ReasonToolExecution},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Call(ctx, tc.tool, tc.args)
			if !errorsx.HasReason(err, tc.reason) {
				t.Fatalf("expected %s, got %s (%v)", tc.reason, errorsx.Reason(err), err)
			}
		})
	}
}

func TestUnknownToolText(t *testing.T) {
	_, err := MustRegistry().Call(context.Background(), "weather", `{}`)
	if got := errorsx.Text(err); got != "unknown_tool: Function weather does not exist" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTypedAppliesDefaults(t *testing.T) {
	sig := Signature{
		Name: "greet",
		Params: []Param{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "greeting", Type: TypeString, Default: "hello"},
		},
	}
	tool := Typed(sig, func(_ context.Context, in struct {
		Name     string `json:"name"`
		Greeting string `json:"greeting"`
	}) (string, error) {
		return in.Greeting + " " + in.Name, nil
	})
	out, err := MustRegistry(tool).Call(context.Background(), "greet", `{"name": "sam"}`)
	if err != nil || out != "hello sam" {
		t.Fatalf("expected default greeting, got %q (%v)", out, err)
	}
}

func TestCatalogOrder(t *testing.T) {
	reg := MustRegistry(
		New(Signature{Name: "b"}, nil),
		New(Signature{Name: "a"}, nil),
	)
	cat := reg.Catalog()
	if len(cat) != 2 || cat[0].Name != "b" || cat[1].Name != "a" {
		t.Fatalf("catalog must follow registration order, got %+v", cat)
	}
}
