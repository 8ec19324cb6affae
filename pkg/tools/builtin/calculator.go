package builtin

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/harunnryd/resep/pkg/tools"
)

// InvalidOperator is returned as text, not as an error, so the model can recover.
const InvalidOperator = "Invalid operator"

var CalculatorSignature = tools.Signature{
	Name:        "calculator",
	Description: "A simple calculator used to perform basic arithmetic operations",
	Params: []tools.Param{
		{Name: "num1", Type: tools.TypeNumber, Required: true},
		{Name: "num2", Type: tools.TypeNumber, Required: true},
		{Name: "operator", Type: tools.TypeString, Required: true, Enum: []string{"+", "-", "*", "/", "**", "sqrt"}},
	},
}

type calculatorArgs struct {
	Num1     float64 `json:"num1"`
	Num2     float64 `json:"num2"`
	Operator string  `json:"operator"`
}

func Calculator() tools.Tool {
	return tools.Typed(CalculatorSignature, func(_ context.Context, in calculatorArgs) (string, error) {
		var v float64
		switch in.Operator {
		case "+":
			v = in.Num1 + in.Num2
		case "-":
			v = in.Num1 - in.Num2
		case "*":
			v = in.Num1 * in.Num2
		case "/":
			if in.Num2 == 0 {
				return "", errors.New("division by zero")
			}
			v = in.Num1 / in.Num2
		case "**":
			v = math.Pow(in.Num1, in.Num2)
		case "sqrt":
			if in.Num1 < 0 {
				return "", errors.New("math domain error")
			}
			v = math.Sqrt(in.Num1)
		default:
			return InvalidOperator, nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	})
}
