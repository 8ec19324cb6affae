package builtin

import (
	"context"
	"encoding/json"

	"github.com/harunnryd/resep/pkg/tools"
)

var WeatherSignature = tools.Signature{
	Name:        "get_current_weather",
	Description: "Get the current weather in a given location",
	Params: []tools.Param{
		{Name: "location", Type: tools.TypeString, Required: true, Description: "The city and state, e.g. San Francisco, CA"},
		{Name: "unit", Type: tools.TypeString, Enum: []string{"celsius", "fahrenheit"}, Default: "fahrenheit"},
	},
}

// Weather is a canned forecast; it exists to demonstrate tool selection.
func Weather() tools.Tool {
	return tools.Typed(WeatherSignature, func(_ context.Context, in struct {
		Location string `json:"location"`
		Unit     string `json:"unit"`
	}) (string, error) {
		temp := 72
		if in.Unit == "celsius" {
			temp = 22
		}
		b, err := json.Marshal(map[string]any{
			"location":    in.Location,
			"temperature": temp,
			"unit":        in.Unit,
			"forecast":    []string{"sunny", "windy"},
		})
		return string(b), err
	})
}
