package configutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes a free-form settings map into a typed struct.
// Input is weakly typed, so "30s" fills a time.Duration and "3" fills an int.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// RequireString ensures a value is present for a required config field.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", path)
	}
	return nil
}

// Or returns fallback when value is nil.
func Or[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}

// ExpandEnv replaces ${VAR} references in every string reachable from v,
// including nested maps and slices. YAML maps keyed by any are rewritten
// with string keys.
func ExpandEnv(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = ExpandEnv(val[i])
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = ExpandEnv(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				out[ks] = ExpandEnv(item)
			}
		}
		return out
	}
	return v
}

// ExpandSettings is ExpandEnv for a settings map; nil stays nil.
func ExpandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	return ExpandEnv(settings).(map[string]any)
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
