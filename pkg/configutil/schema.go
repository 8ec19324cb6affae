package configutil

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/resep/pkg/errorsx"
)

// Schema lists the keys a provider's free-form settings map may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SettingsError reports every missing and unknown key at once.
type SettingsError struct {
	Path    string
	Missing []string
	Unknown []string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	msg := strings.Join(parts, "; ")
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return msg
}

// ValidateSettings checks input against schema. Keys compare case, underscore
// and hyphen insensitively; a required key holding nil or blank text counts
// as missing.
func ValidateSettings(input map[string]any, schema Schema) error {
	return ValidateAt("", input, schema)
}

// ValidateAt is ValidateSettings with the config path prefixed to the error,
// which carries errorsx.ReasonConfig.
func ValidateAt(path string, input map[string]any, schema Schema) error {
	known := make(map[string]bool, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		known[normalizeKey(k)] = false
	}
	for _, k := range schema.Required {
		known[normalizeKey(k)] = true
	}

	present := make(map[string]bool, len(input))
	serr := &SettingsError{Path: path}
	for k, v := range input {
		nk := normalizeKey(k)
		required, ok := known[nk]
		if !ok {
			if !schema.AllowUnknown {
				serr.Unknown = append(serr.Unknown, k)
			}
			continue
		}
		present[nk] = !required || !blank(v)
	}
	for _, k := range schema.Required {
		if !present[normalizeKey(k)] {
			serr.Missing = append(serr.Missing, k)
		}
	}

	if len(serr.Missing) == 0 && len(serr.Unknown) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unknown)
	return errorsx.Wrap(serr, errorsx.ReasonConfig)
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
