package tools

import (
	"sort"
	"strings"

	"github.com/harunnryd/resep/pkg/errorsx"
)

// Validate reports whether args fits sig: every key is a declared parameter
// and every mandatory parameter is present. Names match exactly.
func Validate(sig Signature, args map[string]any) bool {
	missing, unknown := diff(sig, args)
	return len(missing) == 0 && len(unknown) == 0
}

// Check is Validate with an explanation. The error carries
// errorsx.ReasonArgumentMismatch.
func Check(sig Signature, args map[string]any) error {
	missing, unknown := diff(sig, args)
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errorsx.New(errorsx.ReasonArgumentMismatch,
		"Invalid number of arguments for function: %s (%s)", sig.Name, strings.Join(parts, "; "))
}

func diff(sig Signature, args map[string]any) (missing, unknown []string) {
	declared := make(map[string]struct{}, len(sig.Params))
	for _, p := range sig.Params {
		declared[p.Name] = struct{}{}
	}
	for k := range args {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	for _, p := range sig.Params {
		if !p.Mandatory() {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	sort.Strings(unknown)
	return missing, unknown
}
