package tools

import (
	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/resep/pkg/errorsx"
)

// Decode turns validated arguments into a typed record. Fields are matched by
// their `json` tag, and JSON numbers or numeric strings coerce into the
// declared Go types.
func Decode(args map[string]any, out any) error {
	cfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonArgumentMismatch)
	}
	return nil
}
