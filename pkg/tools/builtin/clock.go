package builtin

import (
	"context"
	"time"
	_ "time/tzdata"

	"github.com/harunnryd/resep/pkg/tools"
)

const unknownTimezone = "Sorry, I couldn't find the timezone for that location"

var CurrentTimeSignature = tools.Signature{
	Name:        "get_current_time",
	Description: "Get the current time in a given location",
	Params: []tools.Param{{
		Name:        "location",
		Type:        tools.TypeString,
		Required:    true,
		Description: "The location name. An IANA time zone is used to get the time for that location. Location names should be in a format like America/New_York, Asia/Bangkok, Europe/London",
	}},
}

// CurrentTime reports the wall clock in the named zone as "03:04:05 PM".
// now defaults to time.Now.
func CurrentTime(now func() time.Time) tools.Tool {
	if now == nil {
		now = time.Now
	}
	return tools.Typed(CurrentTimeSignature, func(_ context.Context, in struct {
		Location string `json:"location"`
	}) (string, error) {
		loc, err := time.LoadLocation(in.Location)
		if err != nil || in.Location == "" {
			return unknownTimezone, nil
		}
		return now().In(loc).Format("03:04:05 PM"), nil
	})
}
