package tool

import (
	"context"
	"time"

	"prizmagent/internal/domain"
)

// DateTimeTool reports the current date and time, optionally in a named zone.
type DateTimeTool struct {
	now func() time.Time // injectable for tests
}

var _ domain.Tool = (*DateTimeTool)(nil)

func NewDateTimeTool() *DateTimeTool {
	return &DateTimeTool{now: time.Now}
}

func (t *DateTimeTool) Name() string { return "datetime" }
func (t *DateTimeTool) Description() string {
	return "Get the current date and time. Accepts an optional IANA timezone name (e.g. 'Europe/Paris')."
}
func (t *DateTimeTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"timezone": {Type: "string", Description: "IANA timezone name; defaults to the server's local zone"},
		},
		nil,
	)
}

func (t *DateTimeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	now := t.now()
	if tz := ArgsString(args, "timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", domain.Failf(domain.InvalidArguments, "datetime: unknown timezone %q", tz)
		}
		now = now.In(loc)
	}
	return now.Format("Monday, 2 January 2006 15:04:05 MST"), nil
}
