package mtbus

import "tizigbee/internal/mt"

// Matcher decides whether a decoded AREQ frame satisfies a waiter or
// subscription. Frame is the raw header; Values is the frame's DATA
// decoded against its catalogue entry (nil if the frame is unknown to the
// catalogue).
type Matcher func(frame mt.Frame, values mt.Values) bool

// OnCommand matches any AREQ frame addressed to the named catalogue entry,
// optionally constraining specific decoded field values — the "matchers are
// templates ... with fields optionally constrained to specific values"
// listener shape.
func OnCommand(cat *mt.Catalogue, name string, constraints mt.Values) Matcher {
	cmd, ok := cat.ByName(name)
	if !ok {
		panic("mtbus: unknown command " + name)
	}
	return func(frame mt.Frame, values mt.Values) bool {
		if frame.Subsystem != cmd.Subsystem || frame.ID != cmd.ID {
			return false
		}
		for k, want := range constraints {
			if got, ok := values[k]; !ok || got != want {
				return false
			}
		}
		return true
	}
}
