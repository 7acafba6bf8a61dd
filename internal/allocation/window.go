package allocation

import (
	"github.com/Katia-D15/book-my-table/internal/domain"
)

// Window is a half-open interval [Start, End) on a single calendar date.
type Window struct {
	Start domain.TimeOfDay
	End   domain.TimeOfDay
}

// WindowAt returns the service window of a booking starting at t.
func WindowAt(t domain.TimeOfDay) Window {
	return Window{Start: t, End: t.Add(domain.ServiceWindow)}
}

// Overlaps reports whether w and o intersect. Touching endpoints do not.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && w.End > o.Start
}
