package app

import (
	"errors"

	"teamdesk/api/internal/notify"
)

// Effect is one best-effort step that ran after a primary write.
type Effect struct {
	Name      string
	Delivered int
	Err       error
}

// Effects collects the side effects of a mutation. They never fail the
// mutation; callers and tests inspect them instead.
type Effects []Effect

func (e *Effects) record(name string, err error) {
	*e = append(*e, Effect{Name: name, Err: err})
}

func (e *Effects) notified(out notify.Outcome) {
	*e = append(*e, Effect{Name: "notify " + out.Kind, Delivered: out.Delivered, Err: errors.Join(out.Errors...)})
}

func (e *Effects) merge(other Effects) {
	*e = append(*e, other...)
}

func (e Effects) Failed() []Effect {
	var out []Effect
	for _, item := range e {
		if item.Err != nil {
			out = append(out, item)
		}
	}
	return out
}

// Delivered sums stored notifications of one kind.
func (e Effects) Delivered(kind string) int {
	total := 0
	for _, item := range e {
		if item.Name == "notify "+kind {
			total += item.Delivered
		}
	}
	return total
}

func (e Effects) Has(name string) bool {
	for _, item := range e {
		if item.Name == name {
			return true
		}
	}
	return false
}
