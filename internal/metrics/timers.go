// Package metrics holds the run's profiling context and the summary
// statistics reported when a run finishes.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"
)

type timer struct {
	total time.Duration
	calls uint64
}

// Timers accumulates wall time per named section. The zero value is not
// usable; call NewTimers.
type Timers struct {
	now    func() time.Time
	timers map[string]*timer
}

func NewTimers() *Timers {
	return &Timers{now: time.Now, timers: make(map[string]*timer)}
}

// Start begins timing name and returns the function that stops it.
func (t *Timers) Start(name string) func() {
	tm, ok := t.timers[name]
	if !ok {
		tm = &timer{}
		t.timers[name] = tm
	}
	begin := t.now()
	return func() {
		tm.total += t.now().Sub(begin)
		tm.calls++
	}
}

// Total returns the accumulated time and the number of completed calls.
func (t *Timers) Total(name string) (time.Duration, uint64) {
	tm, ok := t.timers[name]
	if !ok {
		return 0, 0
	}
	return tm.total, tm.calls
}

// Report writes one line per timer with its total time and the mean time
// per step, where nSteps is the number of steps the run performed.
func (t *Timers) Report(w io.Writer, nSteps uint64) {
	names := make([]string, 0, len(t.timers))
	for name := range t.timers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tm := t.timers[name]
		perStep := 0.0
		if nSteps > 0 {
			perStep = tm.total.Seconds() * 1e6 / float64(nSteps)
		}
		fmt.Fprintf(w, "%-20s %9.3f s %9.2f us/step %8d calls\n",
			name, tm.total.Seconds(), perStep, tm.calls)
	}
}
