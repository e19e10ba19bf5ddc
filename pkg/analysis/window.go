package analysis

import (
	"sync"

	"github.com/itohio/gothermo/pkg/pid"
)

// Window keeps the reports of the last Span seconds and notifies callbacks
// whenever a report arrives. Reports are ordered oldest first.
type Window struct {
	span float64

	mu       sync.RWMutex
	reports  []pid.Report
	shutdown bool

	cbMu      sync.RWMutex
	callbacks []func(reports []pid.Report, summary Summary)
}

// NewWindow creates a window spanning span seconds of report time.
func NewWindow(span float64) *Window {
	return &Window{span: span}
}

// OnUpdate registers a callback. Callbacks run on the Process goroutine and
// receive a copy of the window.
func (w *Window) OnUpdate(f func(reports []pid.Report, summary Summary)) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.callbacks = append(w.callbacks, f)
}

// Process consumes reports until input is closed.
func (w *Window) Process(input <-chan pid.Report) {
	for r := range input {
		w.Add(r)
	}
	w.mu.Lock()
	w.shutdown = true
	w.mu.Unlock()
}

// Add appends a report, drops reports older than the span and notifies callbacks.
func (w *Window) Add(r pid.Report) {
	w.mu.Lock()
	// A restarted start time shows up as elapsed going backwards
	if n := len(w.reports); n > 0 && r.Elapsed < w.reports[n-1].Elapsed {
		w.reports = w.reports[:0]
	}
	w.reports = append(w.reports, r)

	cutoff := r.Elapsed - w.span
	drop := 0
	for drop < len(w.reports) && w.reports[drop].Elapsed < cutoff {
		drop++
	}
	if drop > 0 {
		w.reports = append(w.reports[:0], w.reports[drop:]...)
	}

	notify := !w.shutdown
	snapshot := w.snapshot()
	w.mu.Unlock()

	if !notify {
		return
	}
	summary, _ := Summarize(snapshot)

	w.cbMu.RLock()
	callbacks := make([]func([]pid.Report, Summary), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(snapshot, summary)
	}
}

// Reports returns a copy of the reports in the window.
func (w *Window) Reports() []pid.Report {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot()
}

// Summary summarizes the reports currently in the window.
func (w *Window) Summary() (Summary, error) {
	return Summarize(w.Reports())
}

func (w *Window) snapshot() []pid.Report {
	out := make([]pid.Report, len(w.reports))
	copy(out, w.reports)
	return out
}
