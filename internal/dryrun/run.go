package dryrun

// Run is the dry-run context of one caller. The zero value is inactive:
// operations pass through to the real store.
//
// Run is an immutable value. WithRunID and WithSystemMode return modified
// copies, so a Run can be shared between goroutines and handed to every
// operation without one caller's mode leaking into another's.
type Run struct {
	id         string
	systemMode bool
}

// NewRun returns an active context for runID. An empty runID yields an
// inactive context.
func NewRun(runID string) Run {
	return Run{id: runID}
}

// ID returns the run id, or "" when no run is active.
func (r Run) ID() string {
	return r.id
}

// Active reports whether operations are routed to the virtual store.
func (r Run) Active() bool {
	return r.id != ""
}

// SystemMode reports whether new records are marked system-originated.
func (r Run) SystemMode() bool {
	return r.systemMode
}

// WithRunID returns a copy bound to runID. An empty runID disables routing.
func (r Run) WithRunID(runID string) Run {
	r.id = runID
	return r
}

// WithSystemMode returns a copy with the system flag set to flag.
func (r Run) WithSystemMode(flag bool) Run {
	r.systemMode = flag
	return r
}

// String implements fmt.Stringer for logging.
func (r Run) String() string {
	if !r.Active() {
		return "run(none)"
	}
	if r.systemMode {
		return "run(" + r.id + ", system)"
	}
	return "run(" + r.id + ")"
}
