package harness

// Outcome of a step that succeeded.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int            `json:"step"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"` // OutcomeOK or an error code
	Result  map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
