package harness

// Exchange is one step's request and the response it produced. Relay
// steps use the request "RELAY" and a summary of the cycle stats.
type Exchange struct {
	Step     int    `json:"step"`
	Request  string `json:"request"`
	Response string `json:"response"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Transcript holds every exchange in step order.
	Transcript []Exchange `json:"transcript"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Transcript: []Exchange{},
		Errors:     []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddExchange appends a step's exchange to the transcript.
func (r *Result) AddExchange(step int, request, response string) {
	r.Transcript = append(r.Transcript, Exchange{Step: step, Request: request, Response: response})
}
