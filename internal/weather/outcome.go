package weather

// OutcomeKind discriminates Outcome values.
type OutcomeKind string

const (
	OutcomeIdle    OutcomeKind = "idle"
	OutcomeLoading OutcomeKind = "loading"
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// ResultTag tells consumers which kind of query produced a success.
// The payload shape is identical for all tags.
type ResultTag string

const (
	TagCity     ResultTag = "city"
	TagLocation ResultTag = "location"
	TagRefresh  ResultTag = "refresh"
)

// Outcome is what consumers observe for a decision. Weather is set only for
// success, Error only for failure.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Tag        ResultTag   `json:"tag,omitempty"`
	Weather    *Payload    `json:"weather,omitempty"`
	Error      ErrorKind   `json:"error,omitempty"`
	DecisionID string      `json:"decisionId,omitempty"`
	Seq        uint64      `json:"seq"`
}

// Terminal reports whether the outcome ends its decision.
func (o Outcome) Terminal() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeFailure
}

// IdleOutcome is the state before any query and after a query that had nothing to do.
func IdleOutcome() Outcome {
	return Outcome{Kind: OutcomeIdle}
}

// LoadingOutcome marks a fetch in flight.
func LoadingOutcome() Outcome {
	return Outcome{Kind: OutcomeLoading}
}

func (o Outcome) stamp(d Decision) Outcome {
	o.DecisionID = d.ID
	o.Seq = d.Seq
	return o
}
