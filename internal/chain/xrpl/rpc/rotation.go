package rpc

type rotationState int

const (
	rotationTrying rotationState = iota
	rotationSucceeded
	rotationExhausted
)

func (s rotationState) String() string {
	switch s {
	case rotationTrying:
		return "trying"
	case rotationSucceeded:
		return "succeeded"
	case rotationExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// rotation walks an ordered endpoint list for a single call.
// trying(i) --success--> succeeded
// trying(i) --failure--> trying(i+1) | exhausted
// succeeded and exhausted are terminal.
type rotation struct {
	endpoints []string
	idx       int
	state     rotationState
	attempts  []*TransportError
}

func newRotation(endpoints []string) *rotation {
	r := &rotation{endpoints: endpoints, state: rotationTrying}
	if len(endpoints) == 0 {
		r.state = rotationExhausted
	}
	return r
}

// current returns the endpoint under trial. ok is false in a terminal state.
func (r *rotation) current() (string, bool) {
	if r.state != rotationTrying {
		return "", false
	}
	return r.endpoints[r.idx], true
}

func (r *rotation) succeed() {
	if r.state != rotationTrying {
		return
	}
	r.state = rotationSucceeded
}

func (r *rotation) fail(err error) {
	if r.state != rotationTrying {
		return
	}
	r.attempts = append(r.attempts, &TransportError{Endpoint: r.endpoints[r.idx], Err: err})
	r.idx++
	if r.idx >= len(r.endpoints) {
		r.state = rotationExhausted
	}
}

func (r *rotation) exhaustedError(method string) *AllEndpointsUnavailableError {
	return &AllEndpointsUnavailableError{Method: method, Attempts: r.attempts}
}
