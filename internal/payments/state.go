package payments

import "fmt"

// State is a step of the transfer state machine. Aborted is reachable from
// every non-terminal state.
type State int

const (
    StateValidating State = iota
    StateConverting
    StateMutating
    StateRecording
    StateCommitted
    StateAborted
)

func (s State) String() string {
    switch s {
    case StateValidating:
        return "Validating"
    case StateConverting:
        return "Converting"
    case StateMutating:
        return "Mutating"
    case StateRecording:
        return "Recording"
    case StateCommitted:
        return "Committed"
    case StateAborted:
        return "Aborted"
    default:
        return fmt.Sprintf("State(%d)", int(s))
    }
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
    return s == StateCommitted || s == StateAborted
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
    return []byte(s.String()), nil
}
