package agent

// State is the position of a conversation in the turn loop
type State int

const (
	StateAwaitingUserInput State = iota
	StateRequestingCompletion
	StateExecutingTools
	StateDone
	StateIterationLimitReached
)

func (s State) String() string {
	switch s {
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateRequestingCompletion:
		return "requesting_completion"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateIterationLimitReached:
		return "iteration_limit_reached"
	default:
		return "unknown"
	}
}
