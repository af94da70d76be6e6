package pipeline

// State is one step of a pipeline run.
type State int

const (
	StateInit State = iota
	StateGather
	StateCategorize
	StateDraftReplies
	StateGroup
	StateGenerateReport
	StateReport
)

var stateNames = map[State]string{
	StateInit:           "INIT",
	StateGather:         "GATHER",
	StateCategorize:     "CATEGORIZE",
	StateDraftReplies:   "DRAFT_REPLIES",
	StateGroup:          "GROUP",
	StateGenerateReport: "GENERATE_REPORT",
	StateReport:         "REPORT",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether s has no outgoing transition.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// transition holds the successor of a state on success and on failure.
type transition struct {
	next      State
	onFailure State
}

// transitions is the complete state machine. REPORT is absent: it is terminal.
var transitions = map[State]transition{
	StateInit:           {next: StateGather, onFailure: StateReport},
	StateGather:         {next: StateCategorize, onFailure: StateReport},
	StateCategorize:     {next: StateDraftReplies, onFailure: StateReport},
	StateDraftReplies:   {next: StateGroup, onFailure: StateReport},
	StateGroup:          {next: StateGenerateReport, onFailure: StateReport},
	StateGenerateReport: {next: StateReport, onFailure: StateReport},
}

// Next returns the state that follows s, on success or on failure.
func Next(s State, failed bool) (State, bool) {
	t, ok := transitions[s]
	if !ok {
		return s, false
	}
	if failed {
		return t.onFailure, true
	}
	return t.next, true
}

// Sequence returns the success path from INIT to REPORT.
func Sequence() []State {
	seq := []State{StateInit}
	for s := StateInit; ; {
		next, ok := Next(s, false)
		if !ok {
			return seq
		}
		seq = append(seq, next)
		s = next
	}
}
