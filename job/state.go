package job

// State is a step of one species job
type State int

const (
	StateInit State = iota
	StateLoadConditions
	StateBuildGraph
	StateProcess // gene batches and the writer run together
	StateCommit
	StateRollback
	StateDone
)

var stateNames = map[State]string{
	StateInit:           "init",
	StateLoadConditions: "load_conditions",
	StateBuildGraph:     "build_graph",
	StateProcess:        "process",
	StateCommit:         "commit",
	StateRollback:       "rollback",
	StateDone:           "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s ends a species job's work
func (s State) Terminal() bool {
	return s == StateCommit || s == StateRollback
}

// next lists the legal transitions; any non-terminal state may fall to rollback
var next = map[State][]State{
	StateInit:           {StateLoadConditions, StateRollback},
	StateLoadConditions: {StateBuildGraph, StateRollback},
	StateBuildGraph:     {StateProcess, StateRollback},
	StateProcess:        {StateCommit, StateRollback},
	StateCommit:         {StateDone, StateRollback},
	StateRollback:       {StateDone},
}

func canTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
