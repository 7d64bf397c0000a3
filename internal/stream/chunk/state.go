package chunk

type State uint8

const (
	Created State = iota
	Loading
	Generating
	Ready
	MeshBuilding
	PrepareSaveData
	Saving
	Removing
	Removed
	Failed
)

var stateNames = [...]string{
	Created:         "CREATED",
	Loading:         "LOADING",
	Generating:      "GENERATING",
	Ready:           "READY",
	MeshBuilding:    "MESH_BUILDING",
	PrepareSaveData: "PREPARE_SAVE_DATA",
	Saving:          "SAVING",
	Removing:        "REMOVING",
	Removed:         "REMOVED",
	Failed:          "FAILED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// InFlight reports whether a task is outstanding for a chunk in this state.
func (s State) InFlight() bool {
	switch s {
	case Loading, Generating, MeshBuilding, PrepareSaveData, Saving, Removing:
		return true
	}
	return false
}

type Verdict uint8

const (
	Rejected Verdict = iota
	Accepted
	Deferred
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "ACCEPTED"
	case Deferred:
		return "DEFERRED"
	default:
		return "REJECTED"
	}
}
