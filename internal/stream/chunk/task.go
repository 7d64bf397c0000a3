package chunk

import "voxelstream.ai/internal/stream/meshing"

type Kind string

const (
	KindLoad        Kind = "LOAD"
	KindGenerate    Kind = "GENERATE"
	KindBuildMesh   Kind = "BUILD_MESH"
	KindPrepareSave Kind = "PREPARE_SAVE"
	KindSerialize   Kind = "SERIALIZE"
	KindRemove      Kind = "REMOVE"
)

// IO reports whether tasks of this kind are disk-bound.
func (k Kind) IO() bool {
	return k == KindLoad || k == KindSerialize
}

// Task is one unit of work bound to exactly one chunk.
type Task struct {
	Kind     Kind
	Chunk    *Chunk
	Affinity uint32
	Enqueued uint64

	// SERIALIZE
	Record *Record
}

// Result carries what a task produced back to the coordinator.
type Result struct {
	// LOAD
	Found bool
	// BUILD_MESH
	Mesh *meshing.Buffer
	// PREPARE_SAVE
	Record *Record
}

type Completion struct {
	Task   Task
	Result Result
	Err    error
}

func kindFor(s State) Kind {
	switch s {
	case Loading:
		return KindLoad
	case Generating:
		return KindGenerate
	case MeshBuilding:
		return KindBuildMesh
	case PrepareSaveData:
		return KindPrepareSave
	case Saving:
		return KindSerialize
	case Removing:
		return KindRemove
	}
	return ""
}

func stateFor(k Kind) State {
	switch k {
	case KindLoad:
		return Loading
	case KindGenerate:
		return Generating
	case KindBuildMesh:
		return MeshBuilding
	case KindPrepareSave:
		return PrepareSaveData
	case KindSerialize:
		return Saving
	case KindRemove:
		return Removing
	}
	return Failed
}
