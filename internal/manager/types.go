package manager

import (
	"time"

	"modelhost/internal/runtime"
	"modelhost/pkg/types"
)

// State is the lifecycle state of one model instance:
//
//	unloaded -> loading -> loaded <-> active -> unloading -> unloaded
//
// with error reachable from loading or active.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateActive    State = "active"
	StateUnloading State = "unloading"
	StateError     State = "error"
)

// loadedModel is the mutable runtime record for one loaded instance, owned
// exclusively by the Manager and guarded by its mutex.
type loadedModel struct {
	desc        types.ModelDescriptor
	handle      runtime.Handle
	state       State
	// active counts in-flight inferences; the instance leaves the active
	// state only when it drains to zero.
	active      int
	memoryBytes int64
	inferences  uint64
	avgLatency  time.Duration
	lastUsed    time.Time
	created     time.Time
	lastErr     string
}

// Stats is an aggregate snapshot of the loaded set.
type Stats struct {
	LoadedCount     int
	TotalMemoryUsed int64
}
