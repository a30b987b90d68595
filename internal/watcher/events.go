package watcher

// Op classifies what happened to a library file
type Op int

const (
	// Changed covers both newly created and modified files
	Changed Op = iota
	// Removed means the file is gone from disk
	Removed
	// Renamed means the file moved within the library
	Renamed
)

// String returns a human-readable name for logging
func (o Op) String() string {
	switch o {
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is a single filesystem change observed by the watcher
type Event struct {
	Op      Op
	Path    string
	OldPath string // previous path, set only for Renamed
	IsNew   bool   // Changed event for a file not seen before
}

// RenamePair records a file move from one path to another
type RenamePair struct {
	From string
	To   string
}

// Batch is a debounced group of events sharing one operation. Changed and
// Removed batches carry Paths; Renamed batches carry Pairs.
type Batch struct {
	Kind  Op
	Paths []string
	Pairs []RenamePair
}
