package constants

// CellState tracks one edited cell through autosave.
type CellState string

const (
	CellClean  CellState = "CLEAN"  // matches the server copy
	CellDirty  CellState = "DIRTY"  // edited, not yet sent
	CellSaving CellState = "SAVING" // sent in the in-flight save
)

// RunStatus is the outcome of a multi-file processing run.
type RunStatus string

const (
	RunCompleted RunStatus = "COMPLETED" // every file finished
	RunPartial   RunStatus = "PARTIAL"   // at least one file failed to initialize
	RunFailed    RunStatus = "FAILED"    // a page step failed, run aborted
)
