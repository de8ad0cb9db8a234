package memorydump

import "errors"

var (
	// ErrUnknownStat is returned when a statistic name is not one of the bucket attributes.
	ErrUnknownStat = errors.New("unknown memory statistic")

	// ErrInvalidStatPath is returned when a "<category path>.<statistic>" string has no '.'.
	ErrInvalidStatPath = errors.New("invalid statistic path")

	// ErrInvalidValue is returned when a byte count is not a base-16 integer.
	ErrInvalidValue = errors.New("invalid hex value")

	// ErrNotProcessDump is returned when an event is not a process memory dump.
	ErrNotProcessDump = errors.New("event is not a process memory dump")

	// ErrEmptyDump is returned when a global dump is built from no events.
	ErrEmptyDump = errors.New("global dump has no process dumps")

	// ErrDumpIDMismatch is returned when process dumps of one global dump carry different ids.
	ErrDumpIDMismatch = errors.New("process dumps have different dump ids")

	// ErrDuplicatePID is returned when two process dumps of one global dump share a pid.
	ErrDuplicatePID = errors.New("duplicate process id in global dump")

	// ErrInconsistentMmaps is returned when only some process dumps carry mmaps.
	ErrInconsistentMmaps = errors.New("process dumps disagree on mmaps presence")

	// ErrInvalidCategoryTree is returned when a category tree definition cannot be loaded.
	ErrInvalidCategoryTree = errors.New("invalid category tree")
)
