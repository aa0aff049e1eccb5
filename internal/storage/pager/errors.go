package pager

import "errors"

// Sentinel errors classify failures the way the rest of the engine expects
// to branch on them (errors.Is), rather than inspecting message text.
var (
	// ErrIO wraps failures from the underlying file system.
	ErrIO = errors.New("pager: io error")
	// ErrCorruption marks a page or log record that failed integrity checks.
	ErrCorruption = errors.New("pager: corruption detected")
	// ErrBufferPoolFull is returned by fetch/new when every frame is pinned.
	ErrBufferPoolFull = errors.New("pager: buffer pool full")
	// ErrLogOversize is returned when a single WAL record exceeds the
	// manager's buffer budget.
	ErrLogOversize = errors.New("pager: log record too large")
	// ErrPageFull is returned by a table page when an insert does not fit.
	ErrPageFull = errors.New("pager: page full")
	// ErrNoSuchPage is returned when a page id is not resident and not on disk.
	ErrNoSuchPage = errors.New("pager: no such page")
)
