package pager

import "errors"

// Error taxonomy. Callers distinguish kinds with errors.Is; context is
// attached with fmt.Errorf("...: %w", sentinel) at the point of failure.
// Underlying OS/file errors are surfaced verbatim and are not wrapped in
// one of these sentinels — callers that care check errors.Is against the
// stdlib errors (os.ErrNotExist and friends), exactly as the rest of this
// codebase does outside the pager package.
var (
	// ErrInvalidInput means the caller violated a documented precondition:
	// a mismatched buffer length, a block-0 access through a data-block
	// API, an empty or oversized record, or similar.
	ErrInvalidInput = errors.New("pager: invalid input")

	// ErrOutOfRange means a block number is not less than the file's
	// current block count.
	ErrOutOfRange = errors.New("pager: block number out of range")

	// ErrNotFound means a slot is a tombstone, does not exist, or (at the
	// file-manager level) a file was expected to exist and does not.
	ErrNotFound = errors.New("pager: not found")

	// ErrAlreadyExists means a create operation targeted a path that is
	// already present.
	ErrAlreadyExists = errors.New("pager: already exists")

	// ErrNoSpace means a page's current free region cannot fit a record
	// plus its slot-directory entry. InsertRecord does not compact the
	// page before reporting it.
	ErrNoSpace = errors.New("pager: page out of space")

	// ErrNoVictim means every frame in the buffer pool is pinned, so a
	// cache miss cannot be serviced.
	ErrNoVictim = errors.New("pager: no unpinned frame to evict")

	// ErrCorrupt means on-disk bytes failed structural validation: a
	// header too small to parse, a free_offset outside its legal range,
	// or a free-list pointer outside [-1, blk_cnt).
	ErrCorrupt = errors.New("pager: corrupt on-disk structure")
)
