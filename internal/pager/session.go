package pager

import "github.com/google/uuid"

// newSessionID stamps a FileHandle with a correlation id used only in log
// lines, so that output from several open files in one process can be told
// apart. It carries no on-disk meaning.
func newSessionID() uuid.UUID {
	return uuid.New()
}
