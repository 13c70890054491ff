package pager

import (
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// FileHandle owns an open managed file and the in-memory copy of its
// header. All block-granular I/O for one file routes through exactly one
// FileHandle.
type FileHandle struct {
	file        *os.File
	path        string
	blockSize   int
	header      FileHeader
	headerDirty bool
	sessionID   uuid.UUID
}

func openHandle(f *os.File, path string, blockSize int, h FileHeader) *FileHandle {
	return &FileHandle{
		file:      f,
		path:      path,
		blockSize: blockSize,
		header:    h,
		sessionID: newSessionID(),
	}
}

// BlockSize returns the configured block size.
func (fh *FileHandle) BlockSize() int { return fh.blockSize }

// Header returns a snapshot of the current in-memory header.
func (fh *FileHandle) Header() FileHeader { return fh.header }

// Path returns the path of the managed file.
func (fh *FileHandle) Path() string { return fh.path }

func (fh *FileHandle) blockOffset(n BlockID) int64 {
	return int64(n) * int64(fh.blockSize)
}

func (fh *FileHandle) checkRange(n BlockID) error {
	if uint32(n) >= fh.header.BlkCnt {
		return fmt.Errorf("%w: block %s (blk_cnt=%d)", ErrOutOfRange, n, fh.header.BlkCnt)
	}
	return nil
}

// ReadBlock reads exactly one block into buf. buf must be BlockSize() bytes
// long; block 0 (the file header) is not readable through this path.
func (fh *FileHandle) ReadBlock(n BlockID, buf []byte) error {
	if n == 0 {
		return fmt.Errorf("%w: block 0 is reserved for the file header", ErrInvalidInput)
	}
	if len(buf) != fh.blockSize {
		return fmt.Errorf("%w: buffer length %d != block size %d", ErrInvalidInput, len(buf), fh.blockSize)
	}
	if err := fh.checkRange(n); err != nil {
		return err
	}
	if _, err := fh.file.ReadAt(buf, fh.blockOffset(n)); err != nil {
		return fmt.Errorf("read block %s: %w", n, err)
	}
	return nil
}

// WriteBlock writes exactly one block. Symmetric to ReadBlock; block 0 is
// not writable through this path.
func (fh *FileHandle) WriteBlock(n BlockID, buf []byte) error {
	if n == 0 {
		return fmt.Errorf("%w: block 0 is reserved for the file header", ErrInvalidInput)
	}
	if len(buf) != fh.blockSize {
		return fmt.Errorf("%w: buffer length %d != block size %d", ErrInvalidInput, len(buf), fh.blockSize)
	}
	if err := fh.checkRange(n); err != nil {
		return err
	}
	if _, err := fh.file.WriteAt(buf, fh.blockOffset(n)); err != nil {
		return fmt.Errorf("write block %s: %w", n, err)
	}
	return nil
}

func (fh *FileHandle) readFreeHeader(n BlockID) (FreeHeader, error) {
	buf := make([]byte, FreeHeaderSize)
	if _, err := fh.file.ReadAt(buf, fh.blockOffset(n)); err != nil {
		return FreeHeader{}, fmt.Errorf("read free header of block %s: %w", n, err)
	}
	return UnmarshalFreeHeader(buf), nil
}

func (fh *FileHandle) writeFreeHeader(n BlockID, h FreeHeader) error {
	buf := make([]byte, FreeHeaderSize)
	MarshalFreeHeader(h, buf)
	if _, err := fh.file.WriteAt(buf, fh.blockOffset(n)); err != nil {
		return fmt.Errorf("write free header of block %s: %w", n, err)
	}
	return nil
}

// onFreeList reports whether block n is currently threaded into the free
// list, by walking the list from its head. Block n's own first bytes are
// not consulted: on a live block they hold the slotted-page header.
func (fh *FileHandle) onFreeList(n BlockID) (bool, error) {
	for cur := fh.header.FirstFreeHole; cur != invalidBlock; {
		if cur == int32(n) {
			return true, nil
		}
		h, err := fh.readFreeHeader(BlockID(cur))
		if err != nil {
			return false, err
		}
		cur = h.NextFreePage
	}
	return false, nil
}

// AllocateBlock returns a block ready for live use: the head of the free
// list if one exists, otherwise a freshly appended block. The returned
// block is live from the moment it is returned — it is never handed out
// already threaded onto the free list.
func (fh *FileHandle) AllocateBlock() (BlockID, error) {
	return fh.AllocateBlockWithSpace(0)
}

// AllocateBlockWithSpace behaves like AllocateBlock but walks the free list
// for the first block whose recorded free_bytes is at least minFreeBytes,
// falling back to appending a fresh block when no free block qualifies (or
// the free list is empty).
func (fh *FileHandle) AllocateBlockWithSpace(minFreeBytes uint32) (BlockID, error) {
	if found, err := fh.takeFreeBlock(minFreeBytes); err != nil {
		return 0, err
	} else if found >= 0 {
		return BlockID(found), nil
	}
	return fh.appendBlock()
}

// takeFreeBlock walks the free list looking for a block with enough spare
// capacity, detaches it, and returns it live. Returns -1 (not an error) if
// no qualifying block exists.
func (fh *FileHandle) takeFreeBlock(minFreeBytes uint32) (int32, error) {
	cur := fh.header.FirstFreeHole
	for cur != invalidBlock {
		blk := BlockID(cur)
		h, err := fh.readFreeHeader(blk)
		if err != nil {
			return 0, err
		}
		if h.FreeBytes >= minFreeBytes {
			if err := fh.detachFromFreeList(blk, h); err != nil {
				return 0, err
			}
			h.NextFreePage, h.PrevFreePage = invalidBlock, invalidBlock
			if err := fh.writeFreeHeader(blk, h); err != nil {
				return 0, err
			}
			return int32(blk), nil
		}
		cur = h.NextFreePage
	}
	return -1, nil
}

// detachFromFreeList unlinks block n from the doubly linked free list,
// writing the side that remains linked before updating the header's head
// pointer, per the ordering discipline.
func (fh *FileHandle) detachFromFreeList(n BlockID, h FreeHeader) error {
	if h.PrevFreePage != invalidBlock {
		prev, err := fh.readFreeHeader(BlockID(h.PrevFreePage))
		if err != nil {
			return err
		}
		prev.NextFreePage = h.NextFreePage
		if err := fh.writeFreeHeader(BlockID(h.PrevFreePage), prev); err != nil {
			return err
		}
	} else {
		fh.header.FirstFreeHole = h.NextFreePage
		fh.headerDirty = true
	}
	if h.NextFreePage != invalidBlock {
		next, err := fh.readFreeHeader(BlockID(h.NextFreePage))
		if err != nil {
			return err
		}
		next.PrevFreePage = h.PrevFreePage
		if err := fh.writeFreeHeader(BlockID(h.NextFreePage), next); err != nil {
			return err
		}
	}
	return nil
}

// appendBlock extends the file by one block, initializes it as an empty
// free block, and returns its id.
func (fh *FileHandle) appendBlock() (BlockID, error) {
	n := BlockID(fh.header.BlkCnt)
	end := fh.blockOffset(n) + int64(fh.blockSize)
	info, err := fh.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", fh.path, err)
	}
	if info.Size() < end {
		if err := fh.file.Truncate(end); err != nil {
			return 0, fmt.Errorf("extend file for block %s: %w", n, err)
		}
	}
	block := make([]byte, fh.blockSize)
	MarshalFreeHeader(FreeHeader{NextFreePage: invalidBlock, PrevFreePage: invalidBlock, FreeBytes: maxFreeBytes(fh.blockSize)}, block)
	if _, err := fh.file.WriteAt(block, fh.blockOffset(n)); err != nil {
		return 0, fmt.Errorf("initialize block %s: %w", n, err)
	}
	fh.header.BlkCnt++
	fh.headerDirty = true
	return n, nil
}

// FreeBlock returns block n to the free list. It is idempotent: a block
// already threaded onto the list is left untouched.
func (fh *FileHandle) FreeBlock(n BlockID) error {
	if n == 0 {
		return fmt.Errorf("%w: block 0 is reserved for the file header", ErrInvalidInput)
	}
	if err := fh.checkRange(n); err != nil {
		return err
	}
	if free, err := fh.onFreeList(n); err != nil {
		return err
	} else if free {
		return nil
	}

	newHead := FreeHeader{
		NextFreePage: fh.header.FirstFreeHole,
		PrevFreePage: invalidBlock,
		FreeBytes:    maxFreeBytes(fh.blockSize),
	}
	block := make([]byte, fh.blockSize)
	MarshalFreeHeader(newHead, block)
	if _, err := fh.file.WriteAt(block, fh.blockOffset(n)); err != nil {
		return fmt.Errorf("free block %s: %w", n, err)
	}
	if newHead.NextFreePage != invalidBlock {
		oldHead, err := fh.readFreeHeader(BlockID(newHead.NextFreePage))
		if err != nil {
			return err
		}
		oldHead.PrevFreePage = int32(n)
		if err := fh.writeFreeHeader(BlockID(newHead.NextFreePage), oldHead); err != nil {
			return err
		}
	}
	fh.header.FirstFreeHole = int32(n)
	fh.headerDirty = true
	return nil
}

// Flush persists the file header if dirty and fsyncs the file. This is the
// durability barrier: Close alone only makes a best-effort attempt.
func (fh *FileHandle) Flush() error {
	if fh.headerDirty {
		block := make([]byte, fh.blockSize)
		MarshalFileHeader(fh.header, block)
		if _, err := fh.file.WriteAt(block, 0); err != nil {
			return fmt.Errorf("flush file header: %w", err)
		}
		fh.headerDirty = false
	}
	if err := fh.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", fh.path, err)
	}
	return nil
}

// Close attempts to persist a dirty header as a best-effort courtesy, logs
// (but does not return) any failure, and closes the underlying file
// descriptor. Callers that need a durability guarantee must call Flush
// first.
func (fh *FileHandle) Close() error {
	if fh.headerDirty {
		block := make([]byte, fh.blockSize)
		MarshalFileHeader(fh.header, block)
		if _, err := fh.file.WriteAt(block, 0); err != nil {
			log.Printf("pager[%s]: best-effort header flush failed for %s: %v", fh.sessionID, fh.path, err)
		} else {
			fh.headerDirty = false
		}
	}
	info, statErr := fh.file.Stat()
	if statErr == nil {
		log.Printf("pager[%s]: closing %s (%s, %d blocks)", fh.sessionID, fh.path, humanize.Bytes(uint64(info.Size())), fh.header.BlkCnt)
	}
	return fh.file.Close()
}
