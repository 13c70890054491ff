package pager

import (
	"container/list"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
)

// frame is one cache slot: the raw bytes of a block, its pin count, and
// whether it has been written to since it was last loaded or flushed.
type frame struct {
	block    BlockID
	bytes    []byte
	pinCount int
	dirty    bool
	elem     *list.Element // position in the pool's LRU list
}

// BufferPool is a bounded, pinned frame cache sitting between callers and
// a FileHandle. Every ReadBlock a caller would otherwise issue directly is
// instead routed through Fetch, which serves from cache on a hit and
// evicts an unpinned frame (least-recently-used among the unpinned) to
// make room on a miss.
type BufferPool struct {
	fh       *FileHandle
	capacity int
	frames   map[BlockID]*frame
	lru      *list.List // front = most recently used
}

// NewBufferPool wraps fh with a pool of at most capacity frames. capacity
// must be at least 1.
func NewBufferPool(fh *FileHandle, capacity int) (*BufferPool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: buffer pool capacity must be >= 1, got %d", ErrInvalidInput, capacity)
	}
	return &BufferPool{
		fh:       fh,
		capacity: capacity,
		frames:   make(map[BlockID]*frame, capacity),
		lru:      list.New(),
	}, nil
}

// Fetch returns a pinned PageGuard over block id, loading it from the
// underlying file on a miss. Callers must Release the guard when done.
func (bp *BufferPool) Fetch(id BlockID) (*PageGuard, error) {
	if fr, ok := bp.frames[id]; ok {
		bp.touch(fr)
		fr.pinCount++
		return newPageGuard(bp, fr), nil
	}

	if len(bp.frames) >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, bp.fh.BlockSize())
	if err := bp.fh.ReadBlock(id, buf); err != nil {
		return nil, err
	}
	fr := &frame{block: id, bytes: buf, pinCount: 1}
	fr.elem = bp.lru.PushFront(fr)
	bp.frames[id] = fr
	return newPageGuard(bp, fr), nil
}

// AllocateDataPage allocates a fresh block via the underlying file handle,
// formats it as an empty slotted page, and returns its id. The page is NOT
// implicitly fetched or pinned: callers that want to write to it call Fetch
// themselves, same as for any other block.
func (bp *BufferPool) AllocateDataPage(minFreeBytes uint32) (BlockID, error) {
	id, err := bp.fh.AllocateBlockWithSpace(minFreeBytes)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, bp.fh.BlockSize())
	MarshalSlotHeader(emptySlotHeader(bp.fh.BlockSize()), buf)
	if err := bp.fh.WriteBlock(id, buf); err != nil {
		return 0, err
	}
	if fr, ok := bp.frames[id]; ok {
		copy(fr.bytes, buf)
		fr.dirty = false
	}
	return id, nil
}

// FreePage returns block id to the file's free list. The caller must not
// be holding a guard over it. A cached frame of the block is dropped
// without being written back.
func (bp *BufferPool) FreePage(id BlockID) error {
	if fr, ok := bp.frames[id]; ok && fr.pinCount > 0 {
		return fmt.Errorf("%w: block %s is still pinned", ErrInvalidInput, id)
	}
	if fr, ok := bp.frames[id]; ok {
		fr.dirty = false
		bp.evict(fr)
	}
	return bp.fh.FreeBlock(id)
}

// unpin decrements a frame's pin count. Once it reaches zero the frame
// becomes eligible for eviction, though it stays cached until space is
// actually needed.
func (bp *BufferPool) unpin(fr *frame, markDirty bool) {
	if markDirty {
		fr.dirty = true
	}
	if fr.pinCount > 0 {
		fr.pinCount--
	}
}

func (bp *BufferPool) touch(fr *frame) {
	bp.lru.MoveToFront(fr.elem)
}

// evictOne finds the least-recently-used unpinned frame and evicts it,
// writing it back first if dirty.
func (bp *BufferPool) evictOne() error {
	for e := bp.lru.Back(); e != nil; e = e.Prev() {
		fr := e.Value.(*frame)
		if fr.pinCount == 0 {
			return bp.evict(fr)
		}
	}
	return ErrNoVictim
}

func (bp *BufferPool) evict(fr *frame) error {
	if fr.dirty {
		if err := bp.fh.WriteBlock(fr.block, fr.bytes); err != nil {
			return fmt.Errorf("evict block %s: %w", fr.block, err)
		}
	}
	bp.lru.Remove(fr.elem)
	delete(bp.frames, fr.block)
	return nil
}

// FlushAll writes back every dirty frame without evicting any of them,
// used for periodic checkpoints and orderly shutdown.
func (bp *BufferPool) FlushAll() error {
	flushed := 0
	for id, fr := range bp.frames {
		if !fr.dirty {
			continue
		}
		if err := bp.fh.WriteBlock(id, fr.bytes); err != nil {
			return fmt.Errorf("flush block %s: %w", id, err)
		}
		fr.dirty = false
		flushed++
	}
	if flushed > 0 {
		log.Printf("pager: flushed %d dirty frame(s) of %s", flushed, humanize.Bytes(uint64(flushed*bp.fh.BlockSize())))
	}
	return bp.fh.Flush()
}

// Close flushes every dirty frame and closes the underlying file handle.
func (bp *BufferPool) Close() error {
	if err := bp.FlushAll(); err != nil {
		return err
	}
	return bp.fh.Close()
}
