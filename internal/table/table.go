// Package table provides a minimal single-table facade over the pager
// package: insert, point lookup, delete, and a full scan, addressed by a
// stable record id. It is not part of the storage core — a higher-level
// query layer would sit above this and is out of scope here — but it is
// the smallest useful collaborator that exercises every pager operation
// end to end.
package table

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kisechan/blockstore/internal/pager"
)

// RID identifies one record: the block it lives in and its slot index
// within that block's slot directory. A RID is stable for the lifetime of
// the record, including across compaction of its block.
type RID struct {
	Block pager.BlockID
	Slot  uint16
}

// String renders a RID for log lines and error messages.
func (r RID) String() string {
	return fmt.Sprintf("%s/%d", r.Block, r.Slot)
}

// Table is a single append-mostly collection of variable-length records
// backed by one managed file.
type Table struct {
	fm   *pager.FileManager
	fh   *pager.FileHandle
	pool *pager.BufferPool

	lastBlock   pager.BlockID
	haveLastBlk bool
}

// Create formats a brand-new table file at path and opens it with a
// buffer pool of the given frame capacity.
func Create(cfg pager.Config, path string, frames int) (*Table, error) {
	fm, err := pager.NewFileManager(cfg)
	if err != nil {
		return nil, err
	}
	fh, err := fm.CreateTableFile(path)
	if err != nil {
		return nil, err
	}
	pool, err := pager.NewBufferPool(fh, frames)
	if err != nil {
		fh.Close()
		return nil, err
	}
	return &Table{fm: fm, fh: fh, pool: pool}, nil
}

// Open opens an existing table file with a buffer pool of the given
// frame capacity.
func Open(cfg pager.Config, path string, frames int) (*Table, error) {
	fm, err := pager.NewFileManager(cfg)
	if err != nil {
		return nil, err
	}
	fh, err := fm.OpenFile(path)
	if err != nil {
		return nil, err
	}
	pool, err := pager.NewBufferPool(fh, frames)
	if err != nil {
		fh.Close()
		return nil, err
	}
	return &Table{fm: fm, fh: fh, pool: pool}, nil
}

// Close flushes all dirty frames and the file header, then closes the
// underlying file.
func (t *Table) Close() error {
	return t.pool.Close()
}

// Checkpoint writes back every dirty frame and the file header without
// closing anything, suitable for a periodic heartbeat.
func (t *Table) Checkpoint() error {
	return t.pool.FlushAll()
}

// Insert stores data as a new record and returns its RID. It prefers
// appending to the most recently written block, compacting that block
// first if tombstones alone would make room, and only falls back to
// AllocateBlockWithSpace (which itself prefers reusing a free-listed block
// over growing the file) when the current block genuinely cannot fit it.
func (t *Table) Insert(data []byte) (RID, error) {
	need := uint16(len(data) + 4)

	if t.haveLastBlk {
		if rid, ok, err := t.tryInsertInto(t.lastBlock, data, need); err != nil {
			return RID{}, err
		} else if ok {
			return rid, nil
		}
	}

	block, err := t.pool.AllocateDataPage(uint32(need))
	if err != nil {
		return RID{}, err
	}
	g, err := t.pool.Fetch(block)
	if err != nil {
		return RID{}, err
	}
	defer g.Release()
	page, err := pager.LoadSlottedPage(g)
	if err != nil {
		return RID{}, err
	}
	slot, err := page.InsertRecord(data)
	if err != nil {
		return RID{}, err
	}
	t.lastBlock, t.haveLastBlk = block, true
	return RID{Block: block, Slot: slot}, nil
}

// tryInsertInto attempts to insert into an already-live block, compacting
// it once if a first attempt fails on space alone. If that is still not
// enough and none of the block's records is live, the block is reformatted
// as an empty page. ok is false (with a nil error) when the block cannot
// hold the record after that.
func (t *Table) tryInsertInto(block pager.BlockID, data []byte, need uint16) (RID, bool, error) {
	g, err := t.pool.Fetch(block)
	if err != nil {
		return RID{}, false, err
	}
	defer g.Release()
	page, err := pager.LoadSlottedPage(g)
	if err != nil {
		return RID{}, false, err
	}

	if page.FreeBytes() < need {
		page.Compact()
		if page.FreeBytes() < need {
			for i := uint16(0); i < page.SlotCount(); i++ {
				if page.IsLive(i) {
					return RID{}, false, nil
				}
			}
			// Every record here has been deleted: reformat the block so its
			// tombstoned slot entries stop taking space.
			page = pager.InitSlottedPage(g, t.fh.BlockSize())
			if page.FreeBytes() < need {
				return RID{}, false, nil
			}
		}
	}
	slot, err := page.InsertRecord(data)
	if err != nil {
		return RID{}, false, err
	}
	return RID{Block: block, Slot: slot}, true, nil
}

// Get returns a copy of the record at rid.
func (t *Table) Get(rid RID) ([]byte, error) {
	g, err := t.pool.Fetch(rid.Block)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	page, err := pager.LoadSlottedPage(g)
	if err != nil {
		return nil, err
	}
	return page.GetRecord(rid.Slot)
}

// Delete tombstones the record at rid. If its block ends up with no live
// records left, the block is returned to the file's free list, unless it
// is the block Insert is currently appending to: that block stays
// allocated, and Insert reformats it once it runs out of room.
func (t *Table) Delete(rid RID) error {
	g, err := t.pool.Fetch(rid.Block)
	if err != nil {
		return err
	}
	page, err := pager.LoadSlottedPage(g)
	if err != nil {
		g.Release()
		return err
	}
	if err := page.DeleteRecord(rid.Slot); err != nil {
		g.Release()
		return err
	}
	empty := true
	for i := uint16(0); i < page.SlotCount(); i++ {
		if page.IsLive(i) {
			empty = false
			break
		}
	}
	g.Release()

	if empty && (!t.haveLastBlk || t.lastBlock != rid.Block) {
		if err := t.pool.FreePage(rid.Block); err != nil {
			return fmt.Errorf("reclaim empty block %s: %w", rid.Block, err)
		}
	}
	return nil
}

// Visit is called once per live record during Scan.
type Visit func(rid RID, data []byte) error

// Scan visits every live record across every data block of the table, in
// block-then-slot order. It skips blocks that are currently threaded onto
// the free list.
func (t *Table) Scan(visit Visit) error {
	free, err := t.freeBlockSet()
	if err != nil {
		return err
	}

	header := t.fh.Header()
	for b := pager.BlockID(1); uint32(b) < header.BlkCnt; b++ {
		if free[b] {
			continue
		}
		if err := t.scanBlock(b, visit); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) scanBlock(b pager.BlockID, visit Visit) error {
	g, err := t.pool.Fetch(b)
	if err != nil {
		return err
	}
	defer g.Release()
	page, err := pager.LoadSlottedPage(g)
	if err != nil {
		return err
	}

	for i := uint16(0); i < page.SlotCount(); i++ {
		if !page.IsLive(i) {
			continue
		}
		data, err := page.GetRecord(i)
		if err != nil {
			return err
		}
		if err := visit(RID{Block: b, Slot: i}, data); err != nil {
			return err
		}
	}
	return nil
}

// freeBlockSet walks the file's free list to determine which blocks are
// currently free, so Scan can tell them apart from live data blocks: every
// block besides block 0 is one or the other, never both.
func (t *Table) freeBlockSet() (map[pager.BlockID]bool, error) {
	free := make(map[pager.BlockID]bool)
	header := t.fh.Header()
	cur := header.FirstFreeHole
	for cur != -1 {
		b := pager.BlockID(cur)
		free[b] = true

		g, err := t.pool.Fetch(b)
		if err != nil {
			return nil, err
		}
		fh := pager.UnmarshalFreeHeader(g.Bytes())
		g.Release()
		cur = fh.NextFreePage
	}
	return free, nil
}

// LiveBlocks returns the ids of every data block that is not on the free
// list, in ascending order. This includes the block Insert is appending
// to even when all of its records have been deleted.
func (t *Table) LiveBlocks() ([]pager.BlockID, error) {
	free, err := t.freeBlockSet()
	if err != nil {
		return nil, err
	}
	header := t.fh.Header()
	var all []pager.BlockID
	for b := pager.BlockID(1); uint32(b) < header.BlkCnt; b++ {
		all = append(all, b)
	}
	return lo.Filter(all, func(b pager.BlockID, _ int) bool { return !free[b] }), nil
}
