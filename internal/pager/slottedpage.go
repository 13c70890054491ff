package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/samber/lo"
)

// ───────────────────────────────────────────────────────────────────────────
// Slotted page — variable-length records within one live block
// ───────────────────────────────────────────────────────────────────────────
//
// Layout of a live block's PageHeaderSize..blockSize region:
//
//   [PageHeaderSize .. FreeOffset)       payload, growing upward from the header
//   [FreeOffset .. slot directory start) free space
//   [slot directory .. blockSize)        slot entries, growing downward
//
// Slot i occupies blockSize - (i+1)*slotEntrySize .. blockSize - i*slotEntrySize,
// and holds (offset uint16, length uint16). A slot with length 0 is a
// tombstone: its index stays reserved (RIDs referencing it are permanently
// dead) but it contributes no payload bytes.

// SlottedPage is an in-memory view over one pinned block's bytes,
// interpreted as a slotted page. It never outlives the PageGuard it was
// loaded from.
type SlottedPage struct {
	guard *PageGuard
}

// LoadSlottedPage wraps an already-fetched guard for slotted access,
// validating the page's header before handing it back: free_offset must
// fall within [PageHeaderSize, blockSize - 4*slot_count], the range the
// payload and slot directory can never legally overlap. A block that is
// still on the free list, or otherwise corrupt, fails this check with
// ErrCorrupt instead of letting a later read slice out of bounds.
func LoadSlottedPage(g *PageGuard) (*SlottedPage, error) {
	p := &SlottedPage{guard: g}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SlottedPage) validate() error {
	h := p.header()
	blockSize := len(p.guard.Bytes())
	dirStart := blockSize - int(h.SlotCount)*slotEntrySize
	if dirStart < PageHeaderSize || int(h.FreeOffset) < PageHeaderSize || int(h.FreeOffset) > dirStart {
		return fmt.Errorf("%w: block %s has free_offset=%d slot_count=%d outside [%d, %d]",
			ErrCorrupt, p.guard.Block(), h.FreeOffset, h.SlotCount, PageHeaderSize, dirStart)
	}
	return nil
}

// emptySlotHeader is the header of a freshly formatted slotted page: no
// slots, all payload space free. Shared by InitSlottedPage and by
// BufferPool.AllocateDataPage, which formats a page without ever pinning it.
func emptySlotHeader(blockSize int) SlotHeader {
	return SlotHeader{SlotCount: 0, FreeOffset: uint16(PageHeaderSize), FreeBytes: uint16(maxFreeBytes(blockSize))}
}

// InitSlottedPage formats an already-fetched guard as an empty slotted
// page: no slots, all payload space free. Most callers never need this
// directly — BufferPool.AllocateDataPage formats new pages itself — but it
// is the building block that does so, and is useful for reformatting a
// block in place (e.g. in tests that drive the pager below the table
// facade).
func InitSlottedPage(g *PageGuard, blockSize int) *SlottedPage {
	MarshalSlotHeader(emptySlotHeader(blockSize), g.Bytes())
	g.MarkDirty()
	return &SlottedPage{guard: g}
}

func (p *SlottedPage) header() SlotHeader {
	return UnmarshalSlotHeader(p.guard.Bytes())
}

func (p *SlottedPage) setHeader(h SlotHeader) {
	MarshalSlotHeader(h, p.guard.Bytes())
}

func (p *SlottedPage) slotOffset(slotSize int, i uint16) int {
	return slotSize - (int(i)+1)*slotEntrySize
}

func (p *SlottedPage) readSlot(i uint16) (offset, length uint16) {
	buf := p.guard.Bytes()
	at := p.slotOffset(len(buf), i)
	return binary.LittleEndian.Uint16(buf[at:]), binary.LittleEndian.Uint16(buf[at+2:])
}

func (p *SlottedPage) writeSlot(i uint16, offset, length uint16) {
	buf := p.guard.Bytes()
	at := p.slotOffset(len(buf), i)
	binary.LittleEndian.PutUint16(buf[at:], offset)
	binary.LittleEndian.PutUint16(buf[at+2:], length)
}

// SlotCount returns the number of slot-directory entries, live and
// tombstoned alike.
func (p *SlottedPage) SlotCount() uint16 {
	return p.header().SlotCount
}

// InsertRecord appends data as a new slot and returns its index. It fails
// with ErrNoSpace if data plus a new slot entry does not fit in the
// page's current free region; callers needing more room must Compact
// first.
func (p *SlottedPage) InsertRecord(data []byte) (uint16, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: record must be non-empty", ErrInvalidInput)
	}
	if len(data) > 0xFFFF {
		return 0, fmt.Errorf("%w: record of %d bytes exceeds a page", ErrInvalidInput, len(data))
	}
	h := p.header()
	need := len(data) + slotEntrySize
	if need > int(h.FreeBytes) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrNoSpace, need, h.FreeBytes)
	}

	buf := p.guard.Bytes()
	copy(buf[h.FreeOffset:], data)
	idx := h.SlotCount
	p.writeSlot(idx, h.FreeOffset, uint16(len(data)))

	h.SlotCount++
	h.FreeOffset += uint16(len(data))
	h.FreeBytes -= uint16(need)
	p.setHeader(h)
	p.guard.MarkDirty()
	return idx, nil
}

// GetRecord returns a copy of the payload stored at slot i. Returns
// ErrNotFound for an out-of-range or tombstoned slot.
func (p *SlottedPage) GetRecord(i uint16) ([]byte, error) {
	h := p.header()
	if i >= h.SlotCount {
		return nil, fmt.Errorf("%w: slot %d, have %d slots", ErrNotFound, i, h.SlotCount)
	}
	offset, length := p.readSlot(i)
	if length == 0 {
		return nil, fmt.Errorf("%w: slot %d is deleted", ErrNotFound, i)
	}
	buf := p.guard.Bytes()
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, nil
}

// DeleteRecord tombstones slot i: its payload bytes become reclaimable by
// Compact but its index is never reused. Deleting an already-deleted or
// out-of-range slot returns ErrNotFound.
func (p *SlottedPage) DeleteRecord(i uint16) error {
	h := p.header()
	if i >= h.SlotCount {
		return fmt.Errorf("%w: slot %d, have %d slots", ErrNotFound, i, h.SlotCount)
	}
	_, length := p.readSlot(i)
	if length == 0 {
		return fmt.Errorf("%w: slot %d is deleted", ErrNotFound, i)
	}
	p.writeSlot(i, 0, 0)
	p.guard.MarkDirty()
	return nil
}

// IsLive reports whether slot i currently holds a record.
func (p *SlottedPage) IsLive(i uint16) bool {
	h := p.header()
	if i >= h.SlotCount {
		return false
	}
	_, length := p.readSlot(i)
	return length != 0
}

// FreeBytes returns the page's current contiguous free space, the same
// quantity AllocateBlockWithSpace matches against.
func (p *SlottedPage) FreeBytes() uint16 {
	return p.header().FreeBytes
}

// Compact reclaims space from tombstoned slots by repacking live payload
// bytes contiguously from the start of the payload region. Slot indices
// are preserved exactly: a live record at slot i before Compact is still
// at slot i afterward, at a new offset. This makes every RID stable
// across Compact, at the cost of not being able to shrink SlotCount even
// when its tail is all tombstones.
func (p *SlottedPage) Compact() {
	h := p.header()
	buf := p.guard.Bytes()

	type liveSlot struct {
		idx    uint16
		offset uint16
		length uint16
	}
	var live []liveSlot
	for i := uint16(0); i < h.SlotCount; i++ {
		offset, length := p.readSlot(i)
		if length != 0 {
			live = append(live, liveSlot{i, offset, length})
		}
	}
	live = lo.Filter(live, func(s liveSlot, _ int) bool { return s.length > 0 })

	tmp := make([][]byte, len(live))
	for j, s := range live {
		rec := make([]byte, s.length)
		copy(rec, buf[s.offset:s.offset+s.length])
		tmp[j] = rec
	}

	cursor := uint16(PageHeaderSize)
	for j, s := range live {
		copy(buf[cursor:], tmp[j])
		p.writeSlot(s.idx, cursor, s.length)
		cursor += s.length
	}

	dirEnd := len(buf) - int(h.SlotCount)*slotEntrySize
	h.FreeOffset = cursor
	h.FreeBytes = uint16(dirEnd) - cursor
	p.setHeader(h)
	p.guard.MarkDirty()
}
