package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Page header — two disjoint views of the first bytes of a data block
// ───────────────────────────────────────────────────────────────────────────
//
// A block is either free or live, never both, so the two views never need
// to agree on layout. The free view occupies the first 12 bytes; the
// slotted view occupies the first 6. Both start at offset 0.
//
//  Free view (12 bytes):
//    [0:4]   NextFreePage  int32 (-1 = list end)
//    [4:8]   PrevFreePage  int32 (-1 = no predecessor)
//    [8:12]  FreeBytes     uint32
//
//  Slotted view (6 bytes):
//    [0:2]   SlotCount    uint16
//    [2:4]   FreeOffset   uint16
//    [4:6]   FreeBytes    uint16

const (
	flNextOff = 0
	flPrevOff = 4
	flFreeOff = 8

	spSlotCountOff  = 0
	spFreeOffOff    = 2
	spFreeBytesOff  = 4
)

// FreeHeader is the in-memory form of a free block's header.
type FreeHeader struct {
	NextFreePage int32
	PrevFreePage int32
	FreeBytes    uint32
}

// MarshalFreeHeader writes h into the first FreeHeaderSize bytes of buf.
func MarshalFreeHeader(h FreeHeader, buf []byte) {
	binary.LittleEndian.PutUint32(buf[flNextOff:], uint32(h.NextFreePage))
	binary.LittleEndian.PutUint32(buf[flPrevOff:], uint32(h.PrevFreePage))
	binary.LittleEndian.PutUint32(buf[flFreeOff:], h.FreeBytes)
}

// UnmarshalFreeHeader reads a FreeHeader from the start of buf.
func UnmarshalFreeHeader(buf []byte) FreeHeader {
	return FreeHeader{
		NextFreePage: int32(binary.LittleEndian.Uint32(buf[flNextOff:])),
		PrevFreePage: int32(binary.LittleEndian.Uint32(buf[flPrevOff:])),
		FreeBytes:    binary.LittleEndian.Uint32(buf[flFreeOff:]),
	}
}

// SlotHeader is the in-memory form of a live slotted page's header.
type SlotHeader struct {
	SlotCount  uint16
	FreeOffset uint16
	FreeBytes  uint16
}

// MarshalSlotHeader writes h into the first PageHeaderSize bytes of buf.
func MarshalSlotHeader(h SlotHeader, buf []byte) {
	binary.LittleEndian.PutUint16(buf[spSlotCountOff:], h.SlotCount)
	binary.LittleEndian.PutUint16(buf[spFreeOffOff:], h.FreeOffset)
	binary.LittleEndian.PutUint16(buf[spFreeBytesOff:], h.FreeBytes)
}

// UnmarshalSlotHeader reads a SlotHeader from the start of buf.
func UnmarshalSlotHeader(buf []byte) SlotHeader {
	return SlotHeader{
		SlotCount:  binary.LittleEndian.Uint16(buf[spSlotCountOff:]),
		FreeOffset: binary.LittleEndian.Uint16(buf[spFreeOffOff:]),
		FreeBytes:  binary.LittleEndian.Uint16(buf[spFreeBytesOff:]),
	}
}

// maxFreeBytes returns the usable payload size of a block once the slotted
// header is accounted for, used when initializing a fresh free or live page.
func maxFreeBytes(blockSize int) uint32 {
	return uint32(blockSize - PageHeaderSize)
}
