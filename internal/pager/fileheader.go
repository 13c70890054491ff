package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// File header — block 0
// ───────────────────────────────────────────────────────────────────────────
//
// Layout (16 bytes, little-endian, zero-padded to the end of block 0):
//
//  Offset  Size  Field
//  ──────  ────  ──────────────────
//  0       4     BlkCnt          uint32
//  4       4     FirstFreeHole   int32   (-1 = empty)
//  8       4     Reserved1       int32   (opaque, round-trips unchanged)
//  12      4     Reserved2       int32   (opaque, round-trips unchanged)

const (
	fhBlkCntOff = 0
	fhFreeOff   = 4
	fhRsvd1Off  = 8
	fhRsvd2Off  = 12
)

// FileHeader is the parsed contents of block 0.
type FileHeader struct {
	BlkCnt         uint32
	FirstFreeHole  int32
	Reserved1      int32
	Reserved2      int32
}

// NewFileHeader returns the header written for a freshly created file: one
// block (the header itself) and an empty free list.
func NewFileHeader() FileHeader {
	return FileHeader{BlkCnt: 1, FirstFreeHole: int32(invalidBlock)}
}

// MarshalFileHeader writes h into the first FileHeaderSize bytes of buf. buf
// must be at least one full block; the remainder is left untouched by this
// call (callers zero the block before calling it).
func MarshalFileHeader(h FileHeader, buf []byte) {
	binary.LittleEndian.PutUint32(buf[fhBlkCntOff:], h.BlkCnt)
	binary.LittleEndian.PutUint32(buf[fhFreeOff:], uint32(h.FirstFreeHole))
	binary.LittleEndian.PutUint32(buf[fhRsvd1Off:], uint32(h.Reserved1))
	binary.LittleEndian.PutUint32(buf[fhRsvd2Off:], uint32(h.Reserved2))
}

// UnmarshalFileHeader parses a FileHeader from the start of buf.
func UnmarshalFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("%w: file header needs %d bytes, got %d", ErrCorrupt, FileHeaderSize, len(buf))
	}
	h := FileHeader{
		BlkCnt:        binary.LittleEndian.Uint32(buf[fhBlkCntOff:]),
		FirstFreeHole: int32(binary.LittleEndian.Uint32(buf[fhFreeOff:])),
		Reserved1:     int32(binary.LittleEndian.Uint32(buf[fhRsvd1Off:])),
		Reserved2:     int32(binary.LittleEndian.Uint32(buf[fhRsvd2Off:])),
	}
	if h.BlkCnt < 1 {
		return FileHeader{}, fmt.Errorf("%w: blk_cnt must be >= 1, got %d", ErrCorrupt, h.BlkCnt)
	}
	if h.FirstFreeHole < -1 || h.FirstFreeHole >= int32(h.BlkCnt) {
		return FileHeader{}, fmt.Errorf("%w: first_free_hole %d outside [-1, %d)", ErrCorrupt, h.FirstFreeHole, h.BlkCnt)
	}
	return h, nil
}
