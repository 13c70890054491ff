package pager

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func newTestPage(t *testing.T) (*BufferPool, *PageGuard, *SlottedPage) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "page.blk")
	fm, err := NewFileManager(Config{BlockSize: 128, PreallocateBytes: 128})
	if err != nil {
		t.Fatal(err)
	}
	fh, err := fm.CreateTableFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := NewBufferPool(fh, 4)
	if err != nil {
		t.Fatal(err)
	}
	block, err := pool.AllocateDataPage(0)
	if err != nil {
		t.Fatal(err)
	}
	g, err := pool.Fetch(block)
	if err != nil {
		t.Fatal(err)
	}
	page, err := LoadSlottedPage(g)
	if err != nil {
		t.Fatal(err)
	}
	return pool, g, page
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	pool, g, page := newTestPage(t)
	defer pool.Close()
	defer g.Release()

	slot, err := page.InsertRecord([]byte("alpha"))
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	got, err := page.GetRecord(slot)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if !bytes.Equal(got, []byte("alpha")) {
		t.Fatalf("GetRecord = %q, want %q", got, "alpha")
	}
}

func TestInsertGrowsUpwardAndDirectoryGrowsDownward(t *testing.T) {
	pool, g, page := newTestPage(t)
	defer pool.Close()
	defer g.Release()

	s0, _ := page.InsertRecord([]byte("one"))
	s1, _ := page.InsertRecord([]byte("two"))
	if s1 != s0+1 {
		t.Fatalf("expected sequential slot indices, got %d then %d", s0, s1)
	}

	h := page.header()
	if h.FreeOffset <= uint16(PageHeaderSize) {
		t.Fatalf("FreeOffset did not advance past the header: %d", h.FreeOffset)
	}

	blockSize := len(g.Bytes())
	if at0, at1 := page.slotOffset(blockSize, s0), page.slotOffset(blockSize, s1); at0 != blockSize-slotEntrySize || at1 >= at0 {
		t.Fatalf("slot directory did not grow down from the block end: slot %d at %d, slot %d at %d", s0, at0, s1, at1)
	}
}

func TestDeleteRecordTombstonesSlot(t *testing.T) {
	pool, g, page := newTestPage(t)
	defer pool.Close()
	defer g.Release()

	slot, _ := page.InsertRecord([]byte("gone"))
	if err := page.DeleteRecord(slot); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := page.GetRecord(slot); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRecord after delete = %v, want ErrNotFound", err)
	}
	if err := page.DeleteRecord(slot); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
}

func TestInsertFailsWhenPageIsFull(t *testing.T) {
	pool, g, page := newTestPage(t)
	defer pool.Close()
	defer g.Release()

	payload := make([]byte, 40)
	var err error
	for i := 0; i < 10; i++ {
		if _, err = page.InsertRecord(payload); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expected ErrNoSpace once the page fills up, got %v", err)
	}
}

func TestCompactPreservesSlotIndices(t *testing.T) {
	pool, g, page := newTestPage(t)
	defer pool.Close()
	defer g.Release()

	s0, _ := page.InsertRecord([]byte("keep-a"))
	s1, _ := page.InsertRecord([]byte("drop-me"))
	s2, _ := page.InsertRecord([]byte("keep-b"))

	if err := page.DeleteRecord(s1); err != nil {
		t.Fatal(err)
	}
	freeBefore := page.FreeBytes()
	page.Compact()
	if page.FreeBytes() <= freeBefore {
		t.Fatalf("Compact did not reclaim space: before=%d after=%d", freeBefore, page.FreeBytes())
	}

	gotA, err := page.GetRecord(s0)
	if err != nil || !bytes.Equal(gotA, []byte("keep-a")) {
		t.Fatalf("slot %d after compact = %q, %v; want keep-a", s0, gotA, err)
	}
	gotB, err := page.GetRecord(s2)
	if err != nil || !bytes.Equal(gotB, []byte("keep-b")) {
		t.Fatalf("slot %d after compact = %q, %v; want keep-b", s2, gotB, err)
	}
	if _, err := page.GetRecord(s1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tombstoned slot %d resurrected after compact", s1)
	}
}

func TestInsertRejectsEmptyRecord(t *testing.T) {
	pool, g, page := newTestPage(t)
	defer pool.Close()
	defer g.Release()

	if _, err := page.InsertRecord(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("InsertRecord(nil) = %v, want ErrInvalidInput", err)
	}
}
