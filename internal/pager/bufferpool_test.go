package pager

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestPool(t *testing.T, capacity int) (*FileHandle, *BufferPool) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.blk")
	fm, err := NewFileManager(Config{BlockSize: 256, PreallocateBytes: 256})
	if err != nil {
		t.Fatal(err)
	}
	fh, err := fm.CreateTableFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := NewBufferPool(fh, capacity)
	if err != nil {
		t.Fatal(err)
	}
	return fh, pool
}

// newTestDataBlock allocates and formats a fresh slotted page without
// fetching it, so callers start from an unpinned, uncached block.
func newTestDataBlock(t *testing.T, pool *BufferPool, minFreeBytes uint32) BlockID {
	t.Helper()
	block, err := pool.AllocateDataPage(minFreeBytes)
	if err != nil {
		t.Fatalf("AllocateDataPage: %v", err)
	}
	return block
}

func TestAllocateDataPageReturnsUnpinnedFormattedBlock(t *testing.T) {
	fh, pool := newTestPool(t, 4)
	defer pool.Close()

	block := newTestDataBlock(t, pool, 0)
	if _, ok := pool.frames[block]; ok {
		t.Fatalf("AllocateDataPage must not leave the page pinned or cached")
	}

	g, err := pool.Fetch(block)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer g.Release()
	page, err := LoadSlottedPage(g)
	if err != nil {
		t.Fatalf("LoadSlottedPage on a freshly allocated page: %v", err)
	}
	if page.SlotCount() != 0 {
		t.Fatalf("fresh page has %d slots, want 0", page.SlotCount())
	}
	if page.FreeBytes() != uint16(maxFreeBytes(fh.BlockSize())) {
		t.Fatalf("fresh page FreeBytes = %d, want %d", page.FreeBytes(), maxFreeBytes(fh.BlockSize()))
	}
}

func TestBufferPoolFetchCachesAcrossCalls(t *testing.T) {
	_, pool := newTestPool(t, 4)
	defer pool.Close()

	block := newTestDataBlock(t, pool, 0)

	g1, err := pool.Fetch(block)
	if err != nil {
		t.Fatal(err)
	}
	g1.Release()

	g2, err := pool.Fetch(block)
	if err != nil {
		t.Fatal(err)
	}
	defer g2.Release()
	if g2.Block() != block {
		t.Fatalf("Fetch returned wrong block")
	}
	if g2.fr != g1.fr {
		t.Fatalf("second Fetch of %s did not reuse the cached frame", block)
	}
}

func TestBufferPoolEvictsLeastRecentlyUsedUnpinned(t *testing.T) {
	_, pool := newTestPool(t, 2)
	defer pool.Close()

	var blocks []BlockID
	for i := 0; i < 2; i++ {
		block := newTestDataBlock(t, pool, 0)
		g, err := pool.Fetch(block)
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, block)
		g.Release()
	}

	// Fetching a third distinct block should evict blocks[0] (LRU), not
	// blocks[1] (more recently touched).
	block3 := newTestDataBlock(t, pool, 0)
	g3, err := pool.Fetch(block3)
	if err != nil {
		t.Fatal(err)
	}
	g3.Release()

	if _, ok := pool.frames[blocks[0]]; ok {
		t.Fatalf("expected LRU block %s to have been evicted", blocks[0])
	}
	if _, ok := pool.frames[blocks[1]]; !ok {
		t.Fatalf("expected recently used block %s to remain cached", blocks[1])
	}
}

func TestBufferPoolReturnsErrNoVictimWhenAllPinned(t *testing.T) {
	_, pool := newTestPool(t, 1)
	defer pool.Close()

	block1 := newTestDataBlock(t, pool, 0)
	g1, err := pool.Fetch(block1)
	if err != nil {
		t.Fatal(err)
	}
	defer g1.Release()

	block2 := newTestDataBlock(t, pool, 0)
	if _, err := pool.Fetch(block2); !errors.Is(err, ErrNoVictim) {
		t.Fatalf("Fetch of a second block with the only frame pinned = %v, want ErrNoVictim", err)
	}
}

func TestPageGuardPanicsAfterRelease(t *testing.T) {
	_, pool := newTestPool(t, 2)
	defer pool.Close()

	block := newTestDataBlock(t, pool, 0)
	g, err := pool.Fetch(block)
	if err != nil {
		t.Fatal(err)
	}
	g.Release()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on use of a released PageGuard")
		}
	}()
	_ = g.Bytes()
}

func TestFlushAllWritesDirtyFramesWithoutEvicting(t *testing.T) {
	_, pool := newTestPool(t, 4)
	defer pool.Close()

	block := newTestDataBlock(t, pool, 0)
	g, err := pool.Fetch(block)
	if err != nil {
		t.Fatal(err)
	}
	page, err := LoadSlottedPage(g)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := page.InsertRecord([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	g.Release()

	if err := pool.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok := pool.frames[block]; !ok {
		t.Fatalf("FlushAll should not evict frames, only write them back")
	}
}
