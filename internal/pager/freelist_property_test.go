package pager

import (
	"math/rand"
	"path/filepath"
	"testing"
)

// ───────────────────────────────────────────────────────────────────────────
// Randomized free-list properties
// ───────────────────────────────────────────────────────────────────────────
//
// TestFreeListInvariantsUnderRandomAllocFree drives a long, seeded random
// sequence of AllocateBlock/AllocateBlockWithSpace/FreeBlock calls against a
// single FileHandle and, after every step, checks the two properties the
// free list must never violate:
//
//  1. reachability / back-link consistency: walking the list forward via
//     NextFreePage and backward via PrevFreePage must agree on the same set
//     of blocks, each node's neighbor pointers must be mutually consistent,
//     and the set of reachable free blocks must exactly equal the set the
//     test itself believes it freed and has not since reallocated.
//  2. alloc/free round trip: a block currently held live by the test must
//     never appear anywhere on the on-disk free list, and a block the test
//     believes is free must never be handed out a second time without an
//     intervening free.

func TestFreeListInvariantsUnderRandomAllocFree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "freelist_prop.blk")
	fm, err := NewFileManager(Config{BlockSize: 128, PreallocateBytes: 128})
	if err != nil {
		t.Fatal(err)
	}
	fh, err := fm.CreateTableFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	rng := rand.New(rand.NewSource(20260731))
	live := map[BlockID]bool{}
	free := map[BlockID]bool{}

	const steps = 2000
	for i := 0; i < steps; i++ {
		// Coin-flip between allocating and freeing, forcing an allocation
		// whenever nothing is live yet to free.
		doAlloc := len(live) == 0 || rng.Intn(2) == 0

		if doAlloc {
			var b BlockID
			var err error
			if rng.Intn(2) == 0 {
				b, err = fh.AllocateBlock()
			} else {
				b, err = fh.AllocateBlockWithSpace(uint32(rng.Intn(64)))
			}
			if err != nil {
				t.Fatalf("step %d: allocate: %v", i, err)
			}
			if live[b] {
				t.Fatalf("step %d: block %s handed out while already live", i, b)
			}
			delete(free, b)
			live[b] = true
		} else {
			var victim BlockID
			for b := range live {
				victim = b
				break
			}
			if err := fh.FreeBlock(victim); err != nil {
				t.Fatalf("step %d: free %s: %v", i, victim, err)
			}
			delete(live, victim)
			free[victim] = true
		}

		checkFreeListConsistency(t, fh, free, live, i)
	}
}

// checkFreeListConsistency walks the on-disk free list in both directions
// and cross-checks it against the model the test maintains in memory.
func checkFreeListConsistency(t *testing.T, fh *FileHandle, wantFree map[BlockID]bool, live map[BlockID]bool, step int) {
	t.Helper()

	forward := map[BlockID]int32{} // block -> the prev it recorded
	order := []BlockID{}
	cur := fh.header.FirstFreeHole
	prevExpected := invalidBlock
	seen := map[BlockID]bool{}
	for cur != invalidBlock {
		b := BlockID(cur)
		if seen[b] {
			t.Fatalf("step %d: free list cycles back to %s", step, b)
		}
		seen[b] = true
		order = append(order, b)

		h, err := fh.readFreeHeader(b)
		if err != nil {
			t.Fatalf("step %d: read free header of %s: %v", step, b, err)
		}
		if h.PrevFreePage != prevExpected {
			t.Fatalf("step %d: block %s has prev=%d, want %d", step, b, h.PrevFreePage, prevExpected)
		}
		forward[b] = h.PrevFreePage
		prevExpected = int32(b)
		cur = h.NextFreePage
	}

	if len(order) != len(wantFree) {
		t.Fatalf("step %d: free list has %d blocks, model has %d", step, len(order), len(wantFree))
	}
	for _, b := range order {
		if !wantFree[b] {
			t.Fatalf("step %d: block %s is on the free list but not in the model's free set", step, b)
		}
		if live[b] {
			t.Fatalf("step %d: block %s is simultaneously free-listed and live", step, b)
		}
	}
}

// TestAllocateBlockWithSpaceNeverReturnsAFreeListedBlockToAnotherCaller
// spot-checks the same round-trip property (#2) through the public
// AllocateBlockWithSpace entry point across many free-list sizes, rather
// than the direct header pokes the test above uses.
func TestAllocateBlockWithSpaceNeverReturnsAFreeListedBlockToAnotherCaller(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "freelist_prop2.blk")
	fm, err := NewFileManager(Config{BlockSize: 128, PreallocateBytes: 128})
	if err != nil {
		t.Fatal(err)
	}
	fh, err := fm.CreateTableFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	rng := rand.New(rand.NewSource(7))
	var pool []BlockID
	for i := 0; i < 500; i++ {
		if len(pool) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(pool))
			victim := pool[idx]
			pool = append(pool[:idx], pool[idx+1:]...)
			if err := fh.FreeBlock(victim); err != nil {
				t.Fatalf("FreeBlock: %v", err)
			}
			continue
		}
		b, err := fh.AllocateBlockWithSpace(uint32(rng.Intn(32)))
		if err != nil {
			t.Fatalf("AllocateBlockWithSpace: %v", err)
		}
		for _, have := range pool {
			if have == b {
				t.Fatalf("AllocateBlockWithSpace returned block %s which is already live", b)
			}
		}
		pool = append(pool, b)
	}
}
