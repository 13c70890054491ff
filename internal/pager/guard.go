package pager

// PageGuard is a pinned handle onto one cached block's bytes. It is a
// plain GC-tracked pointer back into the owning BufferPool — there is no
// raw or unsafe pointer involved, so a guard outliving its frame's
// eviction simply can't happen: the pool keeps the frame pinned (and
// therefore un-evictable) for exactly as long as a guard referencing it
// is outstanding.
type PageGuard struct {
	pool     *BufferPool
	fr       *frame
	released bool
}

func newPageGuard(pool *BufferPool, fr *frame) *PageGuard {
	return &PageGuard{pool: pool, fr: fr}
}

// Block returns the id of the guarded block.
func (g *PageGuard) Block() BlockID {
	g.mustBeLive()
	return g.fr.block
}

// Bytes returns the guarded block's backing slice. Mutations are only
// persisted if the caller also calls MarkDirty before releasing the
// guard.
func (g *PageGuard) Bytes() []byte {
	g.mustBeLive()
	return g.fr.bytes
}

// MarkDirty records that the guard's bytes have been modified and must be
// written back before the frame is ever evicted or flushed.
func (g *PageGuard) MarkDirty() {
	g.mustBeLive()
	g.fr.dirty = true
}

// Release unpins the guard. A guard must not be used again after Release;
// doing so panics.
func (g *PageGuard) Release() {
	g.mustBeLive()
	g.pool.unpin(g.fr, false)
	g.released = true
}

func (g *PageGuard) mustBeLive() {
	if g.released {
		panic("pager: use of PageGuard after Release")
	}
}
