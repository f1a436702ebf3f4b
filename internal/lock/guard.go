package lock

// ReadGuard represents a held read lock of a particular Mode. Callers
// must call Unlock (typically via defer) exactly once; Go has no
// destructors, so unlike the original's Drop impl, a forgotten ReadGuard
// leaks its reservation until the process exits.
//
// viaWriter is captured once, at acquire time, from processOwnsWriter():
// a read lock taken out while the process already held a write lock
// only ever touches the in-process counter, never on-disk state, and
// Unlock must honor that same decision no matter what order the
// surrounding write guard is released in — reevaluating
// processOwnsWriter() at Unlock time would let an out-of-order release
// decrement on-disk reader counts this guard never incremented.
type ReadGuard struct {
	lock      *RWLock
	mode      Mode
	active    bool
	viaWriter bool
}

// Mode returns the mode this guard was acquired with.
func (g *ReadGuard) Mode() Mode { return g.mode }

// Unlock releases the read lock. Calling Unlock more than once is a
// no-op.
func (g *ReadGuard) Unlock() error {
	if !g.active {
		return nil
	}
	g.active = false

	g.lock.processReaderCounts[g.mode].Add(^uint64(0))
	if !g.viaWriter {
		_, err := updateState(g.lock.path, func(st state) (state, bool) {
			if st.readerCounts[g.mode] > 0 {
				st.readerCounts[g.mode]--
			}
			return st, true
		})
		if err != nil {
			return err
		}
		if c := g.lock.readerCounts[g.mode].Load(); c > 0 {
			g.lock.readerCounts[g.mode].Add(^uint64(0))
		}
	}

	return nil
}

// WriteGuard represents a held write lock of a particular Mode. Callers
// must call Unlock (typically via defer) exactly once.
type WriteGuard struct {
	lock   *RWLock
	mode   Mode
	active bool
}

// Mode returns the mode this guard was acquired with.
func (g *WriteGuard) Mode() Mode { return g.mode }

// Unlock releases the write lock. Calling Unlock more than once is a
// no-op.
func (g *WriteGuard) Unlock() error {
	if !g.active {
		return nil
	}
	g.active = false

	prev := g.lock.processHasWriter.Add(^uint64(0)) + 1
	if prev == 1 {
		pid := currentPID()
		_, err := updateState(g.lock.path, func(st state) (state, bool) {
			if st.writerPresent != 0 && st.writerPID == pid {
				st.writerPresent = 0
				st.writerMode = uint8(None)
				st.writerPID = 0
			}
			return st, true
		})
		if err != nil {
			return err
		}
		g.lock.writerPresent.Store(false)
		g.lock.writerMode.Store(uint32(None))
		g.lock.writerPID.Store(0)
	}

	return nil
}
