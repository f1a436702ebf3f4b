package lock

import "time"

const (
	initialBackoff = time.Millisecond
	maxBackoff     = time.Second
)

// ReadLock blocks until a read lock of the given mode can be acquired,
// backing off exponentially (1ms doubling to a 1s cap) between
// attempts.
func (l *RWLock) ReadLock(mode Mode) (*ReadGuard, error) {
	if mode == None {
		return nil, ErrInvalidMode
	}

	if l.processOwnsWriter() {
		l.processReaderCounts[mode].Add(1)
		return &ReadGuard{lock: l, mode: mode, active: true, viaWriter: true}, nil
	}

	backoff := initialBackoff
	pid := currentPID()

	for {
		applied, err := updateState(l.path, func(st state) (state, bool) {
			if st.writerPresent != 0 && Mode(st.writerMode) != mode && st.writerPID != pid {
				return st, false
			}
			st.readerCounts[mode]++
			return st, true
		})
		if err != nil {
			return nil, err
		}
		if applied {
			l.readerCounts[mode].Add(1)
			l.processReaderCounts[mode].Add(1)
			return &ReadGuard{lock: l, mode: mode, active: true}, nil
		}

		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

// TryReadLock attempts to acquire a read lock without blocking. It
// returns (nil, nil) if the lock is currently unavailable.
func (l *RWLock) TryReadLock(mode Mode) (*ReadGuard, error) {
	if mode == None {
		return nil, ErrInvalidMode
	}

	if l.processOwnsWriter() {
		l.processReaderCounts[mode].Add(1)
		return &ReadGuard{lock: l, mode: mode, active: true, viaWriter: true}, nil
	}

	pid := currentPID()
	applied, err := updateState(l.path, func(st state) (state, bool) {
		if st.writerPresent != 0 && Mode(st.writerMode) != mode && st.writerPID != pid {
			return st, false
		}
		st.readerCounts[mode]++
		return st, true
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}

	l.readerCounts[mode].Add(1)
	l.processReaderCounts[mode].Add(1)
	return &ReadGuard{lock: l, mode: mode, active: true}, nil
}

// WriteLock blocks until a write lock of the given mode can be
// acquired. A write lock excludes any writer owned by another process
// and any reader of an incompatible mode.
func (l *RWLock) WriteLock(mode Mode) (*WriteGuard, error) {
	if mode == None {
		return nil, ErrInvalidMode
	}

	if l.processOwnsWriter() {
		l.processHasWriter.Add(1)
		return &WriteGuard{lock: l, mode: mode, active: true}, nil
	}

	backoff := initialBackoff
	pid := currentPID()

	for {
		applied, err := updateState(l.path, func(st state) (state, bool) {
			if incompatibleReaders(st.readerCounts, mode) {
				return st, false
			}
			if st.writerPresent != 0 && st.writerPID != pid {
				return st, false
			}
			st.writerMode = uint8(mode)
			st.writerPresent = 1
			st.writerPID = pid
			return st, true
		})
		if err != nil {
			return nil, err
		}
		if applied {
			l.writerMode.Store(uint32(mode))
			l.writerPresent.Store(true)
			l.writerPID.Store(pid)
			l.processHasWriter.Store(1)
			return &WriteGuard{lock: l, mode: mode, active: true}, nil
		}

		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

// TryWriteLock attempts to acquire a write lock without blocking. It
// returns (nil, nil) if the lock is currently unavailable.
func (l *RWLock) TryWriteLock(mode Mode) (*WriteGuard, error) {
	if mode == None {
		return nil, ErrInvalidMode
	}

	if l.processOwnsWriter() {
		l.processHasWriter.Add(1)
		return &WriteGuard{lock: l, mode: mode, active: true}, nil
	}

	pid := currentPID()
	applied, err := updateState(l.path, func(st state) (state, bool) {
		if incompatibleReaders(st.readerCounts, mode) {
			return st, false
		}
		if st.writerPresent != 0 && st.writerPID != pid {
			return st, false
		}
		st.writerMode = uint8(mode)
		st.writerPresent = 1
		st.writerPID = pid
		return st, true
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}

	l.writerMode.Store(uint32(mode))
	l.writerPresent.Store(true)
	l.writerPID.Store(pid)
	l.processHasWriter.Store(1)
	return &WriteGuard{lock: l, mode: mode, active: true}, nil
}

// incompatibleReaders reports whether any reader mode other than mode
// currently holds outstanding readers.
func incompatibleReaders(counts [3]uint64, mode Mode) bool {
	for i, c := range counts {
		if Mode(i) != mode && c > 0 {
			return true
		}
	}
	return false
}

// ReaderCount returns the last-known (possibly slightly stale, updated
// by the background refresher) reader count for mode.
func (l *RWLock) ReaderCount(mode Mode) uint64 {
	return l.readerCounts[mode].Load()
}

// TotalReaderCount sums the reader counts across both modes.
func (l *RWLock) TotalReaderCount() uint64 {
	return l.readerCounts[Destructive].Load() + l.readerCounts[NonDestructive].Load()
}

// HasWriter reports whether a writer currently holds the lock,
// according to the last refresh.
func (l *RWLock) HasWriter() bool {
	return l.writerPresent.Load()
}

// WriterMode returns the current writer's mode and true, or (None,
// false) if no writer holds the lock.
func (l *RWLock) WriterMode() (Mode, bool) {
	if !l.HasWriter() {
		return None, false
	}
	return Mode(l.writerMode.Load()), true
}

// WriterPID returns the current writer's process ID and true, or (0,
// false) if no writer holds the lock.
func (l *RWLock) WriterPID() (uint64, bool) {
	if !l.HasWriter() {
		return 0, false
	}
	return l.writerPID.Load(), true
}
