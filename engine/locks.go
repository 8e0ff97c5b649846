package engine

import "sync"

// invoiceLocks serializes all writers of one invoice. Entries are
// reference-counted and removed once the last holder releases them, so the
// map does not grow with the invoice table.
type invoiceLocks struct {
	mu sync.Mutex
	m  map[uint]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{m: make(map[uint]*lockEntry)}
}

func (l *invoiceLocks) lock(id uint) {
	l.mu.Lock()
	e, ok := l.m[id]
	if !ok {
		e = &lockEntry{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()
	e.mu.Lock()
}

func (l *invoiceLocks) unlock(id uint) {
	l.mu.Lock()
	e := l.m[id]
	e.refs--
	if e.refs == 0 {
		delete(l.m, id)
	}
	l.mu.Unlock()
	e.mu.Unlock()
}

// lockPair acquires two invoice locks in ascending id order so that
// concurrent cross-invoice payment moves cannot deadlock.
func (l *invoiceLocks) lockPair(a, b uint) {
	if a == b {
		l.lock(a)
		return
	}
	if a > b {
		a, b = b, a
	}
	l.lock(a)
	l.lock(b)
}

func (l *invoiceLocks) unlockPair(a, b uint) {
	if a == b {
		l.unlock(a)
		return
	}
	if a > b {
		a, b = b, a
	}
	l.unlock(b)
	l.unlock(a)
}
