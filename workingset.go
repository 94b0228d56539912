package rocketfilter

import "sync"

// workingSet is the set of tree-entries currently selected to appear in a
// rewritten tree during evaluation of one commit (spec §3 GLOSSARY, §5).
//
// It dedupes by entry *handle identity*, not path equality — spec §9 notes
// this explicitly: the same path can re-enter through different patterns,
// and the decision must be attributable to whichever visit ran last. Once
// the keep-phase barrier is passed, the set holds exactly the entries for
// which the last decision made about that handle was "admit" (spec §5).
type workingSet struct {
	mu      sync.Mutex
	entries map[*MutableEntry]struct{}
}

func newWorkingSet() *workingSet {
	return &workingSet{entries: make(map[*MutableEntry]struct{})}
}

func (w *workingSet) admit(e *MutableEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[e] = struct{}{}
}

func (w *workingSet) evict(e *MutableEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, e)
}

func (w *workingSet) snapshot() []*MutableEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	result := make([]*MutableEntry, 0, len(w.entries))
	for e := range w.entries {
		result = append(result, e)
	}
	return result
}

func (w *workingSet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
