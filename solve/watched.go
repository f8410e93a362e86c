package solve

// conflictClause records that assigning pkg@version under a given search
// state led to a dead end, and why. Clauses are keyed on the state
// signature so a learned failure never prunes a branch it was not proven
// for.
type conflictClause struct {
	state   string
	pkg     string
	version string
	reason  string
}

// watchIndex stores learned conflict clauses behind a watched-literal map:
// each clause is watched by its pkg@version literal, so checking a
// candidate touches only the clauses that mention it instead of the whole
// database.
type watchIndex struct {
	clauses  []conflictClause
	watchers map[string][]int
	maxSize  int
}

func newWatchIndex() *watchIndex {
	return &watchIndex{watchers: map[string][]int{}, maxSize: 1024}
}

func watchKey(pkg, version string) string { return pkg + "@" + version }

// learn records a failed assignment. When the database fills up it is
// flushed wholesale; learned clauses are an accelerator, never required for
// correctness.
func (w *watchIndex) learn(state, pkg, version, reason string) {
	if len(w.clauses) >= w.maxSize {
		w.clauses = w.clauses[:0]
		w.watchers = map[string][]int{}
	}
	idx := len(w.clauses)
	w.clauses = append(w.clauses, conflictClause{state: state, pkg: pkg, version: version, reason: reason})
	key := watchKey(pkg, version)
	w.watchers[key] = append(w.watchers[key], idx)
}

// forbidden reports whether pkg@version is already known to fail under
// state, with the recorded reason.
func (w *watchIndex) forbidden(state, pkg, version string) (string, bool) {
	for _, idx := range w.watchers[watchKey(pkg, version)] {
		c := w.clauses[idx]
		if c.state == state && c.pkg == pkg && c.version == version {
			return c.reason, true
		}
	}
	return "", false
}

func (w *watchIndex) size() int { return len(w.clauses) }
