package solve

import "testing"

func TestPartialSolutionProjection(t *testing.T) {
	ps := newPartialSolution()
	root := rootIncompat("a", mustSpec(t, "^1.0.0"))

	ps.derive(TermRequire("a", mustSpec(t, "^1.0.0")), root)
	if !ps.required["a"] {
		t.Error("positive derivation did not mark the package required")
	}
	if ps.relation(TermRequire("a", mustSpec(t, "^1.0.0"))) != termSatisfied {
		t.Error("derived constraint not reported satisfied")
	}
	if ps.relation(TermRequire("a", mustSpec(t, "^2.0.0"))) != termContradicted {
		t.Error("disjoint constraint not reported contradicted")
	}
	if ps.relation(TermRequire("a", mustSpec(t, "^1.2.0"))) != termInconclusive {
		t.Error("narrower constraint should stay open")
	}
	if ps.relation(TermRequire("b", AnySet())) != termInconclusive {
		t.Error("untouched package should be inconclusive")
	}

	// A package with only negative derivations may still end up unselected:
	// it can contradict a positive term or satisfy a negative one, but never
	// the reverse.
	ps.derive(TermForbid("c", mustSpec(t, "^2.0.0")), root)
	if ps.required["c"] {
		t.Error("negative derivation marked the package required")
	}
	if ps.relation(TermRequire("c", mustSpec(t, "^2.0.0"))) != termContradicted {
		t.Error("positive term inside the forbidden set should contradict")
	}
	if ps.relation(TermRequire("c", mustSpec(t, "^1.0.0"))) != termInconclusive {
		t.Error("positive term on an unrequired package should stay open")
	}
	if ps.relation(TermForbid("c", mustSpec(t, "^2.0.0"))) != termSatisfied {
		t.Error("negative term inside the forbidden set should be satisfied")
	}
	if ps.relation(TermForbid("c", mustSpec(t, "^1.0.0"))) != termInconclusive {
		t.Error("negative term outside the forbidden set should stay open")
	}

	ps.decide("a", mustVersion(t, "1.5.0"))
	if ps.decisionLevel() != 1 {
		t.Errorf("level = %d, want 1", ps.decisionLevel())
	}
	if ps.relation(TermRequire("a", mustSpec(t, "^1.2.0"))) != termSatisfied {
		t.Error("decision not reflected in relation")
	}
	if ps.relation(TermForbid("a", mustSpec(t, "1.5.0"))) != termContradicted {
		t.Error("forbidding the decided version should contradict")
	}
}

func TestPartialSolutionBacktrackReplays(t *testing.T) {
	ps := newPartialSolution()
	root := rootIncompat("a", mustSpec(t, "^1.0.0"))

	ps.derive(TermRequire("a", mustSpec(t, "^1.0.0")), root) // level 0
	ps.decide("a", mustVersion(t, "1.0.0"))                  // level 1
	ps.derive(TermRequire("b", mustSpec(t, "^2.0.0")), root) // level 1
	ps.decide("b", mustVersion(t, "2.0.0"))                  // level 2

	ps.backtrack(1)
	if ps.decisionLevel() != 1 {
		t.Errorf("level = %d, want 1", ps.decisionLevel())
	}
	if _, ok := ps.decided["b"]; ok {
		t.Error("level-2 decision survived the backtrack")
	}
	if _, ok := ps.decided["a"]; !ok {
		t.Error("level-1 decision dropped by the backtrack")
	}
	if !ps.required["b"] {
		t.Error("level-1 derivation about b dropped by the backtrack")
	}

	ps.backtrack(0)
	if len(ps.decisions()) != 0 {
		t.Error("decisions survived a backtrack to zero")
	}
	if !ps.allowedFor("a").Contains(mustVersion(t, "1.5.0")) {
		t.Error("level-0 derivation lost")
	}
	if ps.allowedFor("a").Contains(mustVersion(t, "2.0.0")) {
		t.Error("level-0 constraint not replayed")
	}
}

func TestAdaptiveHeuristicRestartSignal(t *testing.T) {
	h := newAdaptiveHeuristic()
	if h.shouldRestart() {
		t.Error("restart requested before any conflict")
	}

	// Low-LBD conflicts keep the averages together.
	for i := 0; i < 20; i++ {
		h.onConflict([]string{"a"}, 1, 1.0)
	}
	if h.shouldRestart() {
		t.Error("restart requested while search quality is steady")
	}

	// A burst of wide conflicts drags the fast average up first.
	for i := 0; i < 20; i++ {
		h.onConflict([]string{"a", "b"}, 3, 10.0)
	}
	if !h.shouldRestart() {
		t.Errorf("no restart despite degradation: fast=%f slow=%f", h.fastLBD, h.slowLBD)
	}

	h.settle()
	if h.shouldRestart() {
		t.Error("restart still requested after settling")
	}
}

func TestAdaptiveHeuristicActivity(t *testing.T) {
	h := newAdaptiveHeuristic()
	h.onConflict([]string{"hot"}, 2, 2.0)
	h.onConflict([]string{"hot", "warm"}, 1, 2.0)

	if h.score("hot") <= h.score("warm") {
		t.Errorf("hot=%f warm=%f; repeat offender should score higher", h.score("hot"), h.score("warm"))
	}
	if h.score("cold") != 0 {
		t.Errorf("cold = %f, want 0", h.score("cold"))
	}

	// Deeper conflicts bump harder.
	deep := newAdaptiveHeuristic()
	deep.onConflict([]string{"x"}, 10, 2.0)
	shallow := newAdaptiveHeuristic()
	shallow.onConflict([]string{"x"}, 1, 2.0)
	if deep.score("x") <= shallow.score("x") {
		t.Error("decision level did not scale the bump")
	}
}
