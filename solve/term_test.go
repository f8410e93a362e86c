package solve

import (
	"strings"
	"testing"
)

func TestTermSatisfies(t *testing.T) {
	set := mustSpec(t, "^1.0.0")
	require := TermRequire("a", set)
	forbid := TermForbid("a", set)
	in := mustVersion(t, "1.5.0")
	out := mustVersion(t, "2.0.0")

	if !require.Satisfies(in) || require.Satisfies(out) {
		t.Error("positive term misjudged membership")
	}
	if forbid.Satisfies(in) || !forbid.Satisfies(out) {
		t.Error("negative term misjudged membership")
	}
	if !require.Negate().Satisfies(out) {
		t.Error("negated positive term rejects an outside version")
	}
}

func TestTermIntersect(t *testing.T) {
	one := mustSpec(t, ">=1.0.0 <2.0.0")
	two := mustSpec(t, ">=1.5.0 <3.0.0")

	merged, ok := TermRequire("a", one).Intersect(TermRequire("a", two))
	if !ok || !merged.Positive {
		t.Fatal("positive-positive intersection failed")
	}
	if !merged.Versions.Contains(mustVersion(t, "1.7.0")) || merged.Versions.Contains(mustVersion(t, "1.2.0")) {
		t.Error("positive-positive intersection has wrong membership")
	}

	mixed, ok := TermRequire("a", one).Intersect(TermForbid("a", mustSpec(t, "1.5.0")))
	if !ok || !mixed.Positive {
		t.Fatal("mixed-polarity intersection failed")
	}
	if mixed.Versions.Contains(mustVersion(t, "1.5.0")) || !mixed.Versions.Contains(mustVersion(t, "1.4.0")) {
		t.Error("mixed-polarity intersection kept the forbidden version")
	}

	both, ok := TermForbid("a", one).Intersect(TermForbid("a", two))
	if !ok || both.Positive {
		t.Fatal("negative-negative intersection failed")
	}
	if both.Satisfies(mustVersion(t, "1.2.0")) || both.Satisfies(mustVersion(t, "2.5.0")) {
		t.Error("negative union still admits a forbidden version")
	}
	if !both.Satisfies(mustVersion(t, "3.0.0")) {
		t.Error("negative union rejects a version outside both sets")
	}

	if _, ok := TermRequire("a", one).Intersect(TermRequire("b", two)); ok {
		t.Error("terms about different packages intersected")
	}
}

func TestDerivationTreeFormat(t *testing.T) {
	v1 := mustVersion(t, "1.0.0")
	rootA := rootIncompat("a", mustSpec(t, "^1.0.0"))
	depAX := dependencyIncompat("a", v1, "x", mustSpec(t, "^1.0.0"))
	depBX := dependencyIncompat("b", v1, "x", mustSpec(t, "^2.0.0"))

	step := derivedIncompat(depAX, depBX, nil)
	final := derivedIncompat(step, rootA, nil)

	got := (&DerivationTree{Conflict: final}).Format()
	for _, want := range []string{
		"no version assignment satisfies all requirements",
		"x:",
		"requires ",
		"via a 1.0.0",
		"via b 1.0.0",
		"(root)",
		"Try updating x",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted tree missing %q:\n%s", want, got)
		}
	}
}
