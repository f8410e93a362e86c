package solve

// adaptiveHeuristic scores packages by how often they appear in conflicts
// (a VSIDS-style activity) and tracks search quality with two exponential
// moving averages of conflict LBD. When the short-term average runs hot
// relative to the long-term one the search is thrashing and a restart is
// worthwhile.
type adaptiveHeuristic struct {
	fastLBD float64 // 90% historical weight
	slowLBD float64 // 99% historical weight

	activity map[string]float64

	decayPeriod  int
	decayCounter int

	conflicts        int
	restartThreshold float64
	activityScale    float64
}

func newAdaptiveHeuristic() *adaptiveHeuristic {
	return &adaptiveHeuristic{
		fastLBD:          1.0,
		slowLBD:          1.0,
		activity:         map[string]float64{},
		decayPeriod:      100,
		restartThreshold: 1.2,
		activityScale:    1.0,
	}
}

// onConflict folds one conflict into the averages and bumps the activity of
// the packages involved, scaled by the decision level so deep conflicts
// focus the search harder.
func (h *adaptiveHeuristic) onConflict(pkgs []string, decisionLevel int, lbd float64) {
	h.conflicts++
	h.fastLBD = 0.9*h.fastLBD + 0.1*lbd
	h.slowLBD = 0.99*h.slowLBD + 0.01*lbd

	bump := h.activityScale * (1.0 + 0.1*float64(decisionLevel))
	for _, p := range pkgs {
		h.activity[p] += bump
	}

	h.decayCounter++
	if h.decayCounter >= h.decayPeriod {
		h.decayCounter = 0
		h.activityScale *= 1.05
		if h.activityScale > 1e100 {
			for k := range h.activity {
				h.activity[k] *= 1e-100
			}
			h.activityScale *= 1e-100
		}
	}
}

func (h *adaptiveHeuristic) score(pkg string) float64 {
	return h.activity[pkg]
}

func (h *adaptiveHeuristic) shouldRestart() bool {
	return h.conflicts > 0 && h.fastLBD/h.slowLBD > h.restartThreshold
}

// settle re-centers the averages after a restart so the next restart is
// triggered by fresh degradation, not the tail of the last one. Activity
// scores survive; they stay valuable across restarts.
func (h *adaptiveHeuristic) settle() {
	h.fastLBD = h.slowLBD
}
