package heuristic

import "math"

// step is a lower bound and the component score reached at or above it.
type step struct {
	min   float64
	score float64
}

// Tier tables are ordered from the highest score down; the first bound the
// value reaches wins, and values below every bound score 0.
var (
	volumeTiers     = []step{{3, 100}, {2, 75}, {1.5, 50}, {1, 25}}
	escalationTiers = []step{{0.3, 100}, {0.2, 75}, {0.1, 50}, {math.SmallestNonzeroFloat64, 25}}
	sentimentTiers  = []step{{0.5, 100}, {0.3, 75}, {0.15, 50}, {math.SmallestNonzeroFloat64, 25}}
	velocityTiers   = []step{{2, 100}, {1.5, 75}, {1.2, 50}, {1, 25}}
	resolutionTiers = []step{{2, 100}, {1.5, 75}, {1.2, 50}, {1, 25}}
	breadthTiers    = []step{{6, 100}, {4, 75}, {3, 50}, {2, 25}}
)

func tier(v float64, steps []step) float64 {
	for _, s := range steps {
		if v >= s.min {
			return s.score
		}
	}
	return 0
}

func recencyScore(a activity) float64 {
	switch {
	case a.open > 0:
		return 100
	case a.daysSinceLast < 0:
		return 0
	case a.daysSinceLast <= 7:
		return 75
	case a.daysSinceLast <= 30:
		return 50
	case a.daysSinceLast <= 90:
		return 25
	default:
		return 0
	}
}
