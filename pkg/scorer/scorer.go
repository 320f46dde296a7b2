// Package scorer implements the score_based allocation strategy's pure scoring
// function, grounded on original_source/kiro_gateway/token_allocator.py's
// calculate_score.
package scorer

import (
	"time"

	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// MinSuccessRate is the threshold below which a well-used identity's success
// weight is penalized. Matches the original's settings.token_min_success_rate
// default.
const MinSuccessRate = 0.5

// Score computes an identity's allocation score in [0, 100] as of now: a
// success-rate base (weight 60, or 30 when the identity is well-used and
// under MinSuccessRate), a freshness term (weight 20, tiered by hours since
// last use), and a load term (weight 20, penalizing heavily-used identities).
func Score(id types.Identity, now time.Time) float64 {
	total := id.Total()
	rate := id.SuccessRate()

	var base float64
	if rate < MinSuccessRate && total > 10 {
		base = rate * 30
	} else {
		base = rate * 60
	}

	var hoursSinceUse float64
	if id.LastUsed != nil {
		hoursSinceUse = now.Sub(*id.LastUsed).Hours()
	}

	var freshness float64
	switch {
	case id.LastUsed == nil:
		freshness = 20
	case hoursSinceUse < 1:
		freshness = 20
	case hoursSinceUse < 24:
		freshness = 15
	default:
		freshness = 20 - hoursSinceUse/24
		if freshness < 5 {
			freshness = 5
		}
	}

	load := 20 - float64(total)/100
	if load < 0 {
		load = 0
	}

	return base + freshness + load
}
