package validate

import "github.com/gleanhq/glean/internal/docmodel"

// Tier-aware confidence policy. Faster tiers are capped below full
// confidence even when the raw signal suggests certainty: callers choosing
// FAST trade certainty for speed and must not receive inflated scores.
// The constants are tuning policy, surfaced through Config for adjustment
// against a validation set.
const (
	// DefaultUnlocatedCeiling caps fields whose value could not be matched
	// back onto the page. Always strictly below a located field under
	// otherwise identical conditions.
	DefaultUnlocatedCeiling = 0.6

	// DefaultArithmeticTolerance is the relative tolerance for cross-field
	// sums (subtotal + tax ≈ total).
	DefaultArithmeticTolerance = 0.01

	// formatPenalty scales confidence down when a format check fails.
	formatPenalty = 0.7

	// mismatchPenalty scales confidence down for fields involved in an
	// arithmetic inconsistency that could not be auto-corrected.
	mismatchPenalty = 0.8

	// digitFixPenalty slightly reduces confidence after a digit
	// auto-correction; the value changed, however plausibly.
	digitFixPenalty = 0.9

	// unlocatedPenalty scales confidence down before the unlocated ceiling
	// applies.
	unlocatedPenalty = 0.75
)

// tierCap is the top of the calibrated range for ordinary fields.
// Only validator-injected certain corrections may exceed it, and only HIGH
// reaches 1.0.
func tierCap(tier docmodel.Tier) float64 {
	switch tier {
	case docmodel.TierFast:
		return 0.85
	case docmodel.TierHigh:
		return 0.98
	default:
		return 0.95
	}
}

// correctionMax is the confidence assigned to a field recomputed with
// certainty from a cross-field identity.
func correctionMax(tier docmodel.Tier) float64 {
	switch tier {
	case docmodel.TierFast:
		return 0.88
	case docmodel.TierHigh:
		return 1.0
	default:
		return 0.97
	}
}

// blend combines the backend's self-reported confidence with the OCR
// confidence along the matched span. Unlocated fields have no span signal
// and use the backend confidence alone.
func blend(candConf, spanConf float64, located bool) float64 {
	if !located || spanConf <= 0 {
		return candConf
	}
	return 0.6*candConf + 0.4*spanConf
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
