package game

import "math"

// Hint penalty tiers. Each tier applies to the original difficulty, not
// the previous tier's output, and the product rounds half-up.
var hintPenaltyTiers = [maxHintLevel + 1]float64{1.0, 0.9, 0.7, 0.5}

const (
	minHintLevel = 1
	maxHintLevel = 3
)

// FinalScore applies the hint penalty to a phrase difficulty.
func FinalScore(difficulty, hintsUsed int) int {
	if hintsUsed < 0 {
		hintsUsed = 0
	}
	if hintsUsed > maxHintLevel {
		hintsUsed = maxHintLevel
	}
	score := int(math.Round(float64(difficulty) * hintPenaltyTiers[hintsUsed]))
	if score < 0 {
		return 0
	}
	return score
}
