package game

import "testing"

func TestFinalScorePenaltyTiers(t *testing.T) {
	// Each tier applies to the original difficulty, not the previous
	// tier's output.
	cases := []struct {
		difficulty int
		hintsUsed  int
		expected   int
	}{
		{80, 0, 80},
		{80, 1, 72},
		{80, 2, 56},
		{80, 3, 40},
		{1, 3, 1},   // 0.5 rounds half-up
		{75, 1, 68}, // 67.5 rounds half-up
		{0, 0, 0},
	}
	for _, tc := range cases {
		if got := FinalScore(tc.difficulty, tc.hintsUsed); got != tc.expected {
			t.Fatalf("FinalScore(%d, %d) = %d, expected %d", tc.difficulty, tc.hintsUsed, got, tc.expected)
		}
	}
}

func TestFinalScoreClampsHintCount(t *testing.T) {
	if got := FinalScore(80, 7); got != 40 {
		t.Fatalf("hint counts above 3 should use the deepest tier, got %d", got)
	}
	if got := FinalScore(80, -1); got != 80 {
		t.Fatalf("negative hint counts should use the zero tier, got %d", got)
	}
}
