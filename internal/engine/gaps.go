package engine

import (
	"fmt"
	"math"

	"backtest-lab/internal/domain"
)

// maxGapWarnings caps individual gap warnings; the rest are summarized.
const maxGapWarnings = 50

// detectGaps compares consecutive bar spacing with the timeframe and
// returns one warning per pair deviating by more than tolerance.
func detectGaps(bars []domain.Bar, timeframe string, tolerance float64) []string {
	seconds, ok := domain.TimeframeSeconds(timeframe)
	if !ok || len(bars) < 2 {
		return nil
	}
	expected := float64(seconds * 1000)

	var warnings []string
	extra := 0
	for i := 1; i < len(bars); i++ {
		delta := float64(bars[i].TimestampMs - bars[i-1].TimestampMs)
		if math.Abs(delta-expected)/expected <= tolerance {
			continue
		}
		if len(warnings) >= maxGapWarnings {
			extra++
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"data gap at bar %d: %ds between bars, expected %ds",
			i, int64(delta)/1000, seconds,
		))
	}
	if extra > 0 {
		warnings = append(warnings, fmt.Sprintf("%d further data gaps not listed", extra))
	}
	return warnings
}

// checkOrdering reports an error if bars are not strictly ascending in time.
func checkOrdering(bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if bars[i].TimestampMs <= bars[i-1].TimestampMs {
			return fmt.Errorf("%w: bars not in ascending time order at index %d", ErrData, i)
		}
	}
	return nil
}
