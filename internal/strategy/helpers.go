package strategy

import "backtest-lab/internal/domain"

// smaClose returns the mean close of bars.
func smaClose(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

// highestHigh returns the maximum high of bars.
func highestHigh(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	h := bars[0].High
	for _, b := range bars[1:] {
		if b.High > h {
			h = b.High
		}
	}
	return h
}

// lowestLow returns the minimum low of bars.
func lowestLow(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	l := bars[0].Low
	for _, b := range bars[1:] {
		if b.Low < l {
			l = b.Low
		}
	}
	return l
}
