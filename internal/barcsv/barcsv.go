// Package barcsv reads OHLCV bars from CSV.
//
// Expected columns: timestamp,open,high,low,close,volume. A header row is
// skipped when its first field is not numeric. Timestamps below 1e11 are
// taken as Unix seconds, otherwise as milliseconds.
package barcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"backtest-lab/internal/domain"
)

const secondsThreshold = 100_000_000_000

// ErrMalformed is returned for rows that cannot be parsed.
var ErrMalformed = errors.New("malformed bar row")

// ReadFile reads bars from the CSV file at path.
func ReadFile(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

// Read parses bars from r in file order.
func Read(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []domain.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("%w: line %d has %d fields, want 6", ErrMalformed, line, len(rec))
		}

		bar, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	return err != nil
}

func parseRow(rec []string) (domain.Bar, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("timestamp: %w", err)
	}
	if ts < secondsThreshold {
		ts *= 1000
	}

	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}

	return domain.Bar{
		TimestampMs: ts,
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
	}, nil
}

// Source serves bars loaded from CSV as an engine market data source.
// Bars outside [start, end] are dropped; series arguments are ignored.
type Source struct {
	bars []domain.Bar
}

// NewSource wraps bars.
func NewSource(bars []domain.Bar) *Source {
	return &Source{bars: bars}
}

// GetHistoricalBars returns the bars within [start, end].
func (s *Source) GetHistoricalBars(_ context.Context, _, _ string, start, end int64, _ string) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range s.bars {
		if b.TimestampMs >= start && b.TimestampMs <= end {
			out = append(out, b)
		}
	}
	return out, nil
}
