// Package reporting renders run results as Markdown and CSV files.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"backtest-lab/internal/domain"
)

// Output file names written by WriteFiles.
const (
	ReportFile = "report.md"
	TradesFile = "trades.csv"
	EquityFile = "equity.csv"
)

// WriteFiles writes the Markdown report, trades CSV and equity CSV of r
// into dir, creating it if needed.
func WriteFiles(dir string, r *domain.RunResult, generatedAt time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := map[string]string{
		ReportFile: RenderMarkdown(r, generatedAt),
		TradesFile: RenderTradesCSV(r.Trades),
		EquityFile: RenderEquityCSV(r.EquityCurve),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
