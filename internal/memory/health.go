package memory

import (
	"fmt"
	"os"
)

// HealthReport describes the bank's condition. Issues accumulate
// independently; one bad category does not hide the others.
type HealthReport struct {
	Healthy   bool           `json:"healthy"`
	SizeBytes int64          `json:"size_bytes"`
	Counts    map[string]int `json:"counts"`
	Issues    []string       `json:"issues,omitempty"`
}

func (b *Bank) Health() *HealthReport {
	report := &HealthReport{
		Healthy: true,
		Counts:  make(map[string]int),
	}

	if err := b.db.Ping(); err != nil {
		report.Healthy = false
		report.Issues = append(report.Issues, fmt.Sprintf("store unreachable: %v", err))
		return report
	}

	if info, err := os.Stat(b.cfg.Path); err == nil {
		report.SizeBytes = info.Size()
		if b.cfg.MaxSizeMB > 0 && info.Size() > b.cfg.MaxSizeMB*1024*1024 {
			report.Healthy = false
			report.Issues = append(report.Issues,
				fmt.Sprintf("store size %d bytes exceeds limit %d MB", info.Size(), b.cfg.MaxSizeMB))
		}
	}

	for _, category := range Categories() {
		var n int
		if err := b.db.QueryRow("SELECT COUNT(*) FROM " + category).Scan(&n); err != nil {
			report.Healthy = false
			report.Issues = append(report.Issues, fmt.Sprintf("category %s unreadable: %v", category, err))
			continue
		}
		report.Counts[category] = n
	}

	return report
}
