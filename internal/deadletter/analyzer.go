package deadletter

import (
	"fmt"
	"strings"
	"time"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
)

// BatchAnalysis aggregates failure patterns across many dead-letter records.
type BatchAnalysis struct {
	TotalRecords      int            `json:"total_records"`
	ByCategory        map[string]int `json:"by_category"`
	ByStage           map[string]int `json:"by_stage"`
	RetryableCount    int            `json:"retryable_count"`
	NonRetryableCount int            `json:"non_retryable_count"`
	RetryableRatio    float64        `json:"retryable_ratio"`
	Patterns          []string       `json:"patterns"`
	Recommendations   []string       `json:"recommendations"`
	AnalyzedAt        time.Time      `json:"analyzed_at"`
}

// patternFlags are lightweight keyword checks over error messages.
var patternFlags = []struct {
	keyword string
	flag    string
}{
	{"missing", "Missing required fields"},
	{"enum", "Invalid enum values"},
	{"timeout", "Timeouts observed"},
	{"connection", "Connectivity problems"},
	{"disk", "Disk pressure"},
	{"schema", "Schema mismatches"},
}

// AnalyzeBatch computes histograms, retryability counts, keyword pattern
// flags, and up to a few heuristic recommendations over a batch of
// already-categorized dead-letter records.
func AnalyzeBatch(records []event.DeadLetterRecord) BatchAnalysis {
	analysis := BatchAnalysis{
		TotalRecords: len(records),
		ByCategory:   make(map[string]int),
		ByStage:      make(map[string]int),
		AnalyzedAt:   time.Now(),
	}
	if len(records) == 0 {
		return analysis
	}

	flagged := make(map[string]struct{})
	for _, rec := range records {
		category := CategoryUnknown
		retryable := false
		if rec.ErrorAnalysis != nil {
			category = rec.ErrorAnalysis.ErrorCategory
			retryable = rec.ErrorAnalysis.CanRetry
		} else {
			category = Categorize(rec.ErrorType, rec.ErrorMessage, rec.ProcessingStage)
			retryable = CanRetry(rec.ErrorType, rec.ProcessingStage)
		}

		analysis.ByCategory[category]++
		analysis.ByStage[rec.ProcessingStage]++
		if retryable {
			analysis.RetryableCount++
		} else {
			analysis.NonRetryableCount++
		}

		msg := strings.ToLower(rec.ErrorMessage)
		for _, pf := range patternFlags {
			if strings.Contains(msg, pf.keyword) {
				flagged[pf.flag] = struct{}{}
			}
		}
	}

	analysis.RetryableRatio = float64(analysis.RetryableCount) / float64(len(records))
	for _, pf := range patternFlags {
		if _, ok := flagged[pf.flag]; ok {
			analysis.Patterns = append(analysis.Patterns, pf.flag)
		}
	}
	analysis.Recommendations = recommend(analysis)
	return analysis
}

// recommend derives up to three suggestions from the dominant category and
// stage.
func recommend(analysis BatchAnalysis) []string {
	var recs []string

	if top, count := topKey(analysis.ByCategory); top != "" {
		recs = append(recs, fmt.Sprintf(
			"Most frequent failure category is %s (%d records): %s",
			top, count, strings.ToLower(Remediation(top))))
	}
	if top, count := topKey(analysis.ByStage); top != "" {
		recs = append(recs, fmt.Sprintf(
			"Most failures originate in the %s stage (%d records); review that stage first",
			top, count))
	}
	if analysis.RetryableRatio > 0.5 {
		recs = append(recs, "Over half of the failures are retryable; consider reprocessing the backlog")
	}
	return recs
}

func topKey(histogram map[string]int) (string, int) {
	var best string
	var bestCount int
	for key, count := range histogram {
		if count > bestCount || (count == bestCount && key < best) {
			best, bestCount = key, count
		}
	}
	return best, bestCount
}
