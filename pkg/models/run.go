package models

import "time"

// Outcome classifies one unit of batch work.
type Outcome string

const (
	OutcomeOK   Outcome = "ok"
	OutcomeSkip Outcome = "skip"
	OutcomeFail Outcome = "fail"
)

// TickerResult records the outcome of one ticker (or one template on one
// ticker) within a batch run. A failed ticker never aborts the batch.
type TickerResult struct {
	Ticker  string  `json:"ticker"`
	Stage   string  `json:"stage"` // "features", "templates", "tracker", "alerts", "stats"
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// RunSummary is the structured result of one daily or weekly batch run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Kind       string         `json:"kind"` // "daily" or "weekly"
	RunDate    time.Time      `json:"run_date"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []TickerResult `json:"results"`
	AlertsSent int            `json:"alerts_sent"`
}

// Counts tallies results by outcome.
func (s RunSummary) Counts() (ok, skip, fail int) {
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeOK:
			ok++
		case OutcomeSkip:
			skip++
		case OutcomeFail:
			fail++
		}
	}
	return ok, skip, fail
}
