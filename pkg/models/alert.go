package models

import (
	"fmt"
	"time"
)

// AlertType names the kind of material change an alert describes.
type AlertType string

const (
	AlertValuationRegimeChange AlertType = "valuation_regime_change"
	AlertTrendBreak            AlertType = "trend_break"
	AlertFundamentalInflection AlertType = "fundamental_inflection"
	AlertTemplateTrigger       AlertType = "template_trigger"
)

// Alert is a structured, human-readable record of one material change.
// All four narrative sections are mandatory; an alert that cannot populate
// them is never emitted. Immutable after creation except OpenedAt.
type Alert struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	AlertType AlertType `json:"alert_type"`
	Headline  string    `json:"headline"`

	WhatChanged     string `json:"what_changed"`
	WhyItMatters    string `json:"why_it_matters"`
	BeforeVsNow     string `json:"before_vs_now"`
	WhatDidntChange string `json:"what_didnt_change"`

	DataSnapshot map[string]any `json:"data_snapshot"`
	SentAt       time.Time      `json:"sent_at"`
	OpenedAt     *time.Time     `json:"opened_at,omitempty"`
}

// FormatEmail renders the alert in the plain-text layout the delivery layer
// sends. The delivery layer itself is outside this engine.
func (a Alert) FormatEmail() string {
	return fmt.Sprintf(`[%s] — %s

What changed:
%s

Why it matters:
%s

Before vs now:
%s

What didn't change:
%s

---
Detected: %s
`, a.Ticker, a.Headline, a.WhatChanged, a.WhyItMatters, a.BeforeVsNow,
		a.WhatDidntChange, a.SentAt.Format("2006-01-02 15:04"))
}
