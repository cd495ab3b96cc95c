package models

import "time"

// Reason is one short factual statement attached to a trigger, e.g.
// {"close", 105.20}. Reasons keep their declaration order so alert copy reads
// the same way every run.
type Reason struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Trigger records a template firing for one ticker on one date.
// Strength is in [0,1]; zero-strength triggers are filtered before the state
// tracker sees them.
type Trigger struct {
	Date         time.Time `json:"date"`
	Ticker       string    `json:"ticker"`
	TemplateID   string    `json:"template_id"`
	TemplateName string    `json:"template_name"`
	Strength     float64   `json:"strength"`
	Reasons      []Reason  `json:"reasons"`
}

// Reason returns the value recorded under key, or nil when absent.
func (t Trigger) Reason(key string) *float64 {
	for _, r := range t.Reasons {
		if r.Key == key {
			v := r.Value
			return &v
		}
	}
	return nil
}
