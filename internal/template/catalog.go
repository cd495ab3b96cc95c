// Package template holds the fixed catalog of trigger rules evaluated
// against each day's feature snapshot. The catalog is a closed list of
// descriptor values; adding a rule means appending a descriptor here, not
// loading anything at runtime.
package template

import (
	"github.com/seenimoa/stockpulse/pkg/models"
)

// Verdict is the outcome of evaluating one template against one row.
// Skipped (missing required inputs) is deliberately distinct from NoTrigger
// (evaluated, condition not met) so the run summary can tell them apart.
type Verdict int

const (
	NoTrigger Verdict = iota
	Triggered
	Skipped
)

func (v Verdict) String() string {
	switch v {
	case Triggered:
		return "triggered"
	case Skipped:
		return "skipped"
	default:
		return "no_trigger"
	}
}

// Descriptor is one rule in the catalog. RequiredFeatures and RequiredStats
// document the inputs the predicate reads; the evaluate func re-checks them
// and reports Skipped when any are missing.
type Descriptor struct {
	ID               string
	Name             string
	Description      string
	RequiredFeatures []string
	RequiredStats    []string

	evaluate func(d Descriptor, row models.FeatureRow, stats *models.ValuationStat) (*models.Trigger, Verdict)
}

// Evaluate runs the rule against one feature row. stats may be nil when the
// weekly job has not produced statistics for the ticker yet; rules that need
// them report Skipped.
func (d Descriptor) Evaluate(row models.FeatureRow, stats *models.ValuationStat) (*models.Trigger, Verdict) {
	return d.evaluate(d, row, stats)
}

// Thresholds used by the absolute-value rules.
const (
	cheapMultiple     = 12.0
	expensiveMultiple = 30.0
	extensionTrim     = 0.20
	extensionRich     = 0.15
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func trigger(d Descriptor, row models.FeatureRow, strength float64, reasons ...models.Reason) (*models.Trigger, Verdict) {
	s := clamp01(strength)
	if s == 0 {
		return nil, NoTrigger
	}
	return &models.Trigger{
		Date:         row.Date,
		Ticker:       row.Ticker,
		TemplateID:   d.ID,
		TemplateName: d.Name,
		Strength:     s,
		Reasons:      reasons,
	}, Triggered
}

func r(key string, value float64) models.Reason {
	return models.Reason{Key: key, Value: value}
}

// Catalog returns the full rule list in evaluation order.
func Catalog() []Descriptor {
	return allTemplates
}

// ByID looks a descriptor up by its identifier.
func ByID(id string) (Descriptor, bool) {
	for _, d := range allTemplates {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// EvaluateAll runs the whole catalog against one row. It returns the
// surviving triggers plus the per-template verdicts keyed by template ID.
func EvaluateAll(row models.FeatureRow, stats *models.ValuationStat) ([]models.Trigger, map[string]Verdict) {
	var out []models.Trigger
	verdicts := make(map[string]Verdict, len(allTemplates))
	for _, d := range allTemplates {
		trg, v := d.Evaluate(row, stats)
		verdicts[d.ID] = v
		if v == Triggered {
			out = append(out, *trg)
		}
	}
	return out, verdicts
}

var allTemplates = []Descriptor{
	{
		ID:               "T1",
		Name:             "Cross above 200 EMA",
		Description:      "Price crossed above the 200-day EMA (bullish trend entry)",
		RequiredFeatures: []string{"close", "ema_200", "prev_close", "prev_ema_200"},
		evaluate: func(d Descriptor, row models.FeatureRow, _ *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.EMA200 == nil || row.PrevClose == nil || row.PrevEMA200 == nil {
				return nil, Skipped
			}
			if *row.PrevClose <= *row.PrevEMA200 && row.Close > *row.EMA200 {
				return trigger(d, row, (row.Close-*row.EMA200)/(*row.EMA200),
					r("prev_close", *row.PrevClose),
					r("prev_ema_200", *row.PrevEMA200),
					r("close", row.Close),
					r("ema_200", *row.EMA200),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T2",
		Name:             "Cross below 200 EMA",
		Description:      "Price crossed below the 200-day EMA (bearish trend risk)",
		RequiredFeatures: []string{"close", "ema_200", "prev_close", "prev_ema_200"},
		evaluate: func(d Descriptor, row models.FeatureRow, _ *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.EMA200 == nil || row.PrevClose == nil || row.PrevEMA200 == nil {
				return nil, Skipped
			}
			if *row.PrevClose >= *row.PrevEMA200 && row.Close < *row.EMA200 {
				return trigger(d, row, (*row.EMA200-row.Close)/(*row.EMA200),
					r("prev_close", *row.PrevClose),
					r("prev_ema_200", *row.PrevEMA200),
					r("close", row.Close),
					r("ema_200", *row.EMA200),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T3",
		Name:             "Pullback in uptrend",
		Description:      "Price pulled back between the EMAs while EMA50 > EMA200",
		RequiredFeatures: []string{"close", "ema_50", "ema_200"},
		evaluate: func(d Descriptor, row models.FeatureRow, _ *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.EMA50 == nil || row.EMA200 == nil {
				return nil, Skipped
			}
			e50, e200 := *row.EMA50, *row.EMA200
			if e50 > e200 && row.Close < e50 && row.Close > e200 {
				// 0 at the 50 EMA, 1 at the 200 EMA.
				depth := (e50 - row.Close) / (e50 - e200)
				return trigger(d, row, depth,
					r("close", row.Close),
					r("ema_50", e50),
					r("ema_200", e200),
					r("pullback_depth_pct", depth*100),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T4",
		Name:             "Extended above trend",
		Description:      "Price is extended 20%+ above the 200-day EMA",
		RequiredFeatures: []string{"close", "ema_200"},
		evaluate: func(d Descriptor, row models.FeatureRow, _ *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.EMA200 == nil {
				return nil, Skipped
			}
			ext := (row.Close - *row.EMA200) / *row.EMA200
			if ext >= extensionTrim {
				return trigger(d, row, ext,
					r("close", row.Close),
					r("ema_200", *row.EMA200),
					r("extension_pct", ext*100),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T5",
		Name:             "Value + momentum",
		Description:      "Cheap multiple (<=12x) with price above the 200-day EMA",
		RequiredFeatures: []string{"multiple", "close", "ema_200"},
		evaluate: func(d Descriptor, row models.FeatureRow, _ *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.Multiple == nil || row.EMA200 == nil {
				return nil, Skipped
			}
			if *row.Multiple <= cheapMultiple && row.Close > *row.EMA200 {
				return trigger(d, row, (cheapMultiple-*row.Multiple)/cheapMultiple,
					r("multiple", *row.Multiple),
					r("close", row.Close),
					r("ema_200", *row.EMA200),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T6",
		Name:             "Expensive + extended",
		Description:      "Expensive multiple (>=30x) and extended 15%+ above the 200-day EMA",
		RequiredFeatures: []string{"multiple", "close", "ema_200"},
		evaluate: func(d Descriptor, row models.FeatureRow, _ *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.Multiple == nil || row.EMA200 == nil {
				return nil, Skipped
			}
			ext := (row.Close - *row.EMA200) / *row.EMA200
			if *row.Multiple >= expensiveMultiple && ext >= extensionRich {
				return trigger(d, row, ext,
					r("multiple", *row.Multiple),
					r("close", row.Close),
					r("ema_200", *row.EMA200),
					r("extension_pct", ext*100),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T7",
		Name:             "Cheap vs history",
		Description:      "Multiple is below the 20th percentile of its own history",
		RequiredFeatures: []string{"multiple"},
		RequiredStats:    []string{"p20"},
		evaluate: func(d Descriptor, row models.FeatureRow, stats *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.Multiple == nil || stats == nil {
				return nil, Skipped
			}
			if *row.Multiple <= stats.P20 {
				return trigger(d, row, (stats.P20-*row.Multiple)/stats.P20,
					r("multiple", *row.Multiple),
					r("p20", stats.P20),
					r("close", row.Close),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T8",
		Name:             "Expensive vs history",
		Description:      "Multiple is above the 80th percentile of its own history",
		RequiredFeatures: []string{"multiple"},
		RequiredStats:    []string{"p80"},
		evaluate: func(d Descriptor, row models.FeatureRow, stats *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.Multiple == nil || stats == nil {
				return nil, Skipped
			}
			if *row.Multiple >= stats.P80 {
				return trigger(d, row, (*row.Multiple-stats.P80)/stats.P80,
					r("multiple", *row.Multiple),
					r("p80", stats.P80),
					r("close", row.Close),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T9",
		Name:             "Fair value",
		Description:      "Multiple is at or below the median of its own history",
		RequiredFeatures: []string{"multiple"},
		RequiredStats:    []string{"p50"},
		evaluate: func(d Descriptor, row models.FeatureRow, stats *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.Multiple == nil || stats == nil {
				return nil, Skipped
			}
			if *row.Multiple <= stats.P50 {
				return trigger(d, row, (stats.P50-*row.Multiple)/stats.P50,
					r("multiple", *row.Multiple),
					r("p50_median", stats.P50),
					r("close", row.Close),
				)
			}
			return nil, NoTrigger
		},
	},
	{
		ID:               "T10",
		Name:             "Uptrend + cheap",
		Description:      "Uptrend (EMA50 > EMA200) with multiple below the 20th percentile",
		RequiredFeatures: []string{"ema_50", "ema_200", "multiple"},
		RequiredStats:    []string{"p20"},
		evaluate: func(d Descriptor, row models.FeatureRow, stats *models.ValuationStat) (*models.Trigger, Verdict) {
			if row.EMA50 == nil || row.EMA200 == nil || row.Multiple == nil || stats == nil {
				return nil, Skipped
			}
			if *row.EMA50 > *row.EMA200 && *row.Multiple <= stats.P20 {
				trend := (*row.EMA50 - *row.EMA200) / *row.EMA200
				value := (stats.P20 - *row.Multiple) / stats.P20
				return trigger(d, row, trend+value,
					r("ema_50", *row.EMA50),
					r("ema_200", *row.EMA200),
					r("multiple", *row.Multiple),
					r("p20", stats.P20),
					r("close", row.Close),
				)
			}
			return nil, NoTrigger
		},
	},
}
