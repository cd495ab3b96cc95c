package template

import (
	"math"
	"testing"
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
)

var evalDate = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

func row(close, ema200, ema50, prevClose, prevEMA200 float64, multiple *float64) models.FeatureRow {
	return models.FeatureRow{
		Date:       evalDate,
		Ticker:     "ACME",
		Close:      close,
		EMA200:     models.Ptr(ema200),
		EMA50:      models.Ptr(ema50),
		PrevClose:  models.Ptr(prevClose),
		PrevEMA200: models.Ptr(prevEMA200),
		Multiple:   multiple,
		MetricType: models.MetricEVEBITDA,
	}
}

func stats() *models.ValuationStat {
	return &models.ValuationStat{
		Ticker: "ACME",
		Metric: models.MetricEVEBITDA,
		P10:    10, P20: 12, P50: 18, P80: 30, P90: 35,
		Count: 120,
	}
}

func triggeredIDs(triggers []models.Trigger) map[string]bool {
	ids := make(map[string]bool)
	for _, t := range triggers {
		ids[t.TemplateID] = true
	}
	return ids
}

func TestEvaluateAll_scenarios(t *testing.T) {
	tests := []struct {
		name string
		row  models.FeatureRow
		want []string
	}{
		{
			name: "cross above",
			row:  row(105, 100, 102, 99, 100, models.Ptr(24.0)),
			want: []string{"T1"},
		},
		{
			name: "cross below",
			row:  row(95, 100, 98, 101, 100, models.Ptr(24.0)),
			want: []string{"T2"},
		},
		{
			name: "pullback in uptrend",
			row:  row(115, 100, 120, 118, 99, models.Ptr(14.0)),
			want: []string{"T3", "T9"},
		},
		{
			name: "extended and expensive",
			row:  row(130, 100, 115, 128, 99, models.Ptr(35.0)),
			want: []string{"T4", "T6", "T8"},
		},
		{
			name: "cheap with momentum",
			row:  row(110, 100, 105, 108, 99, models.Ptr(10.0)),
			want: []string{"T5", "T7", "T9", "T10"},
		},
		{
			name: "flat, nothing fires",
			row:  row(100, 100, 100, 100, 100, models.Ptr(19.0)),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggers, verdicts := EvaluateAll(tt.row, stats())
			got := triggeredIDs(triggers)
			if len(got) != len(tt.want) {
				t.Fatalf("triggered %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("%s did not fire; verdicts: %v", id, verdicts)
				}
			}
			for _, trg := range triggers {
				if trg.Strength <= 0 || trg.Strength > 1 {
					t.Errorf("%s: strength %v outside (0,1]", trg.TemplateID, trg.Strength)
				}
				if len(trg.Reasons) == 0 {
					t.Errorf("%s: trigger without reasons", trg.TemplateID)
				}
			}
		})
	}
}

func TestEvaluateAll_missingStatsSkipsPercentileRules(t *testing.T) {
	r := row(110, 100, 105, 108, 99, models.Ptr(10.0))
	triggers, verdicts := EvaluateAll(r, nil)

	for _, id := range []string{"T7", "T8", "T9", "T10"} {
		if verdicts[id] != Skipped {
			t.Errorf("%s verdict = %v, want skipped", id, verdicts[id])
		}
	}
	// Non-percentile rules still evaluate.
	if verdicts["T5"] != Triggered {
		t.Errorf("T5 verdict = %v, want triggered", verdicts["T5"])
	}
	got := triggeredIDs(triggers)
	if got["T7"] || got["T10"] {
		t.Error("percentile rules fired without stats")
	}
}

func TestEvaluateAll_missingFeaturesSkipNotNoTrigger(t *testing.T) {
	// A young ticker without a seeded EMA200 must skip, not evaluate.
	r := models.FeatureRow{
		Date:   evalDate,
		Ticker: "ACME",
		Close:  105,
	}
	_, verdicts := EvaluateAll(r, stats())
	for _, id := range []string{"T1", "T2", "T3", "T4", "T5", "T6"} {
		if verdicts[id] != Skipped {
			t.Errorf("%s verdict = %v, want skipped", id, verdicts[id])
		}
	}
}

func TestZeroStrengthFiltered(t *testing.T) {
	// Multiple exactly at the median: T9's condition holds but strength is 0.
	r := row(100, 100, 100, 100, 100, models.Ptr(18.0))
	_, verdicts := EvaluateAll(r, stats())
	if verdicts["T9"] != NoTrigger {
		t.Errorf("T9 verdict = %v, want no_trigger for zero strength", verdicts["T9"])
	}
}

func TestPullbackStrengthDepth(t *testing.T) {
	d, ok := ByID("T3")
	if !ok {
		t.Fatal("T3 missing from catalog")
	}
	// Close a quarter of the way down from EMA50 toward EMA200.
	r := row(115, 100, 120, 118, 99, nil)
	trg, v := d.Evaluate(r, nil)
	if v != Triggered {
		t.Fatalf("verdict = %v, want triggered", v)
	}
	if math.Abs(trg.Strength-0.25) > 1e-9 {
		t.Errorf("strength = %v, want 0.25", trg.Strength)
	}
	if got := trg.Reason("pullback_depth_pct"); got == nil || math.Abs(*got-25) > 1e-9 {
		t.Errorf("pullback_depth_pct = %v, want 25", got)
	}
}

func TestCatalogIsClosed(t *testing.T) {
	cat := Catalog()
	if len(cat) != 10 {
		t.Fatalf("catalog has %d rules, want 10", len(cat))
	}
	seen := make(map[string]bool)
	for _, d := range cat {
		if seen[d.ID] {
			t.Errorf("duplicate template id %s", d.ID)
		}
		seen[d.ID] = true
		if d.Name == "" || len(d.RequiredFeatures) == 0 {
			t.Errorf("%s: incomplete descriptor", d.ID)
		}
	}
}
