package tracker

import (
	"testing"
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func baseState() models.UserEntityState {
	s := models.NewUserEntityState("u1", "ACME")
	s.LastValuationRegime = models.RegimeNormal
	s.LastValuationPercentile = models.Ptr(45.0)
	s.LastValuationMultiple = models.Ptr(28.5)
	s.LastTrendPosition = models.TrendAboveMA
	s.LastEPSDirection = models.EPSPositive
	s.LastEPSValue = models.Ptr(2.1)
	return s
}

func cheapObs(date time.Time) Observation {
	return Observation{
		Date:         date,
		Regime:       models.RegimeCheap,
		Percentile:   models.Ptr(18.0),
		Multiple:     models.Ptr(22.3),
		Metric:       models.MetricEVEBITDA,
		Trend:        models.TrendAboveMA,
		Close:        models.Ptr(105.0),
		EMA200:       models.Ptr(100.0),
		EPSDirection: models.EPSPositive,
		EPS:          models.Ptr(2.1),
	}
}

func TestDetectTransitions_regimeChange(t *testing.T) {
	prior := baseState()
	obs := cheapObs(day(2026, time.March, 2))

	got := DetectTransitions(prior, obs)
	if len(got) != 1 {
		t.Fatalf("got %d transitions, want 1", len(got))
	}
	tr := got[0]
	if tr.Dimension != models.DimValuationRegime {
		t.Fatalf("dimension = %v", tr.Dimension)
	}
	if tr.Old != "normal" || tr.New != "cheap" {
		t.Errorf("edge = %s -> %s, want normal -> cheap", tr.Old, tr.New)
	}
	if *tr.OldMultiple != 28.5 || *tr.NewMultiple != 22.3 {
		t.Errorf("multiples = %v -> %v", *tr.OldMultiple, *tr.NewMultiple)
	}
	if *tr.OldPercentile != 45 || *tr.NewPercentile != 18 {
		t.Errorf("percentiles = %v -> %v", *tr.OldPercentile, *tr.NewPercentile)
	}
}

func TestDetectTransitions_firesExactlyOnce(t *testing.T) {
	prior := baseState()
	obs := cheapObs(day(2026, time.March, 2))

	first := DetectTransitions(prior, obs)
	if len(first) != 1 {
		t.Fatalf("first evaluation: %d transitions, want 1", len(first))
	}

	advanced := Advance(prior, obs, obs.Date)
	obs.Date = day(2026, time.March, 3)
	second := DetectTransitions(advanced, obs)
	if len(second) != 0 {
		t.Fatalf("second evaluation of unchanged state: %d transitions, want 0", len(second))
	}
}

func TestDetectTransitions_bootstrapNeverAlerts(t *testing.T) {
	prior := models.NewUserEntityState("u1", "ACME")
	got := DetectTransitions(prior, cheapObs(day(2026, time.March, 2)))
	if len(got) != 0 {
		t.Fatalf("bootstrap produced %d transitions, want 0", len(got))
	}
}

func TestDetectTransitions_degradeToUnknownSilent(t *testing.T) {
	prior := baseState()
	obs := cheapObs(day(2026, time.March, 2))
	obs.Regime = models.RegimeUnknown
	obs.Trend = models.TrendUnknownMA
	obs.EPSDirection = models.EPSUnknown

	if got := DetectTransitions(prior, obs); len(got) != 0 {
		t.Fatalf("degrade to unknown produced %d transitions", len(got))
	}
}

func TestDetectTransitions_trendWhipsawSuppressed(t *testing.T) {
	prior := baseState()
	cross := day(2026, time.January, 10)
	prior.LastTrendCrossDate = &cross

	obs := cheapObs(day(2026, time.March, 2))
	obs.Regime = prior.LastValuationRegime
	obs.Trend = models.TrendBelowMA

	if got := DetectTransitions(prior, obs); len(got) != 0 {
		t.Fatalf("trend break two months after the last cross alerted: %v", got)
	}

	// Same break with an old enough prior cross goes through.
	oldCross := day(2025, time.August, 1)
	prior.LastTrendCrossDate = &oldCross
	got := DetectTransitions(prior, obs)
	if len(got) != 1 || got[0].Dimension != models.DimTrendPosition {
		t.Fatalf("aged trend break should alert, got %v", got)
	}

	// No recorded cross at all also goes through.
	prior.LastTrendCrossDate = nil
	if got := DetectTransitions(prior, obs); len(got) != 1 {
		t.Fatalf("first recorded trend break should alert, got %v", got)
	}
}

func TestDetectTransitions_multipleDimensions(t *testing.T) {
	prior := baseState()
	obs := cheapObs(day(2026, time.March, 2))
	obs.Trend = models.TrendBelowMA
	obs.EPSDirection = models.EPSNegative
	obs.EPS = models.Ptr(-0.4)

	got := DetectTransitions(prior, obs)
	if len(got) != 3 {
		t.Fatalf("got %d transitions, want 3", len(got))
	}
	dims := map[models.Dimension]bool{}
	for _, tr := range got {
		dims[tr.Dimension] = true
	}
	for _, d := range []models.Dimension{models.DimValuationRegime, models.DimTrendPosition, models.DimEPSDirection} {
		if !dims[d] {
			t.Errorf("missing %v transition", d)
		}
	}
}

func TestAdvance_unconditional(t *testing.T) {
	prior := baseState()
	obs := cheapObs(day(2026, time.March, 2))
	obs.Regime = prior.LastValuationRegime // no transition anywhere

	evalAt := time.Date(2026, time.March, 2, 22, 15, 0, 0, time.UTC)
	next := Advance(prior, obs, evalAt)

	if !next.LastEvaluatedAt.Equal(evalAt) {
		t.Error("LastEvaluatedAt not refreshed")
	}
	if *next.LastValuationPercentile != 18 || *next.LastValuationMultiple != 22.3 {
		t.Error("numeric state not overwritten without a transition")
	}
	if next.LastTrendCrossDate != nil {
		t.Error("trend cross date moved without a trend change")
	}
}

func TestAdvance_recordsTrendCross(t *testing.T) {
	prior := baseState()
	obs := cheapObs(day(2026, time.March, 2))
	obs.Trend = models.TrendBelowMA

	next := Advance(prior, obs, obs.Date)
	if next.LastTrendCrossDate == nil || !next.LastTrendCrossDate.Equal(obs.Date) {
		t.Fatalf("trend cross date = %v, want %v", next.LastTrendCrossDate, obs.Date)
	}

	// Bootstrap from unknown records position but not a cross.
	fresh := models.NewUserEntityState("u1", "ACME")
	boot := Advance(fresh, obs, obs.Date)
	if boot.LastTrendCrossDate != nil {
		t.Error("bootstrap set a trend cross date")
	}
	if boot.LastTrendPosition != models.TrendBelowMA {
		t.Error("bootstrap did not record the trend position")
	}
}

func TestTriggerCooldown(t *testing.T) {
	st := models.NewUserEntityState("u1", "ACME")
	now := day(2026, time.March, 2)

	if !ShouldAlertTrigger(st, "T1", now) {
		t.Fatal("fresh state must allow the first trigger alert")
	}

	st = RecordTriggerAlert(st, "T1", now)
	if ShouldAlertTrigger(st, "T1", now.AddDate(0, 0, 1)) {
		t.Error("T1 re-alerted one day after sending")
	}
	if ShouldAlertTrigger(st, "T1", now.AddDate(0, 0, 6)) {
		t.Error("T1 re-alerted inside the cooldown window")
	}
	if !ShouldAlertTrigger(st, "T1", now.AddDate(0, 0, 7)) {
		t.Error("T1 still suppressed after the cooldown elapsed")
	}
	if !ShouldAlertTrigger(st, "T5", now.AddDate(0, 0, 1)) {
		t.Error("cooldown for T1 leaked onto T5")
	}
}

func TestRecordTriggerAlert_copiesMap(t *testing.T) {
	st := models.NewUserEntityState("u1", "ACME")
	now := day(2026, time.March, 2)

	first := RecordTriggerAlert(st, "T1", now)
	second := RecordTriggerAlert(first, "T5", now.AddDate(0, 0, 1))

	if _, ok := first.LastAlerted["T5"]; ok {
		t.Error("recording T5 mutated the earlier state's map")
	}
	if len(second.LastAlerted) != 2 {
		t.Errorf("len(LastAlerted) = %d, want 2", len(second.LastAlerted))
	}
}
