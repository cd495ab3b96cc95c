// Package alertgen converts detected transitions and template triggers into
// structured alerts. Every alert carries four narrative sections; a change
// that cannot fill all four is not emitted.
package alertgen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// ErrIncomplete reports a change that could not fill the mandatory narrative
// sections, usually because numeric context was missing.
var ErrIncomplete = errors.New("alert narrative incomplete")

// FromTransition builds the alert for one categorical state change.
func FromTransition(tr models.Transition, now time.Time) (*models.Alert, error) {
	var a *models.Alert
	var err error
	switch tr.Dimension {
	case models.DimValuationRegime:
		a, err = regimeAlert(tr)
	case models.DimTrendPosition:
		a, err = trendAlert(tr)
	case models.DimEPSDirection:
		a, err = epsAlert(tr)
	default:
		return nil, fmt.Errorf("unknown transition dimension %q", tr.Dimension)
	}
	if err != nil {
		return nil, err
	}
	a.ID = uuid.NewString()
	a.Ticker = tr.Ticker
	a.SentAt = now
	if err := validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

func regimeAlert(tr models.Transition) (*models.Alert, error) {
	if tr.NewPercentile == nil || tr.NewMultiple == nil {
		return nil, fmt.Errorf("regime change %s -> %s without current multiple/percentile: %w", tr.Old, tr.New, ErrIncomplete)
	}
	label := tr.Metric.Label()

	var headline, why string
	switch {
	case tr.New == string(models.RegimeCheap):
		headline = "Valuation entered historically cheap zone"
		why = "• Stock is trading at the lower end of its own historical valuation range, which can increase margin of safety."
	case tr.New == string(models.RegimeExpensive):
		headline = "Valuation entered historically rich zone"
		why = "• Stock is trading at the higher end of its historical valuation range; future returns may rely on continued strong execution."
	case tr.Old == string(models.RegimeCheap):
		headline = "Valuation exited historically cheap zone"
		why = "• Valuation is no longer in a historically discounted range, reducing margin of safety."
	case tr.Old == string(models.RegimeExpensive):
		headline = "Valuation exited historically rich zone"
		why = "• Valuation is no longer in a historically premium range."
	default:
		headline = "Valuation regime changed"
		why = "• Valuation has moved to a different historical zone.\n• Re-evaluate your investment thesis with this change."
	}

	var changed string
	if tr.OldPercentile != nil {
		changed = fmt.Sprintf("• %s moved from %.0fth percentile → %.0fth percentile", label, *tr.OldPercentile, *tr.NewPercentile)
	} else {
		changed = fmt.Sprintf("• %s now at %.0fth percentile of historical range", label, *tr.NewPercentile)
	}

	multLine := fmt.Sprintf("• Multiple: %sx", fmtNum(*tr.NewMultiple))
	if tr.OldMultiple != nil {
		multLine = fmt.Sprintf("• Multiple: %sx → %sx", fmtNum(*tr.OldMultiple), fmtNum(*tr.NewMultiple))
	}
	pctLine := fmt.Sprintf("• Percentile: %.0f", *tr.NewPercentile)
	if tr.OldPercentile != nil {
		pctLine = fmt.Sprintf("• Percentile: %.0f → %.0f", *tr.OldPercentile, *tr.NewPercentile)
	}

	didnt := fmt.Sprintf("• Metric used: %s\n"+
		"• This is a relative valuation signal based on the company's own history\n"+
		"• Underlying business fundamentals may have changed separately", label)

	return &models.Alert{
		AlertType:       models.AlertValuationRegimeChange,
		Headline:        headline,
		WhatChanged:     changed,
		WhyItMatters:    why,
		BeforeVsNow:     multLine + "\n" + pctLine,
		WhatDidntChange: didnt,
		DataSnapshot: map[string]any{
			"old_regime":            tr.Old,
			"new_regime":            tr.New,
			"metric_type":           string(tr.Metric),
			"metric_label":          label,
			"current_percentile":    *tr.NewPercentile,
			"previous_percentile":   deref(tr.OldPercentile),
			"current_metric_value":  *tr.NewMultiple,
			"previous_metric_value": deref(tr.OldMultiple),
		},
	}, nil
}

func trendAlert(tr models.Transition) (*models.Alert, error) {
	if tr.Close == nil || tr.EMA200 == nil {
		return nil, fmt.Errorf("trend break %s -> %s without price context: %w", tr.Old, tr.New, ErrIncomplete)
	}
	direction, sentiment := "below", "Bearish"
	if tr.New == string(models.TrendAboveMA) {
		direction, sentiment = "above", "Bullish"
	}
	oldDirection := "above"
	if direction == "above" {
		oldDirection = "below"
	}

	return &models.Alert{
		AlertType: models.AlertTrendBreak,
		Headline:  sentiment + " trend break",
		WhatChanged: fmt.Sprintf("• Price crossed %s the 200-day moving average ($%.2f)",
			direction, *tr.EMA200),
		WhyItMatters: "• Major trend shifts can signal the start of new price momentum\n" +
			"• This is the first cross in recent months, suggesting a potential regime change",
		BeforeVsNow: fmt.Sprintf("• Then: Trading %s 200-day MA\n• Now: Trading %s 200-day MA at $%.2f",
			oldDirection, direction, *tr.Close),
		WhatDidntChange: fmt.Sprintf("• Long-term moving average remains at $%.2f\n"+
			"• Fundamental business metrics unchanged\n"+
			"• This is a technical signal, not a fundamental change", *tr.EMA200),
		DataSnapshot: map[string]any{
			"current_price": *tr.Close,
			"ema_200":       *tr.EMA200,
			"direction":     direction,
		},
	}, nil
}

func epsAlert(tr models.Transition) (*models.Alert, error) {
	if tr.NewEPS == nil {
		return nil, fmt.Errorf("EPS inflection %s -> %s without current EPS: %w", tr.Old, tr.New, ErrIncomplete)
	}

	var headline, why string
	switch tr.New {
	case string(models.EPSPositive):
		headline = "Fundamental inflection — EPS turned positive"
		why = "• Crossing into profitability is a durable milestone for the business\n" +
			"• Positive trailing earnings widen the investor base and valuation toolkit"
	case string(models.EPSNegative):
		headline = "Fundamental inflection — EPS turned negative"
		why = "• Trailing earnings slipped below breakeven\n" +
			"• Watch whether this is a one-off or the start of sustained losses"
	default:
		headline = "Fundamental inflection — EPS direction changed"
		why = "• The trailing earnings trajectory shifted\n" +
			"• Re-check the drivers behind the change"
	}

	epsLine := fmt.Sprintf("• EPS: %s", fmtNum(*tr.NewEPS))
	if tr.OldEPS != nil {
		epsLine = fmt.Sprintf("• EPS: %s → %s", fmtNum(*tr.OldEPS), fmtNum(*tr.NewEPS))
	}

	return &models.Alert{
		AlertType:    models.AlertFundamentalInflection,
		Headline:     headline,
		WhatChanged:  fmt.Sprintf("• Trailing EPS direction moved from %s to %s", tr.Old, tr.New),
		WhyItMatters: why,
		BeforeVsNow:  epsLine,
		WhatDidntChange: "• A single quarter does not define the trend\n" +
			"• Revenue and cash generation deserve a separate look",
		DataSnapshot: map[string]any{
			"old_direction": tr.Old,
			"new_direction": tr.New,
			"current_eps":   *tr.NewEPS,
			"previous_eps":  deref(tr.OldEPS),
		},
	}, nil
}

// FromTrigger builds the alert for one template trigger, combining the static
// metadata copy with the numeric reasons carried on the trigger.
func FromTrigger(trg models.Trigger, now time.Time) (*models.Alert, error) {
	meta, ok := templateMetadata[trg.TemplateID]
	if !ok {
		return nil, fmt.Errorf("no alert metadata for template %s", trg.TemplateID)
	}

	snapshot := map[string]any{
		"template_id":   trg.TemplateID,
		"template_name": trg.TemplateName,
		"strength":      trg.Strength,
	}
	for _, r := range trg.Reasons {
		snapshot[r.Key] = r.Value
	}

	a := &models.Alert{
		ID:              uuid.NewString(),
		Ticker:          trg.Ticker,
		AlertType:       models.AlertTemplateTrigger,
		Headline:        meta.Headline,
		WhatChanged:     triggerWhatChanged(trg),
		WhyItMatters:    meta.WhyMatters,
		BeforeVsNow:     triggerBeforeVsNow(trg),
		WhatDidntChange: meta.WhatDidntChange,
		DataSnapshot:    snapshot,
		SentAt:          now,
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

func triggerWhatChanged(trg models.Trigger) string {
	v := func(key string) float64 { return models.Deref(trg.Reason(key), 0) }

	switch trg.TemplateID {
	case "T1":
		return fmt.Sprintf("• Price crossed above the 200-day moving average\n"+
			"• Previous close: $%.2f (below MA: $%.2f)\n"+
			"• Current close: $%.2f (above MA: $%.2f)",
			v("prev_close"), v("prev_ema_200"), v("close"), v("ema_200"))
	case "T2":
		return fmt.Sprintf("• Price crossed below the 200-day moving average\n"+
			"• Previous close: $%.2f (above MA: $%.2f)\n"+
			"• Current close: $%.2f (below MA: $%.2f)",
			v("prev_close"), v("prev_ema_200"), v("close"), v("ema_200"))
	case "T3":
		return fmt.Sprintf("• Price pulled back to support in an uptrend\n"+
			"• Current price: $%.2f\n"+
			"• Between EMA 50 ($%.2f) and EMA 200 ($%.2f)\n"+
			"• Pullback depth: %.1f%% into support zone",
			v("close"), v("ema_50"), v("ema_200"), v("pullback_depth_pct"))
	case "T4":
		return fmt.Sprintf("• Price significantly extended above moving average\n"+
			"• Current price: $%.2f\n"+
			"• EMA 200: $%.2f\n"+
			"• Extension: %.1f%% above long-term trend",
			v("close"), v("ema_200"), v("extension_pct"))
	case "T5":
		return fmt.Sprintf("• Stock combines cheap valuation with bullish trend\n"+
			"• Multiple: %.1fx (threshold: ≤12x)\n"+
			"• Price: $%.2f (above 200 EMA: $%.2f)\n"+
			"• Dual confirmation: technical + fundamental",
			v("multiple"), v("close"), v("ema_200"))
	case "T6":
		return fmt.Sprintf("• High valuation combined with price extension\n"+
			"• Multiple: %.1fx (threshold: ≥30x)\n"+
			"• Price: $%.2f\n"+
			"• Extension above 200 EMA: %.1f%%",
			v("multiple"), v("close"), v("extension_pct"))
	case "T7":
		return fmt.Sprintf("• Multiple: %.1fx (below 20th percentile: %.1fx)\n• Price: $%.2f",
			v("multiple"), v("p20"), v("close"))
	case "T8":
		return fmt.Sprintf("• Multiple: %.1fx (above 80th percentile: %.1fx)\n• Price: $%.2f",
			v("multiple"), v("p80"), v("close"))
	case "T9":
		return fmt.Sprintf("• Multiple: %.1fx (median: %.1fx)\n• Price: $%.2f",
			v("multiple"), v("p50_median"), v("close"))
	case "T10":
		return fmt.Sprintf("• Multiple: %.1fx (below p20: %.1fx)\n• Price: $%.2f (above EMA 200: $%.2f)",
			v("multiple"), v("p20"), v("close"), v("ema_200"))
	default:
		var parts []string
		for _, r := range trg.Reasons {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Key, fmtNum(r.Value)))
		}
		return "• " + strings.Join(parts, ", ")
	}
}

func triggerBeforeVsNow(trg models.Trigger) string {
	v := func(key string) float64 { return models.Deref(trg.Reason(key), 0) }

	switch trg.TemplateID {
	case "T1", "T2":
		prev, cur := v("prev_close"), v("close")
		change := 0.0
		if prev != 0 {
			change = (cur - prev) / prev * 100
		}
		return fmt.Sprintf("• Previous: $%.2f\n• Current: $%.2f\n• Change: %+.1f%%", prev, cur, change)
	case "T3", "T4":
		return fmt.Sprintf("• Current price: $%.2f\n• EMA 50: $%.2f\n• EMA 200: $%.2f",
			v("close"), v("ema_50"), v("ema_200"))
	default:
		lines := []string{fmt.Sprintf("• Current price: $%.2f", v("close"))}
		if m := trg.Reason("multiple"); m != nil {
			lines = append(lines, fmt.Sprintf("• Multiple: %.1fx", *m))
		}
		return strings.Join(lines, "\n")
	}
}

func validate(a *models.Alert) error {
	for name, s := range map[string]string{
		"what_changed":      a.WhatChanged,
		"why_it_matters":    a.WhyItMatters,
		"before_vs_now":     a.BeforeVsNow,
		"what_didnt_change": a.WhatDidntChange,
	} {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s section empty: %w", name, ErrIncomplete)
		}
	}
	if strings.TrimSpace(a.Headline) == "" {
		return fmt.Errorf("headline empty: %w", ErrIncomplete)
	}
	return nil
}

// fmtNum renders a number without trailing zeros, so 28.50 reads "28.5" and
// 45.00 reads "45".
func fmtNum(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
