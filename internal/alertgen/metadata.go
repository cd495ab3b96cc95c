package alertgen

// templateMeta is the static per-template copy used to build trigger alerts.
// Headlines and boilerplate live here; the numeric lines are formatted from
// the trigger's reasons at generation time.
type templateMeta struct {
	Headline        string
	WhyMatters      string
	WhatDidntChange string
}

var templateMetadata = map[string]templateMeta{
	"T1": {
		Headline: "Bullish trend entry — crossed above 200-day MA",
		WhyMatters: "• Major trend shifts can signal the start of new price momentum\n" +
			"• This is the first cross in recent periods, suggesting a potential regime change\n" +
			"• Historically, sustained moves above the 200-day MA indicate bullish trends",
		WhatDidntChange: "• This is a technical signal, not a fundamental business change\n" +
			"• Company financials and operations remain the same\n" +
			"• Consider this alongside your investment thesis and risk tolerance",
	},
	"T2": {
		Headline: "Bearish trend risk — crossed below 200-day MA",
		WhyMatters: "• Price broke below long-term support, indicating potential downtrend\n" +
			"• This crossover often precedes extended weakness\n" +
			"• May be time to reassess position sizing and risk management",
		WhatDidntChange: "• This is a technical signal reflecting price action\n" +
			"• Underlying business fundamentals may still be strong\n" +
			"• Consider whether this aligns with your investment timeframe",
	},
	"T3": {
		Headline: "Pullback to support — potential add opportunity",
		WhyMatters: "• Price pullbacks in uptrends can offer lower-risk entry points\n" +
			"• Stock remains above long-term trend (200-day MA)\n" +
			"• Historical pullbacks to 50-day MA often resolve upward in bull trends",
		WhatDidntChange: "• Overall uptrend remains intact\n" +
			"• This is a tactical observation, not a fundamental shift\n" +
			"• Consider your average cost and position sizing",
	},
	"T4": {
		Headline: "Extended above trend — potential trim consideration",
		WhyMatters: "• Price significantly above moving average suggests short-term overextension\n" +
			"• Historically, such extensions often lead to consolidation or pullbacks\n" +
			"• May be an opportunity to rebalance or take partial profits",
		WhatDidntChange: "• Uptrend remains valid\n" +
			"• This is about position management, not a sell signal\n" +
			"• Strong momentum can persist longer than expected",
	},
	"T5": {
		Headline: "Value + Momentum combo — cheap with bullish trend",
		WhyMatters: "• Combining low valuation with positive trend offers asymmetric risk/reward\n" +
			"• Stock trading at attractive multiple while price momentum is positive\n" +
			"• This combination historically outperforms single-factor approaches",
		WhatDidntChange: "• Valuation is just one lens on the business\n" +
			"• Cheap stocks can stay cheap if fundamentals deteriorate\n" +
			"• Consider the quality of the business and competitive position",
	},
	"T6": {
		Headline: "Expensive + Extended — potential risk zone",
		WhyMatters: "• High valuation combined with price extension suggests elevated risk\n" +
			"• Market pricing in optimistic assumptions\n" +
			"• Historical patterns show this combo precedes corrections",
		WhatDidntChange: "• Strong businesses can maintain premium valuations\n" +
			"• This is a risk signal, not a mandatory sell\n" +
			"• Consider your conviction in the business case",
	},
	"T7": {
		Headline: "Historically cheap — valuation in bottom 20%",
		WhyMatters: "• Multiple in lowest quintile of its historical range\n" +
			"• Market pricing in below-average expectations\n" +
			"• Historical mean reversion suggests upside potential",
		WhatDidntChange: "• Low valuation doesn't guarantee recovery\n" +
			"• Check if there are structural reasons for the discount",
	},
	"T8": {
		Headline: "Historically expensive — valuation in top 20%",
		WhyMatters: "• Multiple in highest quintile of its historical range\n" +
			"• Market pricing in above-average expectations\n" +
			"• Leaves less room for disappointment",
		WhatDidntChange: "• Great companies can justify premium valuations\n" +
			"• Consider if growth narrative is still intact",
	},
	"T9": {
		Headline: "Fair value — trading at historical median",
		WhyMatters: "• Valuation near its historical median suggests balanced pricing\n" +
			"• Neither obvious bargain nor expensive\n" +
			"• Good baseline for monitoring future changes",
		WhatDidntChange: "• This is informational, not actionable\n" +
			"• Fair value is a starting point, not a recommendation\n" +
			"• Focus on business trajectory and competitive dynamics",
	},
	"T10": {
		Headline: "Uptrend + Cheap — bullish technical + attractive valuation",
		WhyMatters: "• Strong combination: price momentum with valuation support\n" +
			"• Uptrend confirms market recognition while valuation offers margin of safety\n" +
			"• This dual confirmation can indicate sustainable moves",
		WhatDidntChange: "• Both factors can reverse independently\n" +
			"• Technical + value doesn't guarantee success\n" +
			"• Consider fundamentals and business quality as well",
	},
}
