package podds

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 1X2 selections
const (
	SelectionHomeWin = "home_win"
	SelectionDraw    = "draw"
	SelectionAwayWin = "away_win"
)

// ValueBetFinding is the comparison of one model probability with one price
type ValueBetFinding struct {
	Market             string  `json:"market"`
	Selection          string  `json:"selection"`
	Bookmaker          string  `json:"bookmaker,omitempty"`
	ModelProbability   float64 `json:"model_probability"`
	ImpliedProbability float64 `json:"implied_probability"`
	Odds               float64 `json:"odds"`
	ExpectedValue      float64 `json:"value"`
	EdgeRatio          float64 `json:"edge_ratio"`
	IsValueBet         bool    `json:"is_value_bet"`
}

// MarketAnalysis is the per selection breakdown of one market
type MarketAnalysis struct {
	Market       string            `json:"market"`
	Selections   []ValueBetFinding `json:"selections"`
	BestValueBet string            `json:"best_value_bet"`
	BestValue    float64           `json:"best_value"`
	HasValueBet  bool              `json:"has_value_bet"`
	Overround    float64           `json:"overround,omitempty"`
}

// Finding looks up a selection
func (m MarketAnalysis) Finding(selection string) (ValueBetFinding, bool) {
	for _, f := range m.Selections {
		if f.Selection == selection {
			return f, true
		}
	}
	return ValueBetFinding{}, false
}

// OutcomeOdds are decimal prices for the three 1X2 selections
type OutcomeOdds struct {
	HomeWin float64 `json:"home_win"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"away_win"`
}

// FixtureInput pairs model probabilities with market prices. Either market may be absent.
type FixtureInput struct {
	ID             string                `json:"id"`
	HomeTeam       string                `json:"home_team"`
	AwayTeam       string                `json:"away_team"`
	League         string                `json:"league,omitempty"`
	MatchDate      time.Time             `json:"match_date,omitempty"`
	Model1X2       *OutcomeProbabilities `json:"model_1x2,omitempty"`
	Odds1X2        *OutcomeOdds          `json:"odds_1x2,omitempty"`
	ModelOverUnder map[string]float64    `json:"model_over_under,omitempty"`
	OddsOverUnder  map[string]float64    `json:"odds_over_under,omitempty"`
}

// FixtureAnalysis is a fixture with the analysis of every market it supplied
type FixtureAnalysis struct {
	FixtureID   string                    `json:"fixture_id"`
	HomeTeam    string                    `json:"home_team"`
	AwayTeam    string                    `json:"away_team"`
	League      string                    `json:"league,omitempty"`
	MatchDate   time.Time                 `json:"match_date,omitempty"`
	Markets     map[string]MarketAnalysis `json:"markets"`
	HasValueBet bool                      `json:"has_value_bet"`
}

//////////////////////////////////////////////////////////////////
////// PRICE ARITHMETIC
//////////////////////////////////////////////////////////////////

// ImpliedProbability is 1/odds
func ImpliedProbability(odds float64) (float64, error) {
	if math.IsNaN(odds) || odds <= 1.0 {
		return 0, &InvalidOddsError{Odds: odds}
	}
	return 1 / odds, nil
}

// CalculateValue is the expected profit per unit stake, p*odds - 1
func CalculateValue(modelProbability, odds float64) (float64, error) {
	if _, err := ImpliedProbability(odds); err != nil {
		return 0, err
	}
	return modelProbability*odds - 1, nil
}

// ValueRatio is model probability over implied probability; 0 when the model gives no chance
func ValueRatio(modelProbability, odds float64) (float64, error) {
	implied, err := ImpliedProbability(odds)
	if err != nil {
		return 0, err
	}
	if modelProbability <= 0 {
		return 0, nil
	}
	return modelProbability / implied, nil
}

// Overround is the bookmaker margin of a complete book, sum(1/odds) - 1
func Overround(odds ...float64) (float64, error) {
	total := 0.0
	for _, o := range odds {
		p, err := ImpliedProbability(o)
		if err != nil {
			return 0, err
		}
		total += p
	}
	return total - 1, nil
}

// FairProbabilities removes the margin proportionally from a complete book
func FairProbabilities(odds ...float64) ([]float64, error) {
	implied := make([]float64, len(odds))
	total := 0.0
	for i, o := range odds {
		p, err := ImpliedProbability(o)
		if err != nil {
			return nil, err
		}
		implied[i] = p
		total += p
	}
	for i := range implied {
		implied[i] /= total
	}
	return implied, nil
}

//////////////////////////////////////////////////////////////////
////// ANALYZER
//////////////////////////////////////////////////////////////////

// ValueBetAnalyzer flags prices whose expected value beats a threshold
type ValueBetAnalyzer struct {
	cfg ValueConfig
}

func NewValueBetAnalyzer(cfg ValueConfig) *ValueBetAnalyzer {
	return &ValueBetAnalyzer{cfg: cfg}
}

// Threshold is the minimum expected value for a flag
func (a *ValueBetAnalyzer) Threshold() float64 {
	return a.cfg.Threshold
}

// Evaluate compares one probability with one price, flagging on expected value
func (a *ValueBetAnalyzer) Evaluate(market, selection string, modelProbability, odds float64) (ValueBetFinding, error) {
	implied, err := ImpliedProbability(odds)
	if err != nil {
		return ValueBetFinding{}, fmt.Errorf("%s %s: %w", market, selection, err)
	}
	value := modelProbability*odds - 1
	ratio := 0.0
	if modelProbability > 0 {
		ratio = modelProbability / implied
	}
	return ValueBetFinding{
		Market:             market,
		Selection:          selection,
		ModelProbability:   modelProbability,
		ImpliedProbability: implied,
		Odds:               odds,
		ExpectedValue:      value,
		EdgeRatio:          ratio,
		IsValueBet:         value > a.cfg.Threshold,
	}, nil
}

// Analyze1X2 evaluates home, draw and away. Ties for best go to the earlier selection.
func (a *ValueBetAnalyzer) Analyze1X2(model OutcomeProbabilities, odds OutcomeOdds) (MarketAnalysis, error) {
	pairs := []struct {
		selection string
		p, o      float64
	}{
		{SelectionHomeWin, model.HomeWin, odds.HomeWin},
		{SelectionDraw, model.Draw, odds.Draw},
		{SelectionAwayWin, model.AwayWin, odds.AwayWin},
	}

	result := MarketAnalysis{Market: Market1X2}
	for i, pair := range pairs {
		f, err := a.Evaluate(Market1X2, pair.selection, pair.p, pair.o)
		if err != nil {
			return MarketAnalysis{}, err
		}
		result.Selections = append(result.Selections, f)
		if i == 0 || f.ExpectedValue > result.BestValue {
			result.BestValue = f.ExpectedValue
			result.BestValueBet = f.Selection
		}
	}
	result.HasValueBet = result.BestValue > a.cfg.Threshold

	overround, err := Overround(odds.HomeWin, odds.Draw, odds.AwayWin)
	if err != nil {
		return MarketAnalysis{}, err
	}
	result.Overround = overround
	return result, nil
}

// AnalyzeOverUnder evaluates every key present in both maps. Keys missing from
// either side are skipped. Best starts at -1 with no selection.
func (a *ValueBetAnalyzer) AnalyzeOverUnder(model, odds map[string]float64) (MarketAnalysis, error) {
	result := MarketAnalysis{Market: MarketOverUnder, BestValue: -1}
	for _, key := range SortMarketKeys(model) {
		o, ok := odds[key]
		if !ok {
			continue
		}
		f, err := a.Evaluate(MarketOverUnder, key, model[key], o)
		if err != nil {
			return MarketAnalysis{}, err
		}
		result.Selections = append(result.Selections, f)
		if f.ExpectedValue > result.BestValue {
			result.BestValue = f.ExpectedValue
			result.BestValueBet = key
		}
	}
	result.HasValueBet = result.BestValue > a.cfg.Threshold
	return result, nil
}

// FindValueBets keeps the fixtures where any supplied market has a value bet.
// The order of the input is preserved.
func (a *ValueBetAnalyzer) FindValueBets(fixtures []FixtureInput) ([]FixtureAnalysis, error) {
	var out []FixtureAnalysis
	for _, fx := range fixtures {
		analysis := FixtureAnalysis{
			FixtureID: fx.ID,
			HomeTeam:  fx.HomeTeam,
			AwayTeam:  fx.AwayTeam,
			League:    fx.League,
			MatchDate: fx.MatchDate,
			Markets:   map[string]MarketAnalysis{},
		}

		if fx.Model1X2 != nil && fx.Odds1X2 != nil {
			m, err := a.Analyze1X2(*fx.Model1X2, *fx.Odds1X2)
			if err != nil {
				return nil, fmt.Errorf("fixture %s: %w", fx.ID, err)
			}
			analysis.Markets[Market1X2] = m
		}
		if fx.ModelOverUnder != nil && fx.OddsOverUnder != nil {
			m, err := a.AnalyzeOverUnder(fx.ModelOverUnder, fx.OddsOverUnder)
			if err != nil {
				return nil, fmt.Errorf("fixture %s: %w", fx.ID, err)
			}
			analysis.Markets[MarketOverUnder] = m
		}

		for _, m := range analysis.Markets {
			if m.HasValueBet {
				analysis.HasValueBet = true
				break
			}
		}
		if analysis.HasValueBet {
			out = append(out, analysis)
		}
	}
	return out, nil
}

// IdentifyValueBets checks individual bookmaker quotes against model probabilities
// keyed by selection, flagging on the value ratio rather than expected value.
// Flagged findings are returned by expected value, best first.
func (a *ValueBetAnalyzer) IdentifyValueBets(quotes []OddsQuote, model map[string]float64) ([]ValueBetFinding, error) {
	var found []ValueBetFinding
	for _, q := range quotes {
		p, ok := model[q.Selection]
		if !ok || p <= 0 {
			continue
		}
		f, err := a.Evaluate(q.Market, q.Selection, p, q.Odds)
		if err != nil {
			return nil, err
		}
		f.Bookmaker = q.Bookmaker
		f.IsValueBet = f.EdgeRatio > a.cfg.RatioThreshold
		if f.IsValueBet {
			found = append(found, f)
		}
	}
	SortByExpectedValue(found)
	return found, nil
}

// RankFindings flattens the flagged selections of every analysis, best expected value first
func RankFindings(analyses []FixtureAnalysis) []RankedFinding {
	var ranked []RankedFinding
	for _, fa := range analyses {
		for _, market := range []string{Market1X2, MarketOverUnder} {
			m, ok := fa.Markets[market]
			if !ok {
				continue
			}
			for _, f := range m.Selections {
				if f.IsValueBet {
					ranked = append(ranked, RankedFinding{
						FixtureID:       fa.FixtureID,
						HomeTeam:        fa.HomeTeam,
						AwayTeam:        fa.AwayTeam,
						League:          fa.League,
						MatchDate:       fa.MatchDate,
						ValueBetFinding: f,
					})
				}
			}
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ExpectedValue > ranked[j].ExpectedValue
	})
	return ranked
}

// RankedFinding is a flagged selection with its fixture attached
type RankedFinding struct {
	FixtureID string    `json:"fixture_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league,omitempty"`
	MatchDate time.Time `json:"match_date,omitempty"`
	ValueBetFinding
}

// SortByExpectedValue orders findings best first, keeping input order for ties
func SortByExpectedValue(findings []ValueBetFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].ExpectedValue > findings[j].ExpectedValue
	})
}

// SortMarketKeys orders goal line keys by line, over before under; unknown keys go last alphabetically
func SortMarketKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		si, li, oki := parseOverUnderKey(keys[i])
		sj, lj, okj := parseOverUnderKey(keys[j])
		switch {
		case oki && okj:
			if li != lj {
				return li < lj
			}
			if si != sj {
				return si == "over"
			}
			return keys[i] < keys[j]
		case oki != okj:
			return oki
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func parseOverUnderKey(key string) (string, float64, bool) {
	side, line, found := strings.Cut(key, "_")
	if !found || (side != "over" && side != "under") {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return "", 0, false
	}
	return side, v, true
}
