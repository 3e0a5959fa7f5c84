package processor

import (
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/util"
)

//////////////////////////////////////////////////////////////////
////// PREDICT
//////////////////////////////////////////////////////////////////

type predictRequest struct {
	History []podds.MatchResult `json:"history"`
	Home    string              `json:"home"`
	Away    string              `json:"away"`
	League  string              `json:"league"`
	FormN   any                 `json:"formLength"`
}

// predict refits the score model when history is supplied, then prices the fixture
// with both the Poisson and Elo views
func (p *Processor) predict(input []byte) (map[string]any, error) {
	var req predictRequest
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if req.Home == "" || req.Away == "" {
		return nil, invalid("predict requires home and away")
	}
	if req.Home == req.Away {
		return nil, invalid("team %s cannot play itself", req.Home)
	}

	if len(req.History) > 0 {
		for i, m := range req.History {
			if _, err := podds.NewMatchResult(m.HomeTeam, m.AwayTeam, m.HomeGoals, m.AwayGoals); err != nil {
				return nil, invalid("history[%d]: %v", i, err)
			}
		}
		if err := p.poisson.Fit(req.History); err != nil {
			return nil, err
		}
	}

	prediction := p.poisson.PredictLeagueMatch(req.Home, req.Away, req.League)
	out := map[string]any{
		"poisson":      prediction,
		"elo":          p.elo.PredictMatch(req.Home, req.Away),
		"coefficients": map[string]podds.Coefficients{req.Home: p.poisson.Coefficients(req.Home), req.Away: p.poisson.Coefficients(req.Away)},
	}
	if len(req.History) > 0 {
		n := 5
		if req.FormN != nil {
			v, err := util.GetAsInteger(req.FormN)
			if err != nil || v <= 0 {
				return nil, invalid("formLength must be a positive whole number, got %v", req.FormN)
			}
			n = v
		}
		out["form"] = map[string]string{
			req.Home: podds.TeamForm(req.Home, req.History, n),
			req.Away: podds.TeamForm(req.Away, req.History, n),
		}
		out["headToHead"] = podds.HeadToHead(req.Home, req.Away, req.History)
	}
	return out, nil
}

//////////////////////////////////////////////////////////////////
////// ELO
//////////////////////////////////////////////////////////////////

type eloRequest struct {
	Matches []podds.RatedMatch `json:"matches"`
	Home    string             `json:"home"`
	Away    string             `json:"away"`
	Reset   any                `json:"reset"`
}

// eloQuery applies rated matches in order and reports the resulting table.
// With reset the ratings start again from the default.
func (p *Processor) eloQuery(input []byte) (map[string]any, error) {
	var req eloRequest
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	reset, err := util.GetAsBool(req.Reset)
	if err != nil {
		return nil, invalid("reset: %v", err)
	}
	for i := range req.Matches {
		kind, err := podds.ParseResultKind(string(req.Matches[i].Result))
		if err != nil {
			return nil, err
		}
		req.Matches[i].Result = kind
	}
	if reset {
		p.elo.Restore(nil)
	}
	if err := p.elo.BulkUpdate(req.Matches); err != nil {
		return nil, err
	}

	out := map[string]any{
		"ratings": p.elo.Ratings(),
		"applied": len(req.Matches),
	}
	if req.Home != "" && req.Away != "" {
		out["prediction"] = p.elo.PredictMatch(req.Home, req.Away)
	}
	return out, nil
}

//////////////////////////////////////////////////////////////////
////// VALUE BETS
//////////////////////////////////////////////////////////////////

type valueBetsRequest struct {
	Fixtures  []podds.FixtureInput `json:"fixtures"`
	Quotes    []podds.OddsQuote    `json:"quotes"`
	Model     map[string]float64   `json:"model"`
	Threshold any                  `json:"threshold"`
}

// valueBets analyses whole fixtures and, when given, individual bookmaker quotes.
// A threshold in the request replaces the configured one for this call only.
func (p *Processor) valueBets(input []byte) (map[string]any, error) {
	var req valueBetsRequest
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	if len(req.Fixtures) == 0 && len(req.Quotes) == 0 {
		return nil, invalid("value_bets requires fixtures or quotes")
	}
	analyzer := p.analyzer
	if req.Threshold != nil {
		threshold, err := util.GetAsFloat(req.Threshold)
		if err != nil {
			return nil, invalid("threshold: %v", err)
		}
		cfg := p.cfg.Value
		cfg.Threshold = threshold
		analyzer = podds.NewValueBetAnalyzer(cfg)
	}

	out := map[string]any{"threshold": analyzer.Threshold()}
	if len(req.Fixtures) > 0 {
		analyses, err := analyzer.FindValueBets(req.Fixtures)
		if err != nil {
			return nil, err
		}
		if analyses == nil {
			analyses = []podds.FixtureAnalysis{}
		}
		ranked := podds.RankFindings(analyses)
		if ranked == nil {
			ranked = []podds.RankedFinding{}
		}
		out["fixtures"] = analyses
		out["ranked"] = ranked
	}
	if len(req.Quotes) > 0 {
		found, err := analyzer.IdentifyValueBets(req.Quotes, req.Model)
		if err != nil {
			return nil, err
		}
		if found == nil {
			found = []podds.ValueBetFinding{}
		}
		out["quotes"] = found
	}
	return out, nil
}

//////////////////////////////////////////////////////////////////
////// XG
//////////////////////////////////////////////////////////////////

type xgRequest struct {
	Strategy  string            `json:"strategy"`
	Training  []podds.ShotEvent `json:"training"`
	HomeShots []podds.ShotEvent `json:"homeShots"`
	AwayShots []podds.ShotEvent `json:"awayShots"`
	HomeStats *podds.ShotStats  `json:"homeStats"`
	AwayStats *podds.ShotStats  `json:"awayStats"`
}

// xgQuery optionally trains or switches strategy, then values the supplied shots
func (p *Processor) xgQuery(input []byte) (map[string]any, error) {
	var req xgRequest
	if err := decode(input, &req); err != nil {
		return nil, err
	}
	for _, group := range [][]podds.ShotEvent{req.Training, req.HomeShots, req.AwayShots} {
		if err := validateShots(group); err != nil {
			return nil, err
		}
	}

	if len(req.Training) > 0 && req.Strategy != "" && req.Strategy != "logistic" {
		return nil, invalid("training shots fit the logistic strategy, not %q", req.Strategy)
	}

	switch req.Strategy {
	case "":
	case "heuristic":
		p.xg.SetStrategy(podds.HeuristicStrategy{})
	case "distance_band":
		p.xg.SetStrategy(podds.DistanceBandStrategy{})
	case "logistic":
		if len(req.Training) == 0 && !p.xg.IsTrained() {
			return nil, invalid("logistic strategy requires training shots")
		}
	default:
		return nil, invalid("unknown xG strategy %q", req.Strategy)
	}
	if len(req.Training) > 0 {
		if err := p.xg.Train(req.Training); err != nil {
			return nil, err
		}
	}

	perShot := func(shots []podds.ShotEvent) []float64 {
		out := make([]float64, len(shots))
		for i, s := range shots {
			out[i] = p.xg.PredictXG(s)
		}
		return out
	}
	home, away := p.xg.CalculateMatchXG(req.HomeShots, req.AwayShots)
	out := map[string]any{
		"strategy": p.xg.Strategy().Name(),
		"trained":  p.xg.IsTrained(),
		"home":     map[string]any{"total": home, "shots": perShot(req.HomeShots)},
		"away":     map[string]any{"total": away, "shots": perShot(req.AwayShots)},
	}
	if req.HomeStats != nil {
		out["homeStatsXG"] = podds.ShotStatsXG(*req.HomeStats)
	}
	if req.AwayStats != nil {
		out["awayStatsXG"] = podds.ShotStatsXG(*req.AwayStats)
	}
	return out, nil
}

func validateShots(shots []podds.ShotEvent) error {
	for i, s := range shots {
		if _, err := podds.NewShotEvent(s.Distance, s.Angle, s.IsHeader, s.IsBigChance); err != nil {
			return invalid("shot %d: %v", i, err)
		}
	}
	return nil
}

//////////////////////////////////////////////////////////////////
////// TOOLS
//////////////////////////////////////////////////////////////////

func tools() []Tool {
	return []Tool{
		{
			Name:        "predict",
			Description: "Fit the Poisson model on history and predict a fixture: 1X2, scorelines, over/under, BTTS and the Elo view",
			Parameters: map[string]any{
				"history":    "array of {homeTeam, awayTeam, homeGoals, awayGoals, date}",
				"home":       "home team",
				"away":       "away team",
				"league":     "optional league code for the goals average",
				"formLength": "optional number of matches in the form string (default 5)",
			},
		},
		{
			Name:        "elo",
			Description: "Apply results to the Elo ratings in order and optionally predict a fixture",
			Parameters: map[string]any{
				"matches": "array of {homeTeam, awayTeam, result, importance}; result is home_win, draw, away_win or H/D/A",
				"home":    "optional home team to predict",
				"away":    "optional away team to predict",
				"reset":   "optional, start from default ratings",
			},
		},
		{
			Name:        "value_bets",
			Description: "Compare model probabilities with bookmaker odds and rank the value bets",
			Parameters: map[string]any{
				"fixtures":  "array of {id, home_team, away_team, model_1x2, odds_1x2, model_over_under, odds_over_under}",
				"quotes":    "optional array of {market, selection, odds, bookmaker}",
				"model":     "probabilities keyed by selection, used with quotes",
				"threshold": "optional minimum expected value, overrides the configured threshold",
			},
		},
		{
			Name:        "xg",
			Description: "Estimate expected goals from shots, optionally training a logistic classifier first",
			Parameters: map[string]any{
				"strategy":  "heuristic, distance_band or logistic",
				"training":  "optional labelled shots",
				"homeShots": "array of {distance, angle, isHeader, isBigChance, isFastBreak, defendersBetween, goalkeeperDistance, isGoal}",
				"awayShots": "as homeShots",
				"homeStats": "optional {shotsInsideBox, shotsOutsideBox, shotsOnTarget}",
				"awayStats": "as homeStats",
			},
		},
	}
}
