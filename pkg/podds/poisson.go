package podds

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/richard-senior/podds/internal/logger"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// coefficients never fall below this, a team that failed to score still has some attack
const minCoefficient = 0.01

// PoissonModel fits per team attack and defense multipliers from results and turns
// them into scoreline distributions. Fit is exclusive; predictions may run concurrently.
type PoissonModel struct {
	mu      sync.RWMutex
	cfg     PoissonConfig
	attack  map[string]float64
	defense map[string]float64
}

// Coefficients is a team's pair of multipliers. Defense multiplies the goals the
// opponent is expected to score, so lower is stronger.
type Coefficients struct {
	Attack  float64 `json:"attack"`
	Defense float64 `json:"defense"`
}

// OutcomeProbabilities is a 1X2 triple
type OutcomeProbabilities struct {
	HomeWin float64 `json:"home_win"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"away_win"`
}

// Sum of the three outcomes, below 1 only by truncation
func (o OutcomeProbabilities) Sum() float64 {
	return o.HomeWin + o.Draw + o.AwayWin
}

// ScoreProbability is one exact scoreline
type ScoreProbability struct {
	Score       string  `json:"score"`
	HomeGoals   int     `json:"homeGoals"`
	AwayGoals   int     `json:"awayGoals"`
	Probability float64 `json:"probability"`
}

type BTTS struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

type ExpectedGoals struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// MatchPrediction is everything derived from one scoreline matrix
type MatchPrediction struct {
	HomeTeam string `json:"homeTeam"`
	AwayTeam string `json:"awayTeam"`
	OutcomeProbabilities
	ExpectedGoals    ExpectedGoals      `json:"expectedGoals"`
	MostLikelyScores []ScoreProbability `json:"mostLikelyScores"`
	OverUnder        map[string]float64 `json:"overUnder"`
	BTTS             BTTS               `json:"btts"`
	Matrix           *ScorelineMatrix   `json:"-"`
}

func NewPoissonModel(cfg PoissonConfig) *PoissonModel {
	return &PoissonModel{
		cfg:     cfg,
		attack:  map[string]float64{},
		defense: map[string]float64{},
	}
}

// PoissonProbability is exp(-λ)λ^k/k!. λ of zero puts all mass on k=0.
func PoissonProbability(lambda float64, k int) float64 {
	if k < 0 || lambda < 0 || math.IsNaN(lambda) {
		return 0
	}
	if lambda == 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	return distuv.Poisson{Lambda: lambda}.Prob(float64(k))
}

// poissonVector returns P(0..maxGoals) for lambda
func poissonVector(lambda float64, maxGoals int) []float64 {
	v := make([]float64, maxGoals+1)
	for k := range v {
		v[k] = PoissonProbability(lambda, k)
	}
	return v
}

//////////////////////////////////////////////////////////////////
////// FITTING
//////////////////////////////////////////////////////////////////

type appearance struct {
	opponent string
	scored   int
	conceded int
}

// Fit replaces all coefficients using iterative proportional fitting.
// An empty history leaves the model untouched.
func (p *PoissonModel) Fit(matches []MatchResult) error {
	if len(matches) == 0 {
		warnInsufficient("poisson fit", "no historical matches")
		return nil
	}

	home := map[string][]appearance{}
	away := map[string][]appearance{}
	totalGoals := 0
	for i, m := range matches {
		if m.HomeGoals < 0 || m.AwayGoals < 0 {
			return fmt.Errorf("match %d (%s v %s) has negative goals", i, m.HomeTeam, m.AwayTeam)
		}
		home[m.HomeTeam] = append(home[m.HomeTeam], appearance{m.AwayTeam, m.HomeGoals, m.AwayGoals})
		away[m.AwayTeam] = append(away[m.AwayTeam], appearance{m.HomeTeam, m.AwayGoals, m.HomeGoals})
		totalGoals += m.HomeGoals + m.AwayGoals
	}

	avgGoals := float64(totalGoals) / float64(len(matches)*2)
	if avgGoals == 0 {
		warnInsufficient("poisson fit", "no goals in history")
		return nil
	}

	teams := make([]string, 0, len(home)+len(away))
	seen := map[string]bool{}
	for _, m := range matches {
		for _, t := range []string{m.HomeTeam, m.AwayTeam} {
			if !seen[t] {
				seen[t] = true
				teams = append(teams, t)
			}
		}
	}
	sort.Strings(teams)

	attack := make(map[string]float64, len(teams))
	defense := make(map[string]float64, len(teams))
	for _, t := range teams {
		attack[t] = 1.0
		defense[t] = 1.0
	}

	ha := p.cfg.HomeAdvantage
	for iter := 0; iter < p.cfg.FitIterations; iter++ {
		for _, t := range teams {
			if apps := home[t]; len(apps) > 0 {
				scored, expected := 0.0, 0.0
				for _, a := range apps {
					scored += float64(a.scored)
					expected += attack[t] * defense[a.opponent] * ha * avgGoals
				}
				if expected > 0 {
					attack[t] *= scored / expected
				}
			}
			if apps := away[t]; len(apps) > 0 {
				scored, expected := 0.0, 0.0
				for _, a := range apps {
					scored += float64(a.scored)
					expected += attack[t] * defense[a.opponent] * avgGoals
				}
				if expected > 0 {
					attack[t] *= scored / expected
				}
			}
			attack[t] = math.Max(attack[t], minCoefficient)

			conceded, expected := 0.0, 0.0
			for _, a := range home[t] {
				conceded += float64(a.conceded)
				expected += attack[a.opponent] * defense[t] * avgGoals
			}
			for _, a := range away[t] {
				conceded += float64(a.conceded)
				expected += attack[a.opponent] * defense[t] * ha * avgGoals
			}
			if expected > 0 {
				defense[t] = math.Max(defense[t]*conceded/expected, minCoefficient)
			}
		}
		normalise(attack, teams)
		normalise(defense, teams)
	}

	p.mu.Lock()
	p.attack = attack
	p.defense = defense
	p.mu.Unlock()

	logger.Debug("Poisson model fitted", len(matches), "matches", len(teams), "teams")
	return nil
}

// normalise divides every coefficient by the population mean so the mean is 1
func normalise(coef map[string]float64, teams []string) {
	values := make([]float64, len(teams))
	for i, t := range teams {
		values[i] = coef[t]
	}
	mean := floats.Sum(values) / float64(len(values))
	if mean <= 0 {
		return
	}
	for _, t := range teams {
		coef[t] /= mean
	}
}

// Coefficients returns a team's multipliers; unseen teams are average
func (p *PoissonModel) Coefficients(team string) Coefficients {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Coefficients{Attack: p.attackOf(team), Defense: p.defenseOf(team)}
}

// Teams lists every team seen by the last fit
func (p *PoissonModel) Teams() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	teams := make([]string, 0, len(p.attack))
	for t := range p.attack {
		teams = append(teams, t)
	}
	sort.Strings(teams)
	return teams
}

func (p *PoissonModel) attackOf(team string) float64 {
	if v, ok := p.attack[team]; ok {
		return v
	}
	return 1.0
}

func (p *PoissonModel) defenseOf(team string) float64 {
	if v, ok := p.defense[team]; ok {
		return v
	}
	return 1.0
}

//////////////////////////////////////////////////////////////////
////// PREDICTION
//////////////////////////////////////////////////////////////////

// PredictScore returns expected home and away goals using the global league average
func (p *PoissonModel) PredictScore(home, away string) (float64, float64) {
	return p.predictScore(home, away, p.cfg.LeagueAverageGoals)
}

// PredictScoreForLeague is PredictScore with a per league average when one is configured
func (p *PoissonModel) PredictScoreForLeague(home, away, league string) (float64, float64) {
	return p.predictScore(home, away, p.cfg.LeagueAverage(league))
}

func (p *PoissonModel) predictScore(home, away string, leagueAvg float64) (float64, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	perTeam := leagueAvg / 2
	homeXG := p.attackOf(home) * p.defenseOf(away) * p.cfg.HomeAdvantage * perTeam
	awayXG := p.attackOf(away) * p.defenseOf(home) * perTeam
	return homeXG, awayXG
}

// PredictMatchResult builds the scoreline matrix truncated at maxGoals per side
// (the configured cutoff when maxGoals is not positive) and derives every market from it.
func (p *PoissonModel) PredictMatchResult(home, away string, maxGoals int) MatchPrediction {
	homeXG, awayXG := p.PredictScore(home, away)
	return p.prediction(home, away, homeXG, awayXG, maxGoals)
}

// PredictLeagueMatch is PredictMatchResult using the league's average goals
func (p *PoissonModel) PredictLeagueMatch(home, away, league string) MatchPrediction {
	homeXG, awayXG := p.PredictScoreForLeague(home, away, league)
	return p.prediction(home, away, homeXG, awayXG, p.cfg.MaxGoals)
}

func (p *PoissonModel) prediction(home, away string, homeXG, awayXG float64, maxGoals int) MatchPrediction {
	if maxGoals <= 0 {
		maxGoals = p.cfg.MaxGoals
	}
	matrix := NewScorelineMatrix(homeXG, awayXG, maxGoals)
	if p.cfg.DixonColesRho != 0 {
		matrix.ApplyDixonColes(homeXG, awayXG, p.cfg.DixonColesRho)
	}

	thresholds := p.cfg.OverUnderThresholds
	if len(thresholds) == 0 {
		thresholds = DefaultConfig().Poisson.OverUnderThresholds
	}

	return MatchPrediction{
		HomeTeam:             home,
		AwayTeam:             away,
		OutcomeProbabilities: matrix.Outcomes(),
		ExpectedGoals:        ExpectedGoals{Home: homeXG, Away: awayXG},
		MostLikelyScores:     matrix.TopScores(5),
		OverUnder:            matrix.OverUnder(thresholds),
		BTTS:                 matrix.BTTS(),
		Matrix:               matrix,
	}
}

//////////////////////////////////////////////////////////////////
////// SCORELINE MATRIX
//////////////////////////////////////////////////////////////////

// ScorelineMatrix holds joint probabilities, rows are home goals and columns away goals.
// Mass beyond the cutoff is lost to truncation.
type ScorelineMatrix struct {
	m *mat.Dense
}

// NewScorelineMatrix is the outer product of two independent Poisson PMFs
func NewScorelineMatrix(homeXG, awayXG float64, maxGoals int) *ScorelineMatrix {
	if maxGoals < 0 {
		maxGoals = 0
	}
	n := maxGoals + 1
	var m mat.Dense
	m.Outer(1, mat.NewVecDense(n, poissonVector(homeXG, maxGoals)), mat.NewVecDense(n, poissonVector(awayXG, maxGoals)))
	return &ScorelineMatrix{m: &m}
}

// MaxGoals is the per side cutoff
func (s *ScorelineMatrix) MaxGoals() int {
	r, _ := s.m.Dims()
	return r - 1
}

func (s *ScorelineMatrix) At(homeGoals, awayGoals int) float64 {
	return s.m.At(homeGoals, awayGoals)
}

// Total probability mass held by the matrix
func (s *ScorelineMatrix) Total() float64 {
	return mat.Sum(s.m)
}

// Outcomes sums the strict lower triangle, the diagonal and the strict upper triangle
func (s *ScorelineMatrix) Outcomes() OutcomeProbabilities {
	var o OutcomeProbabilities
	r, c := s.m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			switch v := s.m.At(i, j); {
			case i > j:
				o.HomeWin += v
			case i == j:
				o.Draw += v
			default:
				o.AwayWin += v
			}
		}
	}
	return o
}

// TopScores returns the n most likely scorelines. Equal probabilities keep row-major order.
func (s *ScorelineMatrix) TopScores(n int) []ScoreProbability {
	r, c := s.m.Dims()
	all := make([]ScoreProbability, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			all = append(all, ScoreProbability{
				Score:       fmt.Sprintf("%d:%d", i, j),
				HomeGoals:   i,
				AwayGoals:   j,
				Probability: s.m.At(i, j),
			})
		}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Probability > all[b].Probability
	})
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// MostLikelyScore is the single most probable scoreline
func (s *ScorelineMatrix) MostLikelyScore() ScoreProbability {
	return s.TopScores(1)[0]
}

// OverUnderKey formats a market key such as over_2.5
func OverUnderKey(side string, threshold float64) string {
	return side + "_" + strconv.FormatFloat(threshold, 'f', -1, 64)
}

// OverUnder returns over_X and under_X for every threshold, under being the mass with fewer total goals
func (s *ScorelineMatrix) OverUnder(thresholds []float64) map[string]float64 {
	out := make(map[string]float64, len(thresholds)*2)
	r, c := s.m.Dims()
	for _, th := range thresholds {
		under := 0.0
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if float64(i+j) < th {
					under += s.m.At(i, j)
				}
			}
		}
		out[OverUnderKey("over", th)] = 1 - under
		out[OverUnderKey("under", th)] = under
	}
	return out
}

// BTTS sums the cells where both sides score
func (s *ScorelineMatrix) BTTS() BTTS {
	yes := 0.0
	r, c := s.m.Dims()
	for i := 1; i < r; i++ {
		for j := 1; j < c; j++ {
			yes += s.m.At(i, j)
		}
	}
	return BTTS{Yes: yes, No: 1 - yes}
}

// ApplyDixonColes adjusts the four low scorelines for their dependence and renormalises
func (s *ScorelineMatrix) ApplyDixonColes(homeXG, awayXG, rho float64) {
	if s.MaxGoals() < 1 {
		return
	}
	for _, cell := range [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
		i, j := cell[0], cell[1]
		tau := dixonColesTau(i, j, homeXG, awayXG, rho)
		s.m.Set(i, j, math.Max(0, s.m.At(i, j)*tau))
	}
	if total := s.Total(); total > 0 {
		s.m.Scale(1/total, s.m)
	}
}

func dixonColesTau(homeGoals, awayGoals int, lambda, mu, rho float64) float64 {
	switch {
	case homeGoals == 0 && awayGoals == 0:
		return 1 - lambda*mu*rho
	case homeGoals == 0 && awayGoals == 1:
		return 1 + lambda*rho
	case homeGoals == 1 && awayGoals == 0:
		return 1 + mu*rho
	case homeGoals == 1 && awayGoals == 1:
		return 1 - rho
	}
	return 1.0
}
