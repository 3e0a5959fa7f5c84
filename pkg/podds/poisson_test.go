package podds

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoisson() *PoissonModel {
	return NewPoissonModel(DefaultConfig().Poisson)
}

func mustResult(t *testing.T, home, away string, hg, ag int) MatchResult {
	t.Helper()
	m, err := NewMatchResult(home, away, hg, ag)
	require.NoError(t, err)
	return m
}

func sampleHistory(t *testing.T) []MatchResult {
	return []MatchResult{
		mustResult(t, "Arsenal", "Burnley", 4, 0),
		mustResult(t, "Burnley", "Chelsea", 0, 2),
		mustResult(t, "Chelsea", "Arsenal", 1, 1),
		mustResult(t, "Arsenal", "Chelsea", 2, 1),
		mustResult(t, "Burnley", "Arsenal", 1, 3),
		mustResult(t, "Chelsea", "Burnley", 3, 0),
		mustResult(t, "Derby", "Burnley", 1, 1),
		mustResult(t, "Derby", "Arsenal", 0, 2),
	}
}

func TestPoissonProbability(t *testing.T) {
	assert.Equal(t, 1.0, PoissonProbability(0, 0))
	assert.Equal(t, 0.0, PoissonProbability(0, 1))
	assert.Equal(t, 0.0, PoissonProbability(0, 7))
	assert.Equal(t, 0.0, PoissonProbability(1.2, -1))

	assert.InDelta(t, math.Exp(-2)*8/6, PoissonProbability(2, 3), 1e-12)

	for _, lambda := range []float64{0, 0.3, 1.375, 3.2, 6} {
		sum := 0.0
		for k := 0; k <= 60; k++ {
			sum += PoissonProbability(lambda, k)
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "lambda %v", lambda)
	}
}

func TestPoissonUnfitModelUsesAverageStrength(t *testing.T) {
	p := newTestPoisson()
	home, away := p.PredictScore("X", "Y")
	assert.InDelta(t, 1.85625, home, 1e-9)
	assert.InDelta(t, 1.375, away, 1e-9)
}

func TestPoissonFitEmptyIsNoOp(t *testing.T) {
	p := newTestPoisson()
	require.NoError(t, p.Fit(nil))
	assert.Empty(t, p.Teams())

	require.NoError(t, p.Fit(sampleHistory(t)))
	before := p.Coefficients("Arsenal")
	require.NoError(t, p.Fit([]MatchResult{}))
	assert.Equal(t, before, p.Coefficients("Arsenal"))
}

func TestPoissonFitNormalisesCoefficients(t *testing.T) {
	p := newTestPoisson()
	require.NoError(t, p.Fit(sampleHistory(t)))

	teams := p.Teams()
	require.Equal(t, []string{"Arsenal", "Burnley", "Chelsea", "Derby"}, teams)

	attack, defense := 0.0, 0.0
	for _, team := range teams {
		c := p.Coefficients(team)
		assert.Greater(t, c.Attack, 0.0, team)
		assert.Greater(t, c.Defense, 0.0, team)
		attack += c.Attack
		defense += c.Defense
	}
	assert.InDelta(t, 1.0, attack/float64(len(teams)), 1e-9)
	assert.InDelta(t, 1.0, defense/float64(len(teams)), 1e-9)

	assert.Greater(t, p.Coefficients("Arsenal").Attack, p.Coefficients("Burnley").Attack)
	assert.Less(t, p.Coefficients("Arsenal").Defense, p.Coefficients("Burnley").Defense)
}

func TestPoissonFitRejectsNegativeGoals(t *testing.T) {
	p := newTestPoisson()
	err := p.Fit([]MatchResult{{HomeTeam: "A", AwayTeam: "B", HomeGoals: -1}})
	assert.Error(t, err)
	assert.Empty(t, p.Teams())
}

func TestPoissonUnseenTeamAfterFit(t *testing.T) {
	p := newTestPoisson()
	require.NoError(t, p.Fit(sampleHistory(t)))
	assert.Equal(t, Coefficients{Attack: 1, Defense: 1}, p.Coefficients("Everton"))

	home, _ := p.PredictScore("Everton", "Fulham")
	assert.InDelta(t, 1.85625, home, 1e-9)
}

func TestPoissonPredictMatchResultIsConsistent(t *testing.T) {
	p := newTestPoisson()
	require.NoError(t, p.Fit(sampleHistory(t)))

	for _, fixture := range [][2]string{{"Arsenal", "Chelsea"}, {"Chelsea", "Arsenal"}, {"X", "Y"}} {
		pred := p.PredictMatchResult(fixture[0], fixture[1], 10)

		assert.InDelta(t, 1.0, pred.Sum(), 1e-4, fixture)
		assert.InDelta(t, pred.Matrix.Total(), pred.Sum(), 1e-12)
		assert.Len(t, pred.MostLikelyScores, 5)
		for i := 1; i < len(pred.MostLikelyScores); i++ {
			assert.GreaterOrEqual(t, pred.MostLikelyScores[i-1].Probability, pred.MostLikelyScores[i].Probability)
		}

		for _, th := range []float64{0.5, 1.5, 2.5, 3.5, 4.5} {
			over := pred.OverUnder[OverUnderKey("over", th)]
			under := pred.OverUnder[OverUnderKey("under", th)]
			assert.InDelta(t, 1.0, over+under, 1e-12)
		}
		assert.Greater(t, pred.OverUnder["under_4.5"], pred.OverUnder["under_0.5"])
		assert.InDelta(t, 1.0, pred.BTTS.Yes+pred.BTTS.No, 1e-12)
	}
}

func TestScorelineMatrixKnownValues(t *testing.T) {
	m := NewScorelineMatrix(1.5, 0.9, 10)

	assert.Equal(t, 10, m.MaxGoals())
	assert.InDelta(t, math.Exp(-2.4), m.At(0, 0), 1e-12)
	assert.InDelta(t, math.Exp(-2.4), m.OverUnder([]float64{0.5})["under_0.5"], 1e-12)

	under25 := 0.0
	for i := 0; i <= 2; i++ {
		for j := 0; i+j <= 2; j++ {
			under25 += PoissonProbability(1.5, i) * PoissonProbability(0.9, j)
		}
	}
	assert.InDelta(t, under25, m.OverUnder([]float64{2.5})["under_2.5"], 1e-12)

	btts := (1 - math.Exp(-1.5)) * (1 - math.Exp(-0.9))
	assert.InDelta(t, btts, m.BTTS().Yes, 1e-6)

	top := m.MostLikelyScore()
	assert.Equal(t, "1:0", top.Score)
	assert.Equal(t, 1, top.HomeGoals)
}

func TestScorelineMatrixZeroLambdaTiesKeepRowMajorOrder(t *testing.T) {
	m := NewScorelineMatrix(0, 0, 10)

	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, OutcomeProbabilities{HomeWin: 0, Draw: 1, AwayWin: 0}, m.Outcomes())

	var scores []string
	for _, s := range m.TopScores(5) {
		scores = append(scores, s.Score)
	}
	assert.Equal(t, []string{"0:0", "0:1", "0:2", "0:3", "0:4"}, scores)
	assert.Equal(t, 0.0, m.BTTS().Yes)
	assert.Equal(t, 1.0, m.OverUnder([]float64{0.5})["under_0.5"])
}

func TestScorelineMatrixTruncation(t *testing.T) {
	m := NewScorelineMatrix(4, 4, 3)
	assert.Less(t, m.Total(), 1.0)
	assert.InDelta(t, m.Total(), m.Outcomes().Sum(), 1e-12)
}

func TestDixonColesCorrection(t *testing.T) {
	plain := NewScorelineMatrix(1.4, 1.1, 10)
	corrected := NewScorelineMatrix(1.4, 1.1, 10)
	corrected.ApplyDixonColes(1.4, 1.1, -0.05)

	assert.InDelta(t, 1.0, corrected.Total(), 1e-12)
	assert.Greater(t, corrected.At(0, 0)/corrected.At(2, 2), plain.At(0, 0)/plain.At(2, 2))
	assert.Greater(t, corrected.At(1, 1)/corrected.At(2, 2), plain.At(1, 1)/plain.At(2, 2))
	assert.Less(t, corrected.At(1, 0)/corrected.At(2, 2), plain.At(1, 0)/plain.At(2, 2))
}

func TestPoissonLeagueAverageOverride(t *testing.T) {
	cfg := DefaultConfig().Poisson
	cfg.LeagueAverages = map[string]float64{"E3": 2.2}
	p := NewPoissonModel(cfg)

	home, away := p.PredictScoreForLeague("X", "Y", "E3")
	assert.InDelta(t, 1.35*1.1, home, 1e-9)
	assert.InDelta(t, 1.1, away, 1e-9)

	home, _ = p.PredictScoreForLeague("X", "Y", "SP1")
	assert.InDelta(t, 1.85625, home, 1e-9)

	pred := p.PredictLeagueMatch("X", "Y", "E3")
	assert.InDelta(t, 1.1, pred.ExpectedGoals.Away, 1e-9)
}

func TestPoissonFitWhilePredicting(t *testing.T) {
	p := newTestPoisson()
	history := sampleHistory(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				pred := p.PredictMatchResult("Arsenal", "Chelsea", 10)
				assert.InDelta(t, 1.0, pred.Sum(), 1e-4)
			}
		}()
	}
	for j := 0; j < 5; j++ {
		require.NoError(t, p.Fit(history))
	}
	wg.Wait()
}
