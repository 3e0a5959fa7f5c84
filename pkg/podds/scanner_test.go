package podds

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T, cfg ScannerConfig) *MarketScanner {
	t.Helper()
	defaults := DefaultConfig()
	p := NewPoissonModel(defaults.Poisson)
	require.NoError(t, p.Fit(sampleHistory(t)))
	e := NewEloTracker(defaults.Elo)
	for _, m := range sampleHistory(t) {
		_, _, err := e.UpdateRatings(m.HomeTeam, m.AwayTeam, m.Result(), 1)
		require.NoError(t, err)
	}
	return NewMarketScanner(p, e, NewValueBetAnalyzer(defaults.Value), cfg)
}

func quotes1X2(home, draw, away float64) []OddsQuote {
	return []OddsQuote{
		{Market: Market1X2, Selection: SelectionHomeWin, Odds: home},
		{Market: Market1X2, Selection: SelectionDraw, Odds: draw},
		{Market: Market1X2, Selection: SelectionAwayWin, Odds: away},
	}
}

func TestScanFindsAndRanksValue(t *testing.T) {
	s := newTestScanner(t, ScannerConfig{Limit: 50, Concurrency: 3})
	fixtures := []Fixture{
		{ID: "generous", HomeTeam: "Arsenal", AwayTeam: "Burnley", Odds: append(
			quotes1X2(50, 1.01, 1.01),
			OddsQuote{Market: MarketOverUnder, Selection: "over_2.5", Odds: 100},
			OddsQuote{Market: MarketOverUnder, Selection: "under_2.5", Odds: 1.01},
		)},
		{ID: "mean", HomeTeam: "Chelsea", AwayTeam: "Derby", Odds: quotes1X2(1.05, 1.05, 1.05)},
		{ID: "no odds", HomeTeam: "Derby", AwayTeam: "Arsenal"},
		{ID: "partial", HomeTeam: "Burnley", AwayTeam: "Chelsea", Odds: []OddsQuote{{Market: Market1X2, Selection: SelectionHomeWin, Odds: 9}}},
	}

	report, err := s.Scan(context.Background(), fixtures)
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 4, report.Fixtures)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Scanned, 4)
	assert.True(t, report.Scanned[2].Skipped)
	assert.False(t, report.Scanned[0].Skipped)
	assert.Greater(t, report.Scanned[0].Elo.HomeTeamRating, report.Scanned[0].Elo.AwayTeamRating)

	require.Len(t, report.Analyses, 1)
	assert.Equal(t, "generous", report.Analyses[0].FixtureID)
	ou := report.Analyses[0].Markets[MarketOverUnder]
	require.Len(t, ou.Selections, 2)
	assert.Equal(t, "over_2.5", ou.BestValueBet)

	require.NotEmpty(t, report.Findings)
	for i := 1; i < len(report.Findings); i++ {
		assert.GreaterOrEqual(t, report.Findings[i-1].ExpectedValue, report.Findings[i].ExpectedValue)
	}
	var selections []string
	for _, f := range report.Findings {
		assert.Equal(t, "generous", f.FixtureID)
		selections = append(selections, f.Selection)
	}
	assert.ElementsMatch(t, []string{"over_2.5", SelectionHomeWin}, selections)
}

func TestScanRejectsInvalidOdds(t *testing.T) {
	tests := []struct {
		name string
		odds []OddsQuote
		want string
	}{
		{"1x2 price of one", quotes1X2(9.0, 1.0, 4.0), "fixture f1 1x2 draw"},
		{"over/under below one", []OddsQuote{
			{Market: MarketOverUnder, Selection: "over_2.5", Odds: 0.5},
			{Market: MarketOverUnder, Selection: "under_2.5", Odds: 9.0},
		}, "fixture f1 over_under over_2.5"},
		{"lone invalid price", []OddsQuote{{Market: Market1X2, Selection: SelectionHomeWin, Odds: 1.0}}, "fixture f1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestScanner(t, ScannerConfig{Limit: 50, Concurrency: 2})
			fixtures := []Fixture{
				{ID: "ok", HomeTeam: "Arsenal", AwayTeam: "Burnley", Odds: quotes1X2(2.0, 3.5, 4.0)},
				{ID: "f1", HomeTeam: "Chelsea", AwayTeam: "Derby", Odds: tc.odds},
			}
			report, err := s.Scan(context.Background(), fixtures)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, ErrInvalidOdds)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestScanRespectsLimit(t *testing.T) {
	s := newTestScanner(t, ScannerConfig{Limit: 3, Concurrency: 2})
	var fixtures []Fixture
	for i := 0; i < 10; i++ {
		fixtures = append(fixtures, Fixture{ID: fmt.Sprint(i), HomeTeam: "Arsenal", AwayTeam: "Chelsea", Odds: quotes1X2(2, 3, 4)})
	}

	report, err := s.Scan(context.Background(), fixtures)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Fixtures)
	assert.Len(t, report.Scanned, 3)
	assert.Equal(t, "2", report.Scanned[2].Fixture.ID)
}

func TestScanCancelled(t *testing.T) {
	s := newTestScanner(t, ScannerConfig{Limit: 50, Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, []Fixture{{ID: "1", HomeTeam: "Arsenal", AwayTeam: "Chelsea"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanEmpty(t *testing.T) {
	s := newTestScanner(t, ScannerConfig{})
	report, err := s.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Fixtures)
	assert.Empty(t, report.Findings)
}
