package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "podds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateCreateTableSQL(t *testing.T) {
	got := generateCreateTableSQL(&RatingRow{}, "rating")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS rating (team TEXT NOT NULL, rating REAL NOT NULL, updated TEXT, PRIMARY KEY (team))", got)

	idx := generateIndexSQL(&ResultRow{}, "result")
	assert.Contains(t, idx, "CREATE INDEX IF NOT EXISTS idx_result_league ON result(league)")
	assert.Len(t, idx, 4)
}

func TestSaveInsertsThenUpdates(t *testing.T) {
	s := openTestStore(t)

	row := &RatingRow{Team: "Arsenal", Rating: 1514}
	require.NoError(t, s.Save(row))
	assert.NotEmpty(t, row.Updated)

	ok, err := s.Exists(&RatingRow{Team: "Arsenal"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Save(&RatingRow{Team: "Arsenal", Rating: 1530}))
	got := &RatingRow{Team: "Arsenal"}
	require.NoError(t, s.FindByPrimaryKey(got))
	assert.Equal(t, 1530.0, got.Rating)

	all, err := FindAll[RatingRow](s)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(got))
	err = s.FindByPrimaryKey(&RatingRow{Team: "Arsenal"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBeforeSaveRejectsRow(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(&RatingRow{Team: " "}))
}

func TestBulkSaveIsAtomic(t *testing.T) {
	s := openTestStore(t)
	err := s.BulkSave([]Persistable{
		&RatingRow{Team: "Arsenal", Rating: 1500},
		&RatingRow{Team: "", Rating: 1500},
	})
	require.Error(t, err)

	all, err := FindAll[RatingRow](s)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRatingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ratings := map[string]float64{"Arsenal": 1514, "Burnley": 1486, "Chelsea": 1500}
	require.NoError(t, s.SaveRatings(ratings))
	require.NoError(t, s.SaveRatings(map[string]float64{"Burnley": 1470}))

	got, err := s.LoadRatings()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Arsenal": 1514, "Burnley": 1470, "Chelsea": 1500}, got)

	elo := podds.NewEloTracker(podds.DefaultConfig().Elo)
	elo.Restore(got)
	assert.Equal(t, 1470.0, elo.Rating("Burnley"))
}

func TestResultsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	day := func(d int) time.Time { return time.Date(2024, 8, d, 14, 0, 0, 0, time.UTC) }
	results := []podds.MatchResult{
		{League: "E0", Date: day(17), HomeTeam: "Chelsea", AwayTeam: "Arsenal", HomeGoals: 1, AwayGoals: 1},
		{League: "E0", Date: day(10), HomeTeam: "Arsenal", AwayTeam: "Burnley", HomeGoals: 4, AwayGoals: 0},
		{League: "E1", Date: day(10), HomeTeam: "Derby", AwayTeam: "Leeds", HomeGoals: 0, AwayGoals: 2},
	}
	require.NoError(t, s.SaveResults(results))
	require.NoError(t, s.SaveResults(results[:1]))

	e0, err := s.LoadResults("E0")
	require.NoError(t, err)
	require.Len(t, e0, 2)
	assert.Equal(t, "Arsenal", e0[0].HomeTeam)
	assert.True(t, e0[0].Date.Equal(day(10)))
	assert.Equal(t, "e0|2024-08-10|arsenal|burnley", e0[0].ID)

	all, err := s.LoadResults("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.Error(t, s.SaveResults([]podds.MatchResult{{HomeTeam: "A", AwayTeam: "B", HomeGoals: -1}}))
}

func TestSaveFindings(t *testing.T) {
	s := openTestStore(t)
	findings := []podds.RankedFinding{
		{FixtureID: "1", HomeTeam: "A", AwayTeam: "B", ValueBetFinding: podds.ValueBetFinding{
			Market: podds.Market1X2, Selection: podds.SelectionHomeWin, Odds: 2.2, ExpectedValue: 0.1, IsValueBet: true,
		}},
		{FixtureID: "2", HomeTeam: "C", AwayTeam: "D", ValueBetFinding: podds.ValueBetFinding{
			Market: podds.MarketOverUnder, Selection: "over_2.5", Odds: 1.8, ExpectedValue: 0.26, IsValueBet: true,
		}},
	}
	require.NoError(t, s.SaveFindings("run-1", findings))

	rows, err := s.LoadFindings("run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].FixtureID)
	assert.True(t, rows[0].IsValueBet)

	none, err := s.LoadFindings("run-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
