package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
)

const timeLayout = time.RFC3339

//////////////////////////////////////////////////////////////////
////// RATINGS
//////////////////////////////////////////////////////////////////

// RatingRow is one team's Elo rating
type RatingRow struct {
	Team    string  `json:"team" column:"team" dbtype:"TEXT NOT NULL" primary:"true"`
	Rating  float64 `json:"rating" column:"rating" dbtype:"REAL NOT NULL"`
	Updated string  `json:"updated" column:"updated" dbtype:"TEXT"`
}

func (*RatingRow) TableName() string { return "rating" }

func (r *RatingRow) BeforeSave() error {
	if strings.TrimSpace(r.Team) == "" {
		return fmt.Errorf("rating row requires a team")
	}
	if r.Updated == "" {
		r.Updated = time.Now().UTC().Format(timeLayout)
	}
	return nil
}

// SaveRatings replaces the stored rating of every team in ratings
func (s *Store) SaveRatings(ratings map[string]float64) error {
	now := time.Now().UTC().Format(timeLayout)
	rows := make([]Persistable, 0, len(ratings))
	for _, team := range sortedKeys(ratings) {
		rows = append(rows, &RatingRow{Team: team, Rating: ratings[team], Updated: now})
	}
	return s.BulkSave(rows)
}

// LoadRatings returns every stored rating keyed by team
func (s *Store) LoadRatings() (map[string]float64, error) {
	rows, err := FindAll[RatingRow](s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Team] = r.Rating
	}
	return out, nil
}

//////////////////////////////////////////////////////////////////
////// RESULTS
//////////////////////////////////////////////////////////////////

// ResultRow is a completed match
type ResultRow struct {
	ID        string `json:"id" column:"id" dbtype:"TEXT NOT NULL" primary:"true"`
	League    string `json:"league" column:"league" dbtype:"TEXT" index:"true"`
	Date      string `json:"date" column:"match_date" dbtype:"TEXT" index:"true"`
	HomeTeam  string `json:"homeTeam" column:"home_team" dbtype:"TEXT NOT NULL" index:"true"`
	AwayTeam  string `json:"awayTeam" column:"away_team" dbtype:"TEXT NOT NULL" index:"true"`
	HomeGoals int    `json:"homeGoals" column:"home_goals" dbtype:"INTEGER NOT NULL"`
	AwayGoals int    `json:"awayGoals" column:"away_goals" dbtype:"INTEGER NOT NULL"`
}

func (*ResultRow) TableName() string { return "result" }

func (r *ResultRow) BeforeSave() error {
	if r.HomeGoals < 0 || r.AwayGoals < 0 {
		return fmt.Errorf("negative goals in %s v %s", r.HomeTeam, r.AwayTeam)
	}
	if r.ID == "" {
		r.ID = MatchID(r.League, r.Date, r.HomeTeam, r.AwayTeam)
	}
	return nil
}

// MatchID is the key a result is stored under when the source supplies none
func MatchID(league, date, home, away string) string {
	if len(date) >= 10 {
		date = date[:10]
	}
	return strings.ToLower(strings.Join([]string{league, date, home, away}, "|"))
}

func resultRow(m podds.MatchResult) *ResultRow {
	row := &ResultRow{
		ID:        m.ID,
		League:    m.League,
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		HomeGoals: m.HomeGoals,
		AwayGoals: m.AwayGoals,
	}
	if !m.Date.IsZero() {
		row.Date = m.Date.UTC().Format(timeLayout)
	}
	return row
}

// MatchResult converts the row back to the model record
func (r *ResultRow) MatchResult() podds.MatchResult {
	m := podds.MatchResult{
		ID:        r.ID,
		League:    r.League,
		HomeTeam:  r.HomeTeam,
		AwayTeam:  r.AwayTeam,
		HomeGoals: r.HomeGoals,
		AwayGoals: r.AwayGoals,
	}
	if t, err := time.Parse(timeLayout, r.Date); err == nil {
		m.Date = t
	}
	return m
}

// SaveResults stores results in one transaction. Re-saving a match overwrites it.
func (s *Store) SaveResults(results []podds.MatchResult) error {
	rows := make([]Persistable, len(results))
	for i, m := range results {
		rows[i] = resultRow(m)
	}
	return s.BulkSave(rows)
}

// LoadResults returns results oldest first, for one league or all when league is empty
func (s *Store) LoadResults(league string) ([]podds.MatchResult, error) {
	var (
		rows []*ResultRow
		err  error
	)
	if league == "" {
		rows, err = FindWhere[ResultRow](s, "1 = 1 ORDER BY match_date, id")
	} else {
		rows, err = FindWhere[ResultRow](s, "league = ? ORDER BY match_date, id", league)
	}
	if err != nil {
		return nil, err
	}
	out := make([]podds.MatchResult, len(rows))
	for i, r := range rows {
		out[i] = r.MatchResult()
	}
	return out, nil
}

//////////////////////////////////////////////////////////////////
////// FINDINGS
//////////////////////////////////////////////////////////////////

// FindingRow is one flagged selection from a scan
type FindingRow struct {
	RunID              string  `json:"runId" column:"run_id" dbtype:"TEXT NOT NULL" primary:"true"`
	FixtureID          string  `json:"fixtureId" column:"fixture_id" dbtype:"TEXT NOT NULL" primary:"true"`
	Market             string  `json:"market" column:"market" dbtype:"TEXT NOT NULL" primary:"true"`
	Selection          string  `json:"selection" column:"selection" dbtype:"TEXT NOT NULL" primary:"true"`
	HomeTeam           string  `json:"homeTeam" column:"home_team" dbtype:"TEXT"`
	AwayTeam           string  `json:"awayTeam" column:"away_team" dbtype:"TEXT"`
	ModelProbability   float64 `json:"modelProbability" column:"model_probability" dbtype:"REAL"`
	ImpliedProbability float64 `json:"impliedProbability" column:"implied_probability" dbtype:"REAL"`
	Odds               float64 `json:"odds" column:"odds" dbtype:"REAL"`
	ExpectedValue      float64 `json:"expectedValue" column:"expected_value" dbtype:"REAL" index:"true"`
	EdgeRatio          float64 `json:"edgeRatio" column:"edge_ratio" dbtype:"REAL"`
	IsValueBet         bool    `json:"isValueBet" column:"is_value_bet" dbtype:"INTEGER DEFAULT 0"`
	CreatedAt          string  `json:"createdAt" column:"created_at" dbtype:"TEXT"`
}

func (*FindingRow) TableName() string { return "finding" }

// SaveFindings stores the ranked findings of one scan run
func (s *Store) SaveFindings(runID string, findings []podds.RankedFinding) error {
	now := time.Now().UTC().Format(timeLayout)
	rows := make([]Persistable, len(findings))
	for i, f := range findings {
		rows[i] = &FindingRow{
			RunID:              runID,
			FixtureID:          f.FixtureID,
			Market:             f.Market,
			Selection:          f.Selection,
			HomeTeam:           f.HomeTeam,
			AwayTeam:           f.AwayTeam,
			ModelProbability:   f.ModelProbability,
			ImpliedProbability: f.ImpliedProbability,
			Odds:               f.Odds,
			ExpectedValue:      f.ExpectedValue,
			EdgeRatio:          f.EdgeRatio,
			IsValueBet:         f.IsValueBet,
			CreatedAt:          now,
		}
	}
	return s.BulkSave(rows)
}

// LoadFindings returns the findings of a run, best expected value first
func (s *Store) LoadFindings(runID string) ([]*FindingRow, error) {
	return FindWhere[FindingRow](s, "run_id = ? ORDER BY expected_value DESC", runID)
}
