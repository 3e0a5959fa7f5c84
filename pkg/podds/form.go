package podds

import (
	"math"
	"sort"
	"strings"
)

// Form letters
const (
	FormWin  = 'W'
	FormDraw = 'D'
	FormLoss = 'L'
)

// TeamForm returns the last n results of team as W/D/L, most recent first.
// Results are ordered by date when dated, otherwise by their position in the slice.
func TeamForm(team string, results []MatchResult, n int) string {
	if n <= 0 {
		return ""
	}
	played := teamMatches(team, results)
	var sb strings.Builder
	for i := len(played) - 1; i >= 0 && sb.Len() < n; i-- {
		sb.WriteByte(formLetter(team, played[i]))
	}
	return sb.String()
}

func teamMatches(team string, results []MatchResult) []MatchResult {
	var played []MatchResult
	dated := true
	for _, r := range results {
		if r.HomeTeam == team || r.AwayTeam == team {
			played = append(played, r)
			dated = dated && !r.Date.IsZero()
		}
	}
	if dated {
		sort.SliceStable(played, func(i, j int) bool {
			return played[i].Date.Before(played[j].Date)
		})
	}
	return played
}

func formLetter(team string, r MatchResult) byte {
	kind := r.Result()
	switch {
	case kind == Draw:
		return FormDraw
	case (kind == HomeWin) == (r.HomeTeam == team):
		return FormWin
	default:
		return FormLoss
	}
}

// FormPoints scores a form string at three for a win and one for a draw
func FormPoints(form string) int {
	points := 0
	for _, c := range strings.ToUpper(form) {
		switch c {
		case FormWin:
			points += 3
		case FormDraw:
			points++
		}
	}
	return points
}

// FormPercentage is points as a share of the maximum available for the form's length
func FormPercentage(form string) float64 {
	if form == "" {
		return 0
	}
	return float64(FormPoints(form)) / float64(3*len(form))
}

// PPDA is passes allowed per defensive action. Lower means a harder press.
// With no defensive actions the press is non-existent and the result is +Inf.
func PPDA(opponentPasses, defensiveActions int) float64 {
	if defensiveActions <= 0 {
		return math.Inf(1)
	}
	return float64(opponentPasses) / float64(defensiveActions)
}

// HeadToHeadRecord summarises meetings between two teams from TeamA's side
type HeadToHeadRecord struct {
	TeamA         string `json:"teamA"`
	TeamB         string `json:"teamB"`
	Played        int    `json:"played"`
	TeamAWins     int    `json:"teamAWins"`
	Draws         int    `json:"draws"`
	TeamBWins     int    `json:"teamBWins"`
	TeamAGoals    int    `json:"teamAGoals"`
	TeamBGoals    int    `json:"teamBGoals"`
	TeamAHomeWins int    `json:"teamAHomeWins"`
}

// HeadToHead collects every meeting of a and b regardless of venue
func HeadToHead(a, b string, results []MatchResult) HeadToHeadRecord {
	rec := HeadToHeadRecord{TeamA: a, TeamB: b}
	for _, r := range results {
		var goalsA, goalsB int
		switch {
		case r.HomeTeam == a && r.AwayTeam == b:
			goalsA, goalsB = r.HomeGoals, r.AwayGoals
			if goalsA > goalsB {
				rec.TeamAHomeWins++
			}
		case r.HomeTeam == b && r.AwayTeam == a:
			goalsA, goalsB = r.AwayGoals, r.HomeGoals
		default:
			continue
		}
		rec.Played++
		rec.TeamAGoals += goalsA
		rec.TeamBGoals += goalsB
		switch {
		case goalsA > goalsB:
			rec.TeamAWins++
		case goalsA < goalsB:
			rec.TeamBWins++
		default:
			rec.Draws++
		}
	}
	return rec
}
