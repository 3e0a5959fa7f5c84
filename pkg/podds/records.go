package podds

import (
	"fmt"
	"math"
	"strings"
	"time"
)

//////////////////////////////////////////////////////////////////
////// RESULTS
//////////////////////////////////////////////////////////////////

// ResultKind is the outcome of a match from the home side's point of view
type ResultKind string

const (
	HomeWin ResultKind = "home_win"
	AwayWin ResultKind = "away_win"
	Draw    ResultKind = "draw"
)

// Valid reports whether r is one of the three recognised outcomes
func (r ResultKind) Valid() bool {
	return r == HomeWin || r == AwayWin || r == Draw
}

// ParseResultKind accepts the long labels and the football-data H/D/A codes
func ParseResultKind(s string) (ResultKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "home_win", "h":
		return HomeWin, nil
	case "away_win", "a":
		return AwayWin, nil
	case "draw", "d":
		return Draw, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResultKind, s)
}

// MatchResult is a completed fixture
type MatchResult struct {
	ID        string    `json:"id,omitempty"`
	League    string    `json:"league,omitempty"`
	Date      time.Time `json:"date,omitempty"`
	HomeTeam  string    `json:"homeTeam"`
	AwayTeam  string    `json:"awayTeam"`
	HomeGoals int       `json:"homeGoals"`
	AwayGoals int       `json:"awayGoals"`
}

// NewMatchResult validates a result at the boundary
func NewMatchResult(home, away string, homeGoals, awayGoals int) (MatchResult, error) {
	home = strings.TrimSpace(home)
	away = strings.TrimSpace(away)
	if home == "" || away == "" {
		return MatchResult{}, fmt.Errorf("match result requires both team names")
	}
	if home == away {
		return MatchResult{}, fmt.Errorf("team %s cannot play itself", home)
	}
	if homeGoals < 0 || awayGoals < 0 {
		return MatchResult{}, fmt.Errorf("negative goals in %s v %s: %d-%d", home, away, homeGoals, awayGoals)
	}
	return MatchResult{HomeTeam: home, AwayTeam: away, HomeGoals: homeGoals, AwayGoals: awayGoals}, nil
}

// Result derives the outcome from the score
func (m MatchResult) Result() ResultKind {
	switch {
	case m.HomeGoals > m.AwayGoals:
		return HomeWin
	case m.HomeGoals < m.AwayGoals:
		return AwayWin
	default:
		return Draw
	}
}

// RatedMatch is an Elo input: a result label and an importance weight
type RatedMatch struct {
	HomeTeam   string     `json:"homeTeam"`
	AwayTeam   string     `json:"awayTeam"`
	Result     ResultKind `json:"result"`
	Importance float64    `json:"importance,omitempty"`
}

// Rated converts a scored result into an Elo input with normal importance
func (m MatchResult) Rated() RatedMatch {
	return RatedMatch{HomeTeam: m.HomeTeam, AwayTeam: m.AwayTeam, Result: m.Result(), Importance: 1.0}
}

//////////////////////////////////////////////////////////////////
////// FIXTURES AND ODDS
//////////////////////////////////////////////////////////////////

// Market names
const (
	Market1X2       = "1x2"
	MarketOverUnder = "over_under"
)

// OddsQuote is a bookmaker's decimal price for one selection of one market
type OddsQuote struct {
	Market    string  `json:"market"`
	Selection string  `json:"selection"`
	Odds      float64 `json:"odds"`
	Bookmaker string  `json:"bookmaker,omitempty"`
}

// NewOddsQuote rejects prices that do not encode a probability
func NewOddsQuote(market, selection string, odds float64) (OddsQuote, error) {
	if math.IsNaN(odds) || odds <= 1.0 {
		return OddsQuote{}, &InvalidOddsError{Odds: odds}
	}
	if market == "" || selection == "" {
		return OddsQuote{}, fmt.Errorf("odds quote requires a market and a selection")
	}
	return OddsQuote{Market: market, Selection: selection, Odds: odds}, nil
}

// Fixture is an upcoming match with whatever odds the collaborator supplied
type Fixture struct {
	ID        string      `json:"id"`
	League    string      `json:"league,omitempty"`
	HomeTeam  string      `json:"homeTeam"`
	AwayTeam  string      `json:"awayTeam"`
	MatchDate time.Time   `json:"matchDate,omitempty"`
	Odds      []OddsQuote `json:"odds,omitempty"`
}

// OddsFor returns the quotes of one market keyed by selection
func (f Fixture) OddsFor(market string) map[string]float64 {
	out := map[string]float64{}
	for _, q := range f.Odds {
		if q.Market == market {
			out[q.Selection] = q.Odds
		}
	}
	return out
}

//////////////////////////////////////////////////////////////////
////// SHOTS
//////////////////////////////////////////////////////////////////

// BodyPart of a shot
type BodyPart string

const (
	BodyPartFoot  BodyPart = "foot"
	BodyPartHead  BodyPart = "head"
	BodyPartOther BodyPart = "other"
)

// ShotEvent is a single attempt on goal
type ShotEvent struct {
	Distance           float64  `json:"distance"` // metres to goal centre
	Angle              float64  `json:"angle"`    // degrees off the centre line
	IsHeader           bool     `json:"isHeader"`
	IsBigChance        bool     `json:"isBigChance"`
	IsFastBreak        bool     `json:"isFastBreak"`
	DefendersBetween   int      `json:"defendersBetween"`
	GoalkeeperDistance float64  `json:"goalkeeperDistance"`
	BodyPart           BodyPart `json:"bodyPart,omitempty"`
	IsGoal             bool     `json:"isGoal"`
}

// NewShotEvent validates geometry. A header implies the head body part.
func NewShotEvent(distance, angle float64, header, bigChance bool) (ShotEvent, error) {
	if distance < 0 || math.IsNaN(distance) {
		return ShotEvent{}, fmt.Errorf("shot distance must not be negative, got %v", distance)
	}
	if angle < -90 || angle > 90 || math.IsNaN(angle) {
		return ShotEvent{}, fmt.Errorf("shot angle must be within [-90, 90], got %v", angle)
	}
	part := BodyPartFoot
	if header {
		part = BodyPartHead
	}
	return ShotEvent{Distance: distance, Angle: angle, IsHeader: header, IsBigChance: bigChance, BodyPart: part}, nil
}

// IsFoot is true unless the shot is known to be a header or another body part
func (s ShotEvent) IsFoot() bool {
	if s.IsHeader {
		return false
	}
	return s.BodyPart == "" || s.BodyPart == BodyPartFoot
}

// ShotStats are per team match totals where individual shot events are unavailable
type ShotStats struct {
	ShotsInsideBox  int `json:"shotsInsideBox"`
	ShotsOutsideBox int `json:"shotsOutsideBox"`
	ShotsOnTarget   int `json:"shotsOnTarget"`
}
