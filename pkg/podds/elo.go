package podds

import (
	"fmt"
	"math"
	"sync"
)

// EloTracker holds team strength ratings updated match by match.
// Readers may run concurrently; updates take the write lock.
type EloTracker struct {
	mu      sync.RWMutex
	cfg     EloConfig
	ratings map[string]float64
}

// EloPrediction is the coarse 1X2 view derived from ratings alone.
// It uses a fixed draw share and will not agree with the Poisson 1X2 for the same fixture.
type EloPrediction struct {
	HomeWin        float64 `json:"homeWin"`
	Draw           float64 `json:"draw"`
	AwayWin        float64 `json:"awayWin"`
	HomeTeamRating float64 `json:"homeTeamRating"`
	AwayTeamRating float64 `json:"awayTeamRating"`
	ExpectedScore  float64 `json:"expectedScore"`
}

func NewEloTracker(cfg EloConfig) *EloTracker {
	return &EloTracker{cfg: cfg, ratings: map[string]float64{}}
}

// Rating returns the stored rating or the configured default for an unseen team
func (e *EloTracker) Rating(team string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rating(team)
}

func (e *EloTracker) rating(team string) float64 {
	if r, ok := e.ratings[team]; ok {
		return r
	}
	return e.cfg.DefaultRating
}

// ExpectedScore is the logistic expectation for teamA, with the home bonus added to teamA when at home
func (e *EloTracker) ExpectedScore(teamA, teamB string, teamAIsHome bool) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expected(teamA, teamB, teamAIsHome)
}

func (e *EloTracker) expected(teamA, teamB string, teamAIsHome bool) float64 {
	ra := e.rating(teamA)
	rb := e.rating(teamB)
	if teamAIsHome {
		ra += e.cfg.HomeAdvantage
	}
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// UpdateRatings applies one result and returns the new home and away ratings
func (e *EloTracker) UpdateRatings(home, away string, result ResultKind, importance float64) (float64, float64, error) {
	var actualHome float64
	switch result {
	case HomeWin:
		actualHome = 1.0
	case AwayWin:
		actualHome = 0.0
	case Draw:
		actualHome = 0.5
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidResultKind, result)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	homeRating := e.rating(home)
	awayRating := e.rating(away)

	expectedHome := e.expected(home, away, true)
	expectedAway := 1 - expectedHome

	k := e.cfg.KFactor * importance
	newHome := math.Round(homeRating + k*(actualHome-expectedHome))
	newAway := math.Round(awayRating + k*((1-actualHome)-expectedAway))

	e.ratings[home] = newHome
	e.ratings[away] = newAway
	return newHome, newAway, nil
}

// PredictMatch converts the expected score into 1X2 probabilities with a fixed draw share
func (e *EloTracker) PredictMatch(home, away string) EloPrediction {
	e.mu.RLock()
	defer e.mu.RUnlock()

	expectedHome := e.expected(home, away, true)
	pDraw := e.cfg.DrawProbability
	pHome := expectedHome * (1 - pDraw)
	pAway := (1 - expectedHome) * (1 - pDraw)

	total := pHome + pDraw + pAway
	return EloPrediction{
		HomeWin:        pHome / total,
		Draw:           pDraw / total,
		AwayWin:        pAway / total,
		HomeTeamRating: e.rating(home),
		AwayTeamRating: e.rating(away),
		ExpectedScore:  expectedHome,
	}
}

// BulkUpdate applies matches in order. It stops at the first bad result and
// does not roll back the updates already applied.
func (e *EloTracker) BulkUpdate(matches []RatedMatch) error {
	for i, m := range matches {
		importance := m.Importance
		if importance == 0 {
			importance = 1.0
		}
		if _, _, err := e.UpdateRatings(m.HomeTeam, m.AwayTeam, m.Result, importance); err != nil {
			return fmt.Errorf("match %d (%s v %s): %w", i, m.HomeTeam, m.AwayTeam, err)
		}
	}
	return nil
}

// Ratings returns a copy of every stored rating
func (e *EloTracker) Ratings() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64, len(e.ratings))
	for team, r := range e.ratings {
		out[team] = r
	}
	return out
}

// Restore replaces the stored ratings, e.g. with a snapshot loaded from disk
func (e *EloTracker) Restore(ratings map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratings = make(map[string]float64, len(ratings))
	for team, r := range ratings {
		e.ratings[team] = r
	}
}
