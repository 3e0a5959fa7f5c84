package podds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richard-senior/podds/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics
var (
	fixturesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podds_fixtures_scanned_total",
		Help: "Total number of fixtures priced by the market scanner",
	})

	fixturesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podds_fixtures_skipped_total",
		Help: "Total number of fixtures skipped for lack of usable odds",
	})

	valueBetsFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podds_value_bets_found_total",
		Help: "Total number of flagged selections",
	})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "podds_scan_duration_seconds",
		Help:    "Duration of market scans",
		Buckets: prometheus.DefBuckets,
	})
)

// ScannedFixture holds both model views of one fixture. The Elo and Poisson
// 1X2 figures are derived independently and can disagree.
type ScannedFixture struct {
	Fixture Fixture         `json:"fixture"`
	Poisson MatchPrediction `json:"poisson"`
	Elo     EloPrediction   `json:"elo"`
	Skipped bool            `json:"skipped,omitempty"`
}

// ScanReport is the outcome of one scan
type ScanReport struct {
	RunID     string            `json:"runId"`
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
	Fixtures  int               `json:"fixtures"`
	Skipped   int               `json:"skipped"`
	Scanned   []ScannedFixture  `json:"scanned"`
	Analyses  []FixtureAnalysis `json:"analyses"`
	Findings  []RankedFinding   `json:"findings"`
}

// MarketScanner prices a batch of fixtures and ranks the value it finds
type MarketScanner struct {
	poisson  *PoissonModel
	elo      *EloTracker
	analyzer *ValueBetAnalyzer
	cfg      ScannerConfig
}

func NewMarketScanner(poisson *PoissonModel, elo *EloTracker, analyzer *ValueBetAnalyzer, cfg ScannerConfig) *MarketScanner {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &MarketScanner{poisson: poisson, elo: elo, analyzer: analyzer, cfg: cfg}
}

// Scan predicts up to Limit fixtures concurrently, then analyses their markets.
// Readers only: callers must not fit or update the models while a scan runs.
func (s *MarketScanner) Scan(ctx context.Context, fixtures []Fixture) (*ScanReport, error) {
	start := time.Now()
	report := &ScanReport{RunID: uuid.New().String(), StartedAt: start.UTC()}

	if len(fixtures) > s.cfg.Limit {
		logger.Info("Scan limited to", s.cfg.Limit, "of", len(fixtures), "fixtures")
		fixtures = fixtures[:s.cfg.Limit]
	}
	report.Fixtures = len(fixtures)

	scanned := make([]ScannedFixture, len(fixtures))
	inputs := make([]*FixtureInput, len(fixtures))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, fx := range fixtures {
		i, fx := i, fx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			scanned[i], inputs[i], err = s.priceFixture(fx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", report.RunID, err)
	}

	var usable []FixtureInput
	for _, in := range inputs {
		if in == nil {
			report.Skipped++
			continue
		}
		usable = append(usable, *in)
	}
	report.Scanned = scanned

	analyses, err := s.analyzer.FindValueBets(usable)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", report.RunID, err)
	}
	report.Analyses = analyses
	report.Findings = RankFindings(analyses)
	report.Duration = time.Since(start)

	fixturesScanned.Add(float64(report.Fixtures - report.Skipped))
	fixturesSkipped.Add(float64(report.Skipped))
	valueBetsFound.Add(float64(len(report.Findings)))
	scanDuration.Observe(report.Duration.Seconds())

	logger.Info("Scan", report.RunID, "priced", report.Fixtures-report.Skipped, "fixtures and found", len(report.Findings), "value bets")
	return report, nil
}

// priceFixture runs both models for one fixture and pairs the Poisson view with
// whatever odds the fixture carries. A nil input means no market was usable.
// Missing prices only leave a market out; a price that is present but invalid
// is an error.
func (s *MarketScanner) priceFixture(fx Fixture) (ScannedFixture, *FixtureInput, error) {
	out := ScannedFixture{
		Fixture: fx,
		Poisson: s.poisson.PredictLeagueMatch(fx.HomeTeam, fx.AwayTeam, fx.League),
	}
	if s.elo != nil {
		out.Elo = s.elo.PredictMatch(fx.HomeTeam, fx.AwayTeam)
	}

	for _, q := range fx.Odds {
		if _, err := ImpliedProbability(q.Odds); err != nil {
			return out, nil, fmt.Errorf("fixture %s %s %s: %w", fx.ID, q.Market, q.Selection, err)
		}
	}

	in := &FixtureInput{
		ID:        fx.ID,
		HomeTeam:  fx.HomeTeam,
		AwayTeam:  fx.AwayTeam,
		League:    fx.League,
		MatchDate: fx.MatchDate,
	}

	if odds, ok := complete1X2(fx.OddsFor(Market1X2)); ok {
		model := out.Poisson.OutcomeProbabilities
		in.Model1X2 = &model
		in.Odds1X2 = &odds
	}

	if ou := fx.OddsFor(MarketOverUnder); len(ou) > 0 {
		in.ModelOverUnder = out.Poisson.OverUnder
		in.OddsOverUnder = ou
	}

	if in.Odds1X2 == nil && in.OddsOverUnder == nil {
		logger.Debug("No usable odds for fixture", fx.ID)
		out.Skipped = true
		return out, nil, nil
	}
	return out, in, nil
}

// complete1X2 is false unless all three selections are quoted
func complete1X2(quotes map[string]float64) (OutcomeOdds, bool) {
	home, okH := quotes[SelectionHomeWin]
	draw, okD := quotes[SelectionDraw]
	away, okA := quotes[SelectionAwayWin]
	if !okH || !okD || !okA {
		return OutcomeOdds{}, false
	}
	return OutcomeOdds{HomeWin: home, Draw: draw, AwayWin: away}, true
}
