package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/datasource"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/store"
)

const usage = `usage: podds <command> [flags]

commands:
  load      download league seasons into the database
  discover  list the season files linked from a football-data league page
  ratings   rebuild Elo ratings from stored results
  predict   predict a single fixture
  scan      price upcoming fixtures and report value bets
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "load":
		err = runLoad(ctx, args)
	case "discover":
		err = runDiscover(ctx, args)
	case "ratings":
		err = runRatings(args)
	case "predict":
		err = runPredict(args)
	case "scan":
		err = runScan(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("podds", command, "failed:", err)
		os.Exit(1)
	}
}

// common flags shared by every command
type common struct {
	configPath string
	dbPath     string
	debug      bool
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.dbPath, "db", "", "database file, overrides the configured path")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
	return fs, c
}

// setup loads the configuration and applies the logging section
func (c *common) setup() (*podds.Config, error) {
	cfg, err := podds.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.dbPath != "" {
		cfg.Store.DbPath = c.dbPath
	}
	if err := configureLogging(cfg.Logging, c.debug); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogging(cfg podds.LoggingConfig, debug bool) error {
	logger.SetShowDateTime(cfg.ShowDateTime)
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	output := 'c'
	switch strings.ToLower(cfg.Output) {
	case "file":
		output = 'f'
	case "both":
		output = 'b'
	}
	file := cfg.File
	if file == "" {
		file = logger.DefaultLogFile
	}
	return logger.SetLogOutputFile(output, file)
}

//////////////////////////////////////////////////////////////////
////// LOAD
//////////////////////////////////////////////////////////////////

func runLoad(ctx context.Context, args []string) error {
	fs, c := newFlagSet("load")
	leagues := fs.String("league", "", "comma separated league codes, defaults to the configured leagues")
	seasons := fs.String("season", "", "comma separated seasons such as 2024/2025, defaults to the configured seasons")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	if *leagues != "" {
		cfg.Datasource.Leagues = strings.Split(*leagues, ",")
	}
	if *seasons != "" {
		cfg.Datasource.Seasons = strings.Split(*seasons, ",")
	}

	db, err := store.Open(cfg.Store.DbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	client := datasource.New(cfg.Datasource, nil)
	total := 0
	for _, league := range cfg.Datasource.Leagues {
		for _, season := range cfg.Datasource.Seasons {
			if err := ctx.Err(); err != nil {
				return err
			}
			results, _, err := client.LoadSeason(ctx, strings.TrimSpace(league), strings.TrimSpace(season))
			if err != nil {
				logger.Warn("Skipping", league, season, err)
				continue
			}
			if err := db.SaveResults(results); err != nil {
				return err
			}
			total += len(results)
		}
	}
	logger.Inform("Stored", total, "results in", db.Path())
	return nil
}

func runDiscover(ctx context.Context, args []string) error {
	fs, c := newFlagSet("discover")
	page := fs.String("page", "englandm.php", "league page to scan for season files")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	files, err := datasource.New(cfg.Datasource, nil).DiscoverSeasonFiles(ctx, *page)
	if err != nil {
		return err
	}
	return printJSON(files)
}

//////////////////////////////////////////////////////////////////
////// MODELS
//////////////////////////////////////////////////////////////////

// history returns every stored result in date order
func history(db *store.Store, league string) ([]podds.MatchResult, error) {
	results, err := db.LoadResults(league)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no results stored in %s, run podds load first", db.Path())
	}
	return results, nil
}

func runRatings(args []string) error {
	fs, c := newFlagSet("ratings")
	top := fs.Int("top", 20, "number of teams to print")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Store.DbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := history(db, "")
	if err != nil {
		return err
	}
	elo := podds.NewEloTracker(cfg.Elo)
	rated := make([]podds.RatedMatch, len(results))
	for i, r := range results {
		rated[i] = r.Rated()
	}
	if err := elo.BulkUpdate(rated); err != nil {
		return err
	}
	ratings := elo.Ratings()
	if err := db.SaveRatings(ratings); err != nil {
		return err
	}
	logger.Inform("Rated", len(ratings), "teams from", len(results), "results")

	teams := make([]string, 0, len(ratings))
	for team := range ratings {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool {
		if ratings[teams[i]] != ratings[teams[j]] {
			return ratings[teams[i]] > ratings[teams[j]]
		}
		return teams[i] < teams[j]
	})
	for i, team := range teams {
		if i >= *top {
			break
		}
		fmt.Printf("%3d %-24s %6.0f\n", i+1, team, ratings[team])
	}
	return nil
}

// models fits the score model on stored history and restores the saved ratings
func models(cfg *podds.Config, db *store.Store) (*podds.PoissonModel, *podds.EloTracker, error) {
	results, err := history(db, "")
	if err != nil {
		return nil, nil, err
	}
	poisson := podds.NewPoissonModel(cfg.Poisson)
	if err := poisson.Fit(results); err != nil {
		return nil, nil, err
	}
	ratings, err := db.LoadRatings()
	if err != nil {
		return nil, nil, err
	}
	elo := podds.NewEloTracker(cfg.Elo)
	if len(ratings) == 0 {
		logger.Warn("No stored ratings, run podds ratings to build them")
	}
	elo.Restore(ratings)
	return poisson, elo, nil
}

func runPredict(args []string) error {
	fs, c := newFlagSet("predict")
	home := fs.String("home", "", "home team")
	away := fs.String("away", "", "away team")
	league := fs.String("league", "", "league code for the goals average")
	fs.Parse(args)
	if *home == "" || *away == "" {
		return fmt.Errorf("predict requires -home and -away")
	}

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Store.DbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	poisson, elo, err := models(cfg, db)
	if err != nil {
		return err
	}
	teams := poisson.Teams()
	for _, team := range []*string{home, away} {
		if match, ok := datasource.MatchTeamName(*team, teams); ok {
			*team = match
		} else {
			logger.Warn("Unknown team, using league averages for", *team)
		}
	}
	results, err := db.LoadResults("")
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"poisson":    poisson.PredictLeagueMatch(*home, *away, *league),
		"elo":        elo.PredictMatch(*home, *away),
		"headToHead": podds.HeadToHead(*home, *away, results),
		"form": map[string]string{
			*home: podds.TeamForm(*home, results, 5),
			*away: podds.TeamForm(*away, results, 5),
		},
	})
}

//////////////////////////////////////////////////////////////////
////// SCAN
//////////////////////////////////////////////////////////////////

func runScan(ctx context.Context, args []string) error {
	fs, c := newFlagSet("scan")
	limit := fs.Int("limit", 0, "maximum fixtures to price, overrides the configured limit")
	fixturesFile := fs.String("fixtures", "", "local fixtures CSV, defaults to the football-data fixtures file")
	metricsFile := fs.String("metrics-file", "", "write scan metrics in the Prometheus text format to this file")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	if *limit > 0 {
		cfg.Scanner.Limit = *limit
	}
	db, err := store.Open(cfg.Store.DbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	poisson, elo, err := models(cfg, db)
	if err != nil {
		return err
	}
	fixtures, err := loadFixtures(ctx, cfg, *fixturesFile)
	if err != nil {
		return err
	}
	fixtures = datasource.CanonicaliseFixtures(fixtures, poisson.Teams())
	sort.SliceStable(fixtures, func(i, j int) bool {
		return fixtures[i].MatchDate.Before(fixtures[j].MatchDate)
	})

	scanner := podds.NewMarketScanner(poisson, elo, podds.NewValueBetAnalyzer(cfg.Value), cfg.Scanner)
	report, err := scanner.Scan(ctx, fixtures)
	if err != nil {
		return err
	}
	if err := db.SaveFindings(report.RunID, report.Findings); err != nil {
		return err
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, prometheus.DefaultGatherer); err != nil {
			logger.Warn("Failed to write metrics", *metricsFile, err)
		}
	}

	logger.Inform("Scan", report.RunID, "priced", report.Fixtures-report.Skipped, "fixtures in", report.Duration.Round(time.Millisecond))
	for _, f := range report.Findings {
		fmt.Printf("%-16s %-20s v %-20s %-10s %-10s odds %5.2f  model %.3f  EV %+.3f\n",
			f.MatchDate.Format("2006-01-02 15:04"), f.HomeTeam, f.AwayTeam, f.Market, f.Selection,
			f.Odds, f.ModelProbability, f.ExpectedValue)
	}
	if len(report.Findings) == 0 {
		fmt.Println("No value bets found")
	}
	return nil
}

func loadFixtures(ctx context.Context, cfg *podds.Config, path string) ([]podds.Fixture, error) {
	if path == "" {
		return datasource.New(cfg.Datasource, nil).LoadFixtures(ctx)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, fixtures, err := datasource.ParseResultsCSV(f, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fixtures, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
