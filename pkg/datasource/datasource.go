package datasource

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/transport"
	"github.com/richard-senior/podds/pkg/util"
)

// Client reads football-data.co.uk season files, caching them on disk
type Client struct {
	fetcher  transport.Fetcher
	baseURL  string
	cacheDir string
}

// New builds a client from config. A nil fetcher uses the default HTTP client.
func New(cfg podds.DatasourceConfig, fetcher transport.Fetcher) *Client {
	if fetcher == nil {
		fetcher = transport.NewClient(0)
	}
	return &Client{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cacheDir: cfg.CacheDir,
	}
}

// SeasonURL is where a league's season file lives
func (c *Client) SeasonURL(league, season string) (string, error) {
	code, err := SeasonCode(season)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/mmz4281/%s/%s.csv", c.baseURL, code, league), nil
}

func (c *Client) cacheFile(league, season string) string {
	if c.cacheDir == "" {
		return ""
	}
	code, _ := SeasonCode(season)
	return filepath.Join(c.cacheDir, fmt.Sprintf("football-data-%s-%s.csv", league, code))
}

// FetchSeason returns the raw CSV for a league and season. Past seasons are served
// from the cache when present; the current season is always refetched.
func (c *Client) FetchSeason(ctx context.Context, league, season string) ([]byte, error) {
	if league == "" {
		return nil, fmt.Errorf("must supply a league code")
	}
	u, err := c.SeasonURL(league, season)
	if err != nil {
		return nil, err
	}

	cache := c.cacheFile(league, season)
	if cache != "" && !IsCurrentSeason(season) {
		if data, err := os.ReadFile(cache); err == nil {
			logger.Debug("Returning data from cached file for", league, season)
			return data, nil
		}
	}

	logger.Info("Fetching data from football-data.co.uk for", league, season)
	data, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", league, season, err)
	}

	if cache != "" {
		if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
			logger.Warn("Failed to create cache directory", c.cacheDir, err)
		} else if err := os.WriteFile(cache, data, 0o644); err != nil {
			logger.Warn("Failed to write cache file", cache, err)
		}
	}
	return data, nil
}

// LoadSeason fetches and parses one league season
func (c *Client) LoadSeason(ctx context.Context, league, season string) ([]podds.MatchResult, []podds.Fixture, error) {
	data, err := c.FetchSeason(ctx, league, season)
	if err != nil {
		return nil, nil, err
	}
	results, fixtures, err := ParseResultsCSV(bytes.NewReader(data), league)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", league, season, err)
	}
	logger.Info("Processed", len(results), "results from football-data.co.uk for", league, season)
	return results, fixtures, nil
}

// LoadFixtures fetches the upcoming fixtures file, which lists every covered league
func (c *Client) LoadFixtures(ctx context.Context) ([]podds.Fixture, error) {
	data, err := c.fetcher.Get(ctx, c.baseURL+"/fixtures.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fixtures: %w", err)
	}
	_, fixtures, err := ParseResultsCSV(bytes.NewReader(data), "")
	return fixtures, err
}

//////////////////////////////////////////////////////////////////
////// SEASON FILE DISCOVERY
//////////////////////////////////////////////////////////////////

// SeasonFile is a downloadable league season
type SeasonFile struct {
	League string `json:"league"`
	Season string `json:"season"`
	URL    string `json:"url"`
}

var seasonFilePattern = regexp.MustCompile(`mmz4281/(\d{4})/([A-Za-z0-9]+)\.csv$`)

// DiscoverSeasonFiles lists the season CSV links on a league page such as "englandm.php"
func (c *Client) DiscoverSeasonFiles(ctx context.Context, page string) ([]SeasonFile, error) {
	pageURL := page
	if !strings.HasPrefix(page, "http://") && !strings.HasPrefix(page, "https://") {
		pageURL = c.baseURL + "/" + strings.TrimLeft(page, "/")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %s: %w", pageURL, err)
	}

	html, err := c.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := map[string]bool{}
	var files []SeasonFile
	doc.Find(`a[href$=".csv"]`).Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		m := seasonFilePattern.FindStringSubmatch(path.Clean(abs.Path))
		if m == nil || seen[abs.String()] {
			return
		}
		season, err := ParseSeason(m[1])
		if err != nil {
			return
		}
		seen[abs.String()] = true
		files = append(files, SeasonFile{League: m[2], Season: season, URL: abs.String()})
	})
	logger.Debug("Discovered", len(files), "season files on", pageURL)
	return files, nil
}

//////////////////////////////////////////////////////////////////
////// TEAM NAMES
//////////////////////////////////////////////////////////////////

// TeamMatchThreshold is the minimum fuzzy score for two names to be the same team
const TeamMatchThreshold = 0.55

// MatchTeamName maps a name from another source onto the spelling used in known
func MatchTeamName(name string, known []string) (string, bool) {
	norm := util.NormaliseName(name)
	for _, k := range known {
		if util.NormaliseName(k) == norm {
			return k, true
		}
	}
	match, score, ok := util.BestMatch(name, known, TeamMatchThreshold)
	if ok {
		logger.Debug("Matched team", name, "to", match, score)
	}
	return match, ok
}

// CanonicaliseFixtures rewrites fixture team names onto the spellings in known,
// leaving names that do not match anything untouched
func CanonicaliseFixtures(fixtures []podds.Fixture, known []string) []podds.Fixture {
	out := make([]podds.Fixture, len(fixtures))
	for i, fx := range fixtures {
		if m, ok := MatchTeamName(fx.HomeTeam, known); ok {
			fx.HomeTeam = m
		}
		if m, ok := MatchTeamName(fx.AwayTeam, known); ok {
			fx.AwayTeam = m
		}
		out[i] = fx
	}
	return out
}
