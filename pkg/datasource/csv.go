package datasource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
)

// AverageBookmaker labels quotes derived from market averages
const AverageBookmaker = "average"

// bookmakers whose individual 1X2 columns are averaged when no market average is present
var bookies = []string{"B365", "BF", "BS", "BW", "GB", "IW", "LB", "PS", "SO", "SB", "SJ", "SY", "VC", "WH"}

var london *time.Location

func init() {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	london = loc
}

// ParseResultsCSV reads a football-data.co.uk results or fixtures file. Rows with a
// full time score become results; rows without one become fixtures carrying the
// 1X2 and over/under 2.5 prices. When league is empty the Div column is used.
func ParseResultsCSV(r io.Reader, league string) ([]podds.MatchResult, []podds.Fixture, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
		if headers[0] == "" || strings.Contains(headers[0], "Div") {
			headers[0] = "Div"
		}
	}

	var results []podds.MatchResult
	var fixtures []podds.Fixture
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse CSV at row %d: %w", line, err)
		}

		row := make(map[string]string, len(headers))
		for j, value := range record {
			if j < len(headers) {
				row[headers[j]] = strings.TrimSpace(value)
			}
		}
		if row["HomeTeam"] == "" || row["AwayTeam"] == "" {
			continue
		}
		div := league
		if div == "" {
			div = row["Div"]
		}

		kickoff, err := parseDateTime(row)
		if err != nil {
			logger.Warn("Skipping row", line, err)
			continue
		}
		id := matchID(div, kickoff, row["HomeTeam"], row["AwayTeam"])

		hg, errH := strconv.Atoi(row["FTHG"])
		ag, errA := strconv.Atoi(row["FTAG"])
		if errH == nil && errA == nil {
			m, err := podds.NewMatchResult(row["HomeTeam"], row["AwayTeam"], hg, ag)
			if err != nil {
				logger.Warn("Skipping row", line, err)
				continue
			}
			m.ID, m.League, m.Date = id, div, kickoff
			results = append(results, m)
			continue
		}

		fixtures = append(fixtures, podds.Fixture{
			ID:        id,
			League:    div,
			HomeTeam:  row["HomeTeam"],
			AwayTeam:  row["AwayTeam"],
			MatchDate: kickoff,
			Odds:      rowQuotes(row),
		})
	}

	logger.Debug("Parsed", len(results), "results and", len(fixtures), "fixtures")
	return results, fixtures, nil
}

func matchID(league string, kickoff time.Time, home, away string) string {
	return fmt.Sprintf("%s_%s_%s_%s", league, kickoff.Format("20060102"), home, away)
}

// parseDateTime reads Date and Time as London local time, defaulting to 15:00
func parseDateTime(row map[string]string) (time.Time, error) {
	date := strings.TrimSpace(row["Date"])
	if date == "" {
		return time.Time{}, fmt.Errorf("no Date field found")
	}
	clock := strings.TrimSpace(row["Time"])
	if clock == "" {
		clock = "15:00"
	}
	text := date + " " + clock

	var parseErr error
	for _, layout := range []string{"02/01/2006 15:04", "02/01/06 15:04"} {
		t, err := time.ParseInLocation(layout, text, london)
		if err == nil {
			return t.UTC(), nil
		}
		parseErr = err
	}
	return time.Time{}, fmt.Errorf("could not parse date from %s: %w", text, parseErr)
}

// rowQuotes collects the prices a row offers as odds quotes
func rowQuotes(row map[string]string) []podds.OddsQuote {
	var quotes []podds.OddsQuote
	add := func(market, selection string, odds float64) {
		q, err := podds.NewOddsQuote(market, selection, odds)
		if err != nil {
			return
		}
		q.Bookmaker = AverageBookmaker
		quotes = append(quotes, q)
	}

	if h, d, a, ok := AverageOdds(row); ok {
		add(podds.Market1X2, podds.SelectionHomeWin, h)
		add(podds.Market1X2, podds.SelectionDraw, d)
		add(podds.Market1X2, podds.SelectionAwayWin, a)
	}
	if over, under, ok := OverUnderOdds(row); ok {
		add(podds.MarketOverUnder, podds.OverUnderKey("over", 2.5), over)
		add(podds.MarketOverUnder, podds.OverUnderKey("under", 2.5), under)
	}
	return quotes
}

// AverageOdds prefers the closing market average, then the pre-match average,
// then the mean of whichever bookmaker columns are filled
func AverageOdds(row map[string]string) (float64, float64, float64, bool) {
	for _, prefix := range []string{"AvgC", "Avg", "BbAv"} {
		if h, d, a, ok := triple(row, prefix+"H", prefix+"D", prefix+"A"); ok {
			return h, d, a, true
		}
	}

	for _, suffix := range []string{"C", ""} {
		var home, draw, away float64
		count := 0
		for _, bookie := range bookies {
			if h, d, a, ok := triple(row, bookie+suffix+"H", bookie+suffix+"D", bookie+suffix+"A"); ok {
				home += h
				draw += d
				away += a
				count++
			}
		}
		if count > 0 {
			n := float64(count)
			return round2(home / n), round2(draw / n), round2(away / n), true
		}
	}
	return 0, 0, 0, false
}

// OverUnderOdds returns the over and under 2.5 goals prices
func OverUnderOdds(row map[string]string) (float64, float64, bool) {
	for _, prefix := range []string{"AvgC", "Avg", "BbAv", "B365C", "B365", "P"} {
		over, okO := field(row, prefix+">2.5")
		under, okU := field(row, prefix+"<2.5")
		if okO && okU {
			return over, under, true
		}
	}
	return 0, 0, false
}

func triple(row map[string]string, a, b, c string) (float64, float64, float64, bool) {
	x, okX := field(row, a)
	y, okY := field(row, b)
	z, okZ := field(row, c)
	return x, y, z, okX && okY && okZ
}

// field parses a price, treating blanks and the -1 placeholder as missing
func field(row map[string]string, name string) (float64, bool) {
	if FieldIsBlank(name, row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(row[name], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// FieldIsBlank checks if a field in the row is blank, missing or -1
func FieldIsBlank(name string, row map[string]string) bool {
	value, ok := row[name]
	if !ok || value == "" {
		return true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && f == -1 {
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
