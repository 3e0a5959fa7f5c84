package datasource

import (
	"fmt"
	"strconv"
	"time"
)

// ParseSeason normalises "2024/2025", "2024-2025", "2024/25" and "2425" to "2024/2025"
func ParseSeason(season string) (string, error) {
	var first, second string
	switch {
	case len(season) == 9 && (season[4] == '/' || season[4] == '-'):
		first, second = season[:4], season[5:]
	case len(season) == 7 && (season[4] == '/' || season[4] == '-'):
		first, second = season[:4], season[:2]+season[5:]
	case len(season) == 4:
		first, second = "20"+season[:2], "20"+season[2:]
	default:
		return "", fmt.Errorf("invalid season format: %s", season)
	}
	a, errA := strconv.Atoi(first)
	b, errB := strconv.Atoi(second)
	if errA != nil || errB != nil || b != a+1 {
		return "", fmt.Errorf("invalid season format: %s", season)
	}
	return first + "/" + second, nil
}

// SeasonCode is the football-data directory name for a season, "2024/2025" -> "2425"
func SeasonCode(season string) (string, error) {
	s, err := ParseSeason(season)
	if err != nil {
		return "", err
	}
	return s[2:4] + s[7:9], nil
}

// SeasonFor returns the season in progress at t. Seasons roll over on 1 July.
func SeasonFor(t time.Time) string {
	year := t.Year()
	if t.Month() < time.July {
		year--
	}
	return fmt.Sprintf("%d/%d", year, year+1)
}

// IsCurrentSeason reports whether season is the one in progress now
func IsCurrentSeason(season string) bool {
	s, err := ParseSeason(season)
	if err != nil {
		return false
	}
	return s == SeasonFor(time.Now())
}
