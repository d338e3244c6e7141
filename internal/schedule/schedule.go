// Package schedule loads the day's trade intents from a CSV file.
package schedule

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

// intentRow is one CSV line. Times are local HH:MM; a weekday of "*"
// or empty applies every day.
type intentRow struct {
	Weekday      string  `csv:"weekday"`
	Ticker       string  `csv:"ticker"`
	Direction    string  `csv:"direction"`
	Entry        string  `csv:"entry"`
	Exit         string  `csv:"exit"`
	Amount       float64 `csv:"amount"`
	StopDistance float64 `csv:"stop_distance"`
	Notify       bool    `csv:"notify"`
	Memo         string  `csv:"memo"`
}

// LoadForDay reads the schedule and returns the intents that apply to
// the given day, anchored to that day's local clock and sorted by
// entry time. A day with no applicable rows is an error: running with
// an empty schedule is almost always a misconfiguration.
func LoadForDay(path string, day time.Time) ([]models.TradeIntent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schedule: %w", err)
	}
	defer f.Close()

	var rows []intentRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing schedule %s: %w", path, err)
	}

	var intents []models.TradeIntent
	for i, row := range rows {
		if !appliesTo(row.Weekday, day.Weekday()) {
			continue
		}

		intent, err := rowToIntent(row, day)
		if err != nil {
			return nil, fmt.Errorf("schedule row %d: %w", i+2, err)
		}
		intents = append(intents, intent)
	}
	if len(intents) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrScheduleEmpty, "no intents for %s in %s", day.Weekday(), path)
	}

	sort.Slice(intents, func(a, b int) bool {
		return intents[a].EntryTime.Before(intents[b].EntryTime)
	})
	return intents, nil
}

func appliesTo(field string, weekday time.Weekday) bool {
	field = strings.TrimSpace(field)
	if field == "" || field == "*" {
		return true
	}
	want := strings.ToLower(weekday.String())
	for _, part := range strings.Split(field, ";") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if strings.HasPrefix(want, part) {
			return true
		}
	}
	return false
}

func rowToIntent(row intentRow, day time.Time) (models.TradeIntent, error) {
	direction, ok := models.ParseDirection(row.Direction)
	if !ok {
		return models.TradeIntent{}, fmt.Errorf("invalid direction %q", row.Direction)
	}

	entry, err := atTimeOfDay(day, row.Entry)
	if err != nil {
		return models.TradeIntent{}, fmt.Errorf("invalid entry time %q: %w", row.Entry, err)
	}
	exit, err := atTimeOfDay(day, row.Exit)
	if err != nil {
		return models.TradeIntent{}, fmt.Errorf("invalid exit time %q: %w", row.Exit, err)
	}
	// An exit clocked before the entry means the window crosses
	// midnight.
	if !exit.After(entry) {
		exit = exit.Add(24 * time.Hour)
	}

	intent := models.TradeIntent{
		Ticker:       strings.ToUpper(strings.TrimSpace(row.Ticker)),
		Direction:    direction,
		EntryTime:    entry,
		ExitTime:     exit,
		Amount:       row.Amount,
		StopDistance: row.StopDistance,
		Notify:       row.Notify,
		Memo:         strings.TrimSpace(row.Memo),
	}
	if err := intent.Validate(); err != nil {
		return models.TradeIntent{}, err
	}
	return intent, nil
}

func atTimeOfDay(day time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}
