package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

func writeSchedule(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intents.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// A Monday.
var monday = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func TestLoadForDayFiltersWeekday(t *testing.T) {
	path := writeSchedule(t, `weekday,ticker,direction,entry,exit,amount,stop_distance,notify,memo
mon,USDJPY,buy,09:00,11:30,10000,200,true,morning
tue,EURUSD,sell,14:00,16:00,0,150,false,
*,GBPJPY,sell,21:00,23:00,5000,300,true,evening
`)

	intents, err := LoadForDay(path, monday)
	require.NoError(t, err)
	require.Len(t, intents, 2)

	assert.Equal(t, "USDJPY", intents[0].Ticker)
	assert.Equal(t, models.DirectionBuy, intents[0].Direction)
	assert.Equal(t, 9, intents[0].EntryTime.Hour())
	assert.Equal(t, 11, intents[0].ExitTime.Hour())
	assert.Equal(t, 200.0, intents[0].StopDistance)
	assert.Equal(t, "morning", intents[0].Memo)

	assert.Equal(t, "GBPJPY", intents[1].Ticker)
	assert.Equal(t, models.DirectionSell, intents[1].Direction)
}

func TestLoadForDaySortsByEntryTime(t *testing.T) {
	path := writeSchedule(t, `weekday,ticker,direction,entry,exit,amount,stop_distance,notify,memo
*,GBPJPY,sell,21:00,23:00,5000,0,false,
*,USDJPY,buy,09:00,11:30,10000,0,false,
`)

	intents, err := LoadForDay(path, monday)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "USDJPY", intents[0].Ticker)
	assert.Equal(t, "GBPJPY", intents[1].Ticker)
}

func TestLoadForDayOvernightWindow(t *testing.T) {
	path := writeSchedule(t, `weekday,ticker,direction,entry,exit,amount,stop_distance,notify,memo
*,USDJPY,buy,23:00,01:00,10000,0,false,
`)

	intents, err := LoadForDay(path, monday)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.True(t, intents[0].ExitTime.After(intents[0].EntryTime))
	assert.Equal(t, monday.Day()+1, intents[0].ExitTime.Day())
}

func TestLoadForDayEmptyIsError(t *testing.T) {
	path := writeSchedule(t, `weekday,ticker,direction,entry,exit,amount,stop_distance,notify,memo
tue,USDJPY,buy,09:00,11:30,10000,0,false,
`)

	_, err := LoadForDay(path, monday)
	assert.ErrorIs(t, err, apperrors.ErrScheduleEmpty)
}

func TestLoadForDayRejectsBadDirection(t *testing.T) {
	path := writeSchedule(t, `weekday,ticker,direction,entry,exit,amount,stop_distance,notify,memo
*,USDJPY,hold,09:00,11:30,10000,0,false,
`)

	_, err := LoadForDay(path, monday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction")
}

func TestLoadForDayRejectsBadTime(t *testing.T) {
	path := writeSchedule(t, `weekday,ticker,direction,entry,exit,amount,stop_distance,notify,memo
*,USDJPY,buy,nine,11:30,10000,0,false,
`)

	_, err := LoadForDay(path, monday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry time")
}
