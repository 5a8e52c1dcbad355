package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayRecordsBuildsSchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	col := dayColumn{
		Header: "ראשון 01/03/2026",
		Classes: []classCell{
			{Time: "08:00 | 45 דק'", Name: " יוגה ", Instructor: "מדריכה: דנה", Location: "סטודיו 1"},
		},
	}

	day, records, skipped := dayRecords("הולמס פלייס דיזנגוף", col, now)
	require.Equal(t, "2026-03-01", day)
	require.Zero(t, skipped)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "הולמס פלייס דיזנגוף", rec.Club)
	require.Equal(t, "ראשון", rec.DayName)
	require.Equal(t, "08:00", rec.Time)
	require.Equal(t, "45 דק'", rec.Duration)
	require.Equal(t, "יוגה", rec.Name)
	require.Equal(t, "דנה", rec.Instructor)
	require.Equal(t, "סטודיו 1", rec.Location)
	require.Equal(t, now, rec.Timestamp)
}

func TestDayRecordsCountsNamelessCells(t *testing.T) {
	t.Parallel()

	col := dayColumn{
		Header: "שני 02/03/2026",
		Classes: []classCell{
			{Time: "08:00", Name: "פילאטיס"},
			{Time: "09:00", Name: "   "},
			{Time: "10:00", Name: ""},
		},
	}

	day, records, skipped := dayRecords("c1", col, time.Now())
	require.Equal(t, "2026-03-02", day)
	require.Equal(t, 2, skipped)
	require.Len(t, records, 1)
	require.Equal(t, "פילאטיס", records[0].Name)
}

func TestDayRecordsFallsBackToHebrewDay(t *testing.T) {
	t.Parallel()

	col := dayColumn{Header: "שבת", Classes: nil}
	day, records, skipped := dayRecords("c1", col, time.Now())
	require.Equal(t, "שבת", day)
	require.Empty(t, records)
	require.Zero(t, skipped)
}
