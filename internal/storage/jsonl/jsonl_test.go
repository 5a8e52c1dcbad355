package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talbz/holmes-ma/internal/crawl"
)

func sampleRecords(club string) []crawl.ScheduleRecord {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []crawl.ScheduleRecord{
		{Club: club, Day: "2026-03-01", DayName: "ראשון", Time: "08:00", Name: "יוגה", Instructor: "דנה", Timestamp: ts},
		{Club: club, Day: "2026-03-02", DayName: "שני", Time: "19:30", Name: "ספינינג", Duration: "45 דק'", Timestamp: ts},
	}
}

func TestWriterCreatesRunFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)

	startedAt := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)
	require.NoError(t, writer.BeginJob(uuid.New(), startedAt))
	require.Equal(t, filepath.Join(dir, "holmes_place_schedule_20260301_093015.jsonl"), writer.Path())

	// Zero-club runs still leave an (empty) file behind.
	info, err := os.Stat(writer.Path())
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestWriteAndReadBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, writer.BeginJob(uuid.New(), time.Now()))

	ctx := context.Background()
	require.NoError(t, writer.WriteClub(ctx, "תל אביב", sampleRecords("תל אביב")))
	require.NoError(t, writer.WriteClub(ctx, "חיפה", sampleRecords("חיפה")))

	records, err := ReadRecords(writer.Path(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 4)

	records, err = ReadRecords(writer.Path(), Filter{Club: "חיפה"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = ReadRecords(writer.Path(), Filter{Club: "חיפה", Day: "2026-03-01"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "יוגה", records[0].Name)
}

func TestWriteClubWithoutBeginJob(t *testing.T) {
	t.Parallel()

	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.Error(t, writer.WriteClub(context.Background(), "x", nil))
}

func TestReadRecordsSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.jsonl")
	content := `{"club":"a","day":"2026-03-01","time":"08:00","name":"יוגה","timestamp":"2026-03-01T10:00:00Z"}
not json at all
{"club":"b","day":"2026-03-01","time":"09:00","name":"פילאטיס","timestamp":"2026-03-01T10:00:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	records, err := ReadRecords(path, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestLatestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, ok, err := LatestFile(dir)
	require.NoError(t, err)
	require.False(t, ok)

	older := filepath.Join(dir, "holmes_place_schedule_20260228_090000.jsonl")
	newer := filepath.Join(dir, "holmes_place_schedule_20260301_090000.jsonl")
	require.NoError(t, os.WriteFile(older, nil, 0o640))
	require.NoError(t, os.WriteFile(newer, nil, 0o640))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	info, ok, err := LatestFile(dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, filepath.Base(newer), info.Name)
}

func TestLatestFileMissingDir(t *testing.T) {
	t.Parallel()

	_, ok, err := LatestFile(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.False(t, ok)
}
