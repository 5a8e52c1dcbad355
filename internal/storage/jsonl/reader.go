package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/talbz/holmes-ma/internal/crawl"
)

// FileInfo describes the most recent run file in the output directory.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
}

// LatestFile returns the newest .jsonl run file, or ok=false when the
// directory holds none.
func LatestFile(dir string) (FileInfo, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, false, nil
		}
		return FileInfo{}, false, fmt.Errorf("read output directory: %w", err)
	}

	var latest FileInfo
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !found || info.ModTime().After(latest.ModTime) {
			latest = FileInfo{
				Name:    entry.Name(),
				Path:    filepath.Join(dir, entry.Name()),
				ModTime: info.ModTime(),
			}
			found = true
		}
	}
	return latest, found, nil
}

// Filter narrows ReadRecords output. Empty fields match everything.
type Filter struct {
	Club string
	Day  string
}

// ReadRecords loads records from a run file, skipping malformed lines, and
// applies the filter.
func ReadRecords(path string, filter Filter) ([]crawl.ScheduleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file: %w", err)
	}
	defer f.Close()

	var out []crawl.ScheduleRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec crawl.ScheduleRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if filter.Club != "" && rec.Club != filter.Club {
			continue
		}
		if filter.Day != "" && rec.Day != filter.Day {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan run file: %w", err)
	}
	return out, nil
}
