package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/storage/jsonl"
)

type startRequest struct {
	Headless *bool `json:"headless"`
}

// scrapeOptions resolves the per-run options from an optional JSON body,
// falling back to the configured defaults. Start and retry share it.
func (s *Server) scrapeOptions(r *http.Request) (crawl.ScrapeOptions, error) {
	opts := crawl.ScrapeOptions{Headless: s.cfg.Crawler.Headless}
	if r.Body != nil && r.ContentLength != 0 {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return opts, err
		}
		if req.Headless != nil {
			opts.Headless = *req.Headless
		}
	}
	return opts, nil
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	opts, err := s.scrapeOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	jobID, err := s.ctrl.Start(crawl.ModeFull, opts)
	if err != nil {
		if errors.Is(err, crawl.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": "started",
	})
}

func (s *Server) stopCrawl(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		if errors.Is(err, crawl.ErrNotRunning) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) retryCrawl(w http.ResponseWriter, r *http.Request) {
	opts, err := s.scrapeOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	jobID, err := s.ctrl.Start(crawl.ModeRetryFailed, opts)
	if err != nil {
		switch {
		case errors.Is(err, crawl.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, crawl.ErrNoFailedClubs):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": "started",
	})
}

type statusResponse struct {
	crawl.Snapshot
	LatestFile string `json:"latest_file,omitempty"`
	FileAgeSec int64  `json:"file_age_seconds,omitempty"`
	Stale      bool   `json:"stale"`
}

func (s *Server) crawlStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Snapshot: s.ctrl.Snapshot()}
	if info, ok, err := jsonl.LatestFile(s.cfg.Output.Dir); err == nil && ok {
		resp.LatestFile = info.Name
		age := s.clock.Now().Sub(info.ModTime)
		resp.FileAgeSec = int64(age.Seconds())
		if s.cfg.Output.StaleDays > 0 {
			resp.Stale = age > time.Duration(s.cfg.Output.StaleDays)*24*time.Hour
		}
	} else {
		resp.Stale = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listClasses(w http.ResponseWriter, r *http.Request) {
	info, ok, err := jsonl.LatestFile(s.cfg.Output.Dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"classes": []crawl.ScheduleRecord{},
			"message": "לא נמצאו נתוני שיעורים, יש להריץ איסוף נתונים",
		})
		return
	}

	filter := jsonl.Filter{
		Club: r.URL.Query().Get("club"),
		Day:  r.URL.Query().Get("day"),
	}
	records, err := jsonl.ReadRecords(info.Path, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"classes": records,
		"file":    info.Name,
		"count":   len(records),
	})
}

func (s *Server) listClassNames(w http.ResponseWriter, _ *http.Request) {
	s.listDistinct(w, func(rec crawl.ScheduleRecord) string { return rec.Name })
}

func (s *Server) listInstructors(w http.ResponseWriter, _ *http.Request) {
	s.listDistinct(w, func(rec crawl.ScheduleRecord) string { return rec.Instructor })
}

// listDistinct answers with the sorted unique values of one record field
// from the latest run file, or an empty list when there is no data yet.
func (s *Server) listDistinct(w http.ResponseWriter, pick func(crawl.ScheduleRecord) string) {
	info, ok, err := jsonl.LatestFile(s.cfg.Output.Dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	records, err := jsonl.ReadRecords(info.Path, jsonl.Filter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	seen := make(map[string]struct{}, len(records))
	values := make([]string, 0, len(seen))
	for _, rec := range records {
		v := pick(rec)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Strings(values)
	writeJSON(w, http.StatusOK, values)
}
