package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/storage"
)

const (
	scheduleContainer = "div.schedule-wrap"
	dayColumnJS       = `(() => {
		const cols = Array.from(document.querySelectorAll("div.schedule-wrap div.col-sm.text-center"));
		return cols.map(col => {
			const header = col.querySelector("div.day.sticky");
			const classes = Array.from(col.querySelectorAll("div.time.box-day")).map(item => {
				const pick = sel => {
					const el = item.querySelector(sel);
					return el ? el.textContent : "";
				};
				return {
					time: pick("div.title"),
					name: pick("div.sub-title"),
					instructor: pick("div.trainer-name"),
					location: pick("div.location"),
				};
			});
			return {header: header ? header.textContent : "", classes};
		});
	})()`
)

type dayColumn struct {
	Header  string      `json:"header"`
	Classes []classCell `json:"classes"`
}

type classCell struct {
	Time       string `json:"time"`
	Name       string `json:"name"`
	Instructor string `json:"instructor"`
	Location   string `json:"location"`
}

// ScheduleConfig controls the headless schedule scraper.
type ScheduleConfig struct {
	NavTimeout time.Duration
	UserAgent  string
	// Screenshots receives a page capture when a club fails; nil disables it.
	Screenshots storage.BlobStore
}

// ScheduleScraper extracts class schedules from a club page rendered with
// headless Chrome. It implements crawl.Scraper.
type ScheduleScraper struct {
	cfg    ScheduleConfig
	clock  crawl.Clock
	logger *zap.Logger
}

// NewScheduleScraper builds a scraper.
func NewScheduleScraper(cfg ScheduleConfig, clock crawl.Clock, logger *zap.Logger) *ScheduleScraper {
	if cfg.NavTimeout == 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleScraper{cfg: cfg, clock: clock, logger: logger}
}

// ScrapeClub renders the club page and extracts every day column from the
// schedule board. The browser is started per call so the headless flag can
// change between runs. A browser that fails to start is critical: no later
// club can succeed without one.
func (s *ScheduleScraper) ScrapeClub(ctx context.Context, club crawl.Club, opts crawl.ScrapeOptions, onDay func(day string), onWarn func(message string)) (crawl.ClubResult, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if s.cfg.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx); err != nil {
		return crawl.ClubResult{}, &crawl.CriticalError{Reason: "browser failed to start", Err: err}
	}

	taskCtx, cancelTask := context.WithTimeout(browserCtx, s.cfg.NavTimeout)
	defer cancelTask()

	var columns []dayColumn
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(club.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.WaitVisible(scheduleContainer, chromedp.ByQuery),
		chromedp.Evaluate(dayColumnJS, &columns),
	}
	if s.cfg.UserAgent != "" {
		tasks = append(chromedp.Tasks{emulation.SetUserAgentOverride(s.cfg.UserAgent)}, tasks...)
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		s.captureFailure(ctx, browserCtx, club)
		return crawl.ClubResult{}, fmt.Errorf("render schedule for %s: %w", club.Name, err)
	}
	if len(columns) == 0 {
		s.captureFailure(ctx, browserCtx, club)
		return crawl.ClubResult{}, fmt.Errorf("no day columns found for %s", club.Name)
	}

	result := crawl.ClubResult{}
	now := s.clock.Now()
	for _, col := range columns {
		day, records, skipped := dayRecords(club.Name, col, now)
		if onDay != nil {
			onDay(day)
		}
		result.DaysProcessed++
		result.Records = append(result.Records, records...)
		if skipped > 0 && onWarn != nil {
			onWarn(fmt.Sprintf("דולגו %d שיעורים ללא שם ביום %s בסניף %s", skipped, day, club.Name))
		}
	}
	s.logger.Info("scraped club schedule",
		zap.String("club", club.Name),
		zap.Int("days", result.DaysProcessed),
		zap.Int("records", len(result.Records)))
	return result, nil
}

// dayRecords turns one extracted day column into schedule records. Cells
// with no class name carry no usable data and are counted as skipped rather
// than emitted.
func dayRecords(clubName string, col dayColumn, now time.Time) (day string, records []crawl.ScheduleRecord, skipped int) {
	hebrewDay, isoDate := ParseDayHeader(col.Header)
	day = isoDate
	if day == "" {
		day = hebrewDay
	}

	for _, cell := range col.Classes {
		name := CleanText(cell.Name)
		if name == "" {
			skipped++
			continue
		}
		timePart, duration := SplitTimeDuration(cell.Time)
		records = append(records, crawl.ScheduleRecord{
			Club:       clubName,
			Day:        day,
			DayName:    hebrewDay,
			Time:       timePart,
			Name:       name,
			Instructor: StripInstructorPrefix(cell.Instructor),
			Duration:   duration,
			Location:   CleanText(cell.Location),
			Timestamp:  now,
		})
	}
	return day, records, skipped
}

// captureFailure stores a screenshot of the failed page for diagnosis. Errors
// here are logged and swallowed: the scrape failure is the one that matters.
func (s *ScheduleScraper) captureFailure(ctx context.Context, browserCtx context.Context, club crawl.Club) {
	if s.cfg.Screenshots == nil {
		return
	}
	shotCtx, cancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		s.logger.Warn("failed to capture failure screenshot", zap.String("club", club.Name), zap.Error(err))
		return
	}
	path := fmt.Sprintf("failed_%s_%s.png", club.Name, s.clock.Now().Format("20060102_150405"))
	uri, err := s.cfg.Screenshots.PutObject(ctx, path, "image/png", buf)
	if err != nil {
		s.logger.Warn("failed to store failure screenshot", zap.String("club", club.Name), zap.Error(err))
		return
	}
	s.logger.Info("stored failure screenshot", zap.String("club", club.Name), zap.String("uri", uri))
}
