package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/crawl"
)

// DiscoveryConfig controls footer club discovery.
type DiscoveryConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Fallback is used when the footer yields no clubs.
	Fallback []crawl.Club
}

// FooterSource discovers the club list from the site footer links using a
// colly collector. Discovery failure with no fallback is critical: without a
// club list the whole run cannot proceed.
type FooterSource struct {
	cfg    DiscoveryConfig
	logger *zap.Logger
}

// NewFooterSource builds a footer-based club source.
func NewFooterSource(cfg DiscoveryConfig, logger *zap.Logger) *FooterSource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FooterSource{cfg: cfg, logger: logger}
}

// Clubs fetches the home page and collects club links from the footer.
func (s *FooterSource) Clubs(ctx context.Context) ([]crawl.Club, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(s.cfg.Timeout)
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}

	seen := map[string]crawl.Club{}
	for _, selector := range []string{"footer a[href]", "a[href*='club-page']"} {
		collector.OnHTML(selector, func(e *colly.HTMLElement) {
			href := e.Attr("href")
			name := CleanText(e.Text)
			if name == "" || !strings.Contains(strings.ToLower(href), "club") {
				return
			}
			absolute := s.absoluteURL(href)
			if absolute == "" {
				return
			}
			if _, ok := seen[name]; !ok {
				seen[name] = crawl.Club{Name: name, URL: absolute, Region: DetermineRegion(name)}
			}
		})
	}

	var fetchErr error
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		err := collector.Visit(s.cfg.BaseURL)
		collector.Wait()
		done <- err
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("club discovery canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			fetchErr = err
		}
	}

	if fetchErr != nil && len(seen) == 0 {
		if len(s.cfg.Fallback) > 0 {
			s.logger.Warn("club discovery failed, using configured club list",
				zap.Error(fetchErr), zap.Int("clubs", len(s.cfg.Fallback)))
			return append([]crawl.Club(nil), s.cfg.Fallback...), nil
		}
		return nil, &crawl.CriticalError{Reason: "club discovery failed", Err: fetchErr}
	}
	if len(seen) == 0 {
		if len(s.cfg.Fallback) > 0 {
			s.logger.Warn("no club links found in footer, using configured club list",
				zap.Int("clubs", len(s.cfg.Fallback)))
			return append([]crawl.Club(nil), s.cfg.Fallback...), nil
		}
		return nil, &crawl.CriticalError{Reason: "no club links found in footer"}
	}

	clubs := make([]crawl.Club, 0, len(seen))
	for _, club := range seen {
		clubs = append(clubs, club)
	}
	sort.Slice(clubs, func(i, j int) bool { return clubs[i].Name < clubs[j].Name })
	s.logger.Info("discovered clubs", zap.Int("count", len(clubs)))
	return clubs, nil
}

func (s *FooterSource) absoluteURL(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

// StaticSource serves a fixed club list, used when discovery is disabled.
type StaticSource struct {
	clubs []crawl.Club
}

// NewStaticSource copies the given club list.
func NewStaticSource(clubs []crawl.Club) *StaticSource {
	return &StaticSource{clubs: append([]crawl.Club(nil), clubs...)}
}

// Clubs returns the configured list, filling in regions from club names.
func (s *StaticSource) Clubs(context.Context) ([]crawl.Club, error) {
	if len(s.clubs) == 0 {
		return nil, fmt.Errorf("no clubs configured")
	}
	out := make([]crawl.Club, len(s.clubs))
	for i, club := range s.clubs {
		if club.Region == "" {
			club.Region = DetermineRegion(club.Name)
		}
		out[i] = club
	}
	return out, nil
}
