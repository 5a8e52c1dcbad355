// Package scraper extracts Holmes Place club lists and class schedules from
// the live site, using colly for static pages and headless Chrome for the
// JavaScript-rendered schedule board.
package scraper

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

var hebrewDays = []struct {
	Hebrew  string
	English string
}{
	{"ראשון", "Sunday"},
	{"שני", "Monday"},
	{"שלישי", "Tuesday"},
	{"רביעי", "Wednesday"},
	{"חמישי", "Thursday"},
	{"שישי", "Friday"},
	{"שבת", "Saturday"},
}

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	instructorRe = regexp.MustCompile(`^מדרי(?:ך|כה?)\s*:?\s*`)
	dateRe       = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)
)

// CleanText collapses whitespace and strips non-printable characters.
func CleanText(text string) string {
	cleaned := spaceRe.ReplaceAllString(text, " ")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, cleaned)
	return strings.TrimSpace(cleaned)
}

// StripInstructorPrefix removes leading "מדריך:" / "מדריכה:" labels.
func StripInstructorPrefix(text string) string {
	return strings.TrimSpace(instructorRe.ReplaceAllString(strings.TrimSpace(text), ""))
}

// ParseDayHeader splits a schedule column header like "שלישי 03/03/2026"
// into its Hebrew day name and an ISO date. Either part may be missing: the
// day name falls back to "לא ידוע" and the date to the empty string.
func ParseDayHeader(header string) (hebrewDay, isoDate string) {
	header = CleanText(header)

	hebrewDay = "לא ידוע"
	for _, d := range hebrewDays {
		if strings.Contains(header, d.Hebrew) {
			hebrewDay = d.Hebrew
			break
		}
	}

	if m := dateRe.FindStringSubmatch(header); m != nil {
		if t, err := time.Parse("02/01/2006", m[0]); err == nil {
			isoDate = t.Format("2006-01-02")
		}
	}
	return hebrewDay, isoDate
}

// EnglishDay maps a Hebrew day name to its English equivalent, or "unknown".
func EnglishDay(hebrewDay string) string {
	for _, d := range hebrewDays {
		if d.Hebrew == hebrewDay {
			return d.English
		}
	}
	return "unknown"
}

// SplitTimeDuration separates a schedule cell like "19:30 | 45 דק'" into the
// start time and the duration suffix. Cells without a separator are returned
// whole as the time.
func SplitTimeDuration(text string) (timePart, duration string) {
	text = CleanText(text)
	if idx := strings.IndexAny(text, "|"); idx >= 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+1:])
	}
	return text, ""
}

var regionKeywords = []struct {
	Region   string
	Keywords []string
}{
	{"ירושלים והסביבה", []string{"ירושלים", "מבשרת", "מודיעין"}},
	{"מרכז", []string{"תל אביב", "רמת גן", "בני ברק", "גבעתיים", "דיזנגוף", "עזריאלי", "פתח תקווה", "ראש העין", "גבעת שמואל", "קריית אונו"}},
	{"צפון", []string{"חיפה", "קריות", "קריון", "גרנד קניון", "חדרה", "קיסריה", "נהריה"}},
	{"דרום", []string{"באר שבע", "אשדוד", "אילת"}},
	{"שרון", []string{"נתניה", "הרצליה", "רעננה", "כפר סבא", "שבעת הכוכבים", "הוד השרון"}},
}

// DetermineRegion classifies a club into a geographic region by its name.
func DetermineRegion(clubName string) string {
	for _, rk := range regionKeywords {
		for _, kw := range rk.Keywords {
			if strings.Contains(clubName, kw) {
				return rk.Region
			}
		}
	}
	return "אחר"
}
