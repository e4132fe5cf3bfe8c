package roast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shrey150/imessage-bots/core/httpclient"
	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Position is one extracted work-experience row.
type Position struct {
	Title   string `json:"title"`
	Company string `json:"company"`
}

// Profile is what could be pulled off a public LinkedIn profile page.
// LinkedIn renders most content client-side, so fields are best-effort.
type Profile struct {
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Headline   string     `json:"headline"`
	Experience []Position `json:"experience"`
	Education  []string   `json:"education"`
}

// Summary renders the profile for the roast prompt.
func (p *Profile) Summary() string {
	var lines []string
	if p.Name != "" {
		lines = append(lines, "Name: "+p.Name)
	}
	if p.Headline != "" {
		lines = append(lines, "Headline: "+p.Headline)
	}
	if len(p.Experience) > 0 {
		lines = append(lines, "Work Experience:")
		for i, exp := range p.Experience {
			if i == 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("  %d. %s at %s", i+1, exp.Title, exp.Company))
		}
	}
	if len(p.Education) > 0 {
		lines = append(lines, "Education:")
		for i, edu := range p.Education {
			if i == 2 {
				break
			}
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, edu))
		}
	}
	if len(lines) <= 2 {
		lines = append(lines, "(Limited profile information available - LinkedIn probably blocked us 😅)")
	}
	return strings.Join(lines, "\n")
}

var (
	urlPattern      = regexp.MustCompile(`(?i)https?://[^\s<>"]+|www\.[^\s<>"]+|linkedin\.com[^\s<>"]*`)
	profilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(www\.)?linkedin\.com/in/[\w-]+/?$`),
		regexp.MustCompile(`(?i)^(www\.)?linkedin\.com/pub/[\w-]+/\d+/\d+/\d+/?$`),
	}
)

// ExtractProfileURL pulls the first LinkedIn profile URL out of a message,
// normalized to https. The second return is false when no valid profile
// link is present.
func ExtractProfileURL(text string) (string, bool) {
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		if !strings.Contains(strings.ToLower(candidate), "linkedin.com") {
			continue
		}
		normalized := NormalizeURL(candidate)
		if IsProfileURL(normalized) {
			return normalized, true
		}
	}
	return "", false
}

// NormalizeURL ensures the link carries a scheme so it can be fetched.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

// IsProfileURL reports whether the URL points at a LinkedIn profile rather
// than a company page, post, or anything else on the domain.
func IsProfileURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	full := u.Host + strings.TrimSuffix(u.Path, "/")
	for _, p := range profilePatterns {
		if p.MatchString(full) {
			return true
		}
	}
	return false
}

// Scraper fetches public LinkedIn profile pages with browser-looking
// headers. LinkedIn blocks most unauthenticated traffic, so callers must
// treat a nil error as best-effort data, not ground truth.
type Scraper struct {
	httpc   *http.Client
	baseURL string // test override; empty in production
}

// NewScraper builds a scraper with the given per-fetch timeout.
func NewScraper(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{httpc: httpclient.New(timeout, 0)}
}

// Scrape fetches and parses a profile page.
func (s *Scraper) Scrape(ctx context.Context, profileURL string) (*Profile, error) {
	if !IsProfileURL(profileURL) {
		return nil, fmt.Errorf("roast: not a linkedin profile url")
	}

	fetchURL := profileURL
	if s.baseURL != "" {
		u, _ := url.Parse(profileURL)
		fetchURL = s.baseURL + u.Path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("roast: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roast: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("roast: profile fetch status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("roast: read profile: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("roast: parse profile: %w", err)
	}

	profile := &Profile{URL: profileURL}
	profile.Name = firstText(doc,
		`h1[class*="text-heading"]`,
		`.pv-text-details__left-panel h1`,
		`.top-card-layout__title`,
	)
	profile.Headline = firstText(doc,
		`.pv-text-details__left-panel .text-body-medium`,
		`.top-card-layout__headline`,
		`[class*="headline"]`,
	)

	// Dynamic sections rarely survive server-side rendering, so fall back
	// to mining the page text.
	text := doc.Text()
	profile.Experience = extractExperience(text)
	profile.Education = extractEducation(text)

	logger.Debug(ctx, "roast", "scrape.done",
		slog.String("status", "ok"),
		slog.Bool("named", profile.Name != ""),
		slog.Int("count", len(profile.Experience)),
	)
	return profile, nil
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if text := strings.TrimSpace(node.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

var (
	jobTitlePattern = regexp.MustCompile(`(?i)(Senior |Junior |Lead |Principal |Staff )?` +
		`(Software Engineer|Data Scientist|Product Manager|Marketing Manager|Sales Manager|Engineer|Scientist|Director|Analyst|Consultant|Developer|Designer|Coordinator|Specialist|Associate)`)
	companyPattern   = regexp.MustCompile(`(?:at|@)\s+([A-Z][a-zA-Z\s&.]{1,40}?)(?:\s+·|\s+\||\n|$)`)
	educationPattern = regexp.MustCompile(`(?i)(?:[A-Z][\w.&' ]+\s+(?:University|College|Institute|Academy)|(?:University|College|Institute|Academy)\s+of\s+[A-Z][\w ]+)`)
)

// extractExperience mines job title / company pairs from page text.
func extractExperience(text string) []Position {
	seen := make(map[Position]bool)
	var out []Position
	for _, loc := range jobTitlePattern.FindAllStringIndex(text, -1) {
		if len(out) >= 5 {
			break
		}
		title := text[loc[0]:loc[1]]
		lo, hi := loc[0]-100, loc[1]+100
		if lo < 0 {
			lo = 0
		}
		if hi > len(text) {
			hi = len(text)
		}
		company := companyPattern.FindStringSubmatch(text[lo:hi])
		if company == nil {
			continue
		}
		pos := Position{Title: title, Company: strings.TrimSpace(company[1])}
		if !seen[pos] {
			seen[pos] = true
			out = append(out, pos)
		}
	}
	return out
}

// extractEducation mines school names from page text.
func extractEducation(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range educationPattern.FindAllString(text, -1) {
		if len(out) >= 3 {
			break
		}
		match = strings.TrimSpace(match)
		if len(match) <= 5 || seen[match] {
			continue
		}
		seen[match] = true
		out = append(out, match)
	}
	return out
}
