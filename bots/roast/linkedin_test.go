package roast

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsProfileURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://linkedin.com/in/shrey-gupta", true},
		{"https://www.linkedin.com/in/shrey-gupta/", true},
		{"https://www.linkedin.com/pub/jane-doe/1/2/3", true},
		{"https://linkedin.com/company/acme", false},
		{"https://linkedin.com/feed", false},
		{"https://linkedin.com/in/shrey-gupta/details/experience", false},
		{"https://example.com/in/shrey-gupta", false},
		{"not a url at all", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsProfileURL(tt.url); got != tt.want {
				t.Errorf("IsProfileURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractProfileURL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "plain link",
			text: "roast me: https://linkedin.com/in/shrey-gupta",
			want: "https://linkedin.com/in/shrey-gupta",
			ok:   true,
		},
		{
			name: "schemeless link gets https",
			text: "here www.linkedin.com/in/shrey-gupta thanks",
			want: "https://www.linkedin.com/in/shrey-gupta",
			ok:   true,
		},
		{
			name: "company page rejected",
			text: "https://linkedin.com/company/acme",
			ok:   false,
		},
		{
			name: "no link",
			text: "hello there",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractProfileURL(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractProfileURL(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

const profileHTML = `<!DOCTYPE html>
<html><body>
<h1 class="top-card-layout__title">Shrey Gupta</h1>
<h2 class="top-card-layout__headline">Software Engineer | Building things that occasionally work</h2>
<div>
Software Engineer at Acme Corp · Full-time
Previously: Data Scientist at Initech · Internship
Stanford University, BS Computer Science
</div>
</body></html>`

func TestScrapeProfile(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, profileHTML)
	}))
	t.Cleanup(srv.Close)

	s := NewScraper(0)
	s.baseURL = srv.URL

	profile, err := s.Scrape(context.Background(), "https://linkedin.com/in/shrey-gupta")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if gotUA != browserUA {
		t.Fatalf("user agent = %q", gotUA)
	}
	if profile.Name != "Shrey Gupta" {
		t.Fatalf("name = %q", profile.Name)
	}
	if profile.Headline == "" {
		t.Fatal("headline should be extracted")
	}
	wantExp := Position{Title: "Software Engineer", Company: "Acme Corp"}
	if len(profile.Experience) == 0 || !cmp.Equal(profile.Experience[0], wantExp) {
		t.Fatalf("experience = %+v, want first %+v", profile.Experience, wantExp)
	}
	if len(profile.Education) == 0 || profile.Education[0] != "Stanford University" {
		t.Fatalf("education = %v", profile.Education)
	}
}

func TestScrapeRejectsNonProfileURL(t *testing.T) {
	s := NewScraper(0)
	if _, err := s.Scrape(context.Background(), "https://linkedin.com/company/acme"); err == nil {
		t.Fatal("expected an error for a non-profile url")
	}
}

func TestScrapeBlockedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	s := NewScraper(0)
	s.baseURL = srv.URL
	if _, err := s.Scrape(context.Background(), "https://linkedin.com/in/shrey-gupta"); err == nil {
		t.Fatal("expected an error for a blocked fetch")
	}
}

func TestProfileSummaryThinProfile(t *testing.T) {
	p := &Profile{Name: "Jane"}
	got := p.Summary()
	if !strings.Contains(got, "Name: Jane") || !strings.Contains(got, "Limited profile information") {
		t.Fatalf("summary = %q", got)
	}
}
