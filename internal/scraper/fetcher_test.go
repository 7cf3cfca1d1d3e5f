package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicscan/civicscan/internal/config"
	"github.com/civicscan/civicscan/internal/db/models"
)

func testFetcher() *Fetcher {
	return NewFetcher(config.ScraperConfig{
		UserAgent:      "civicscan-test",
		FetchTimeout:   5 * time.Second,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	})
}

func TestClassifyLink(t *testing.T) {
	tests := []struct {
		title string
		path  string
		want  DocumentKind
	}{
		{"Meeting Minutes 2026-01-12", "/docs/minutes.pdf", KindMinutes},
		{"Board Packet January", "/docs/packet.pdf", KindPackage},
		{"Agenda Package", "/docs/jan.pdf", KindPackage},
		{"Regular Session", "/docs/2026/packet-01.pdf", KindPackage},
		{"Regular Session", "/docs/2026/session-01.pdf", KindMinutes},
	}
	for _, tt := range tests {
		if got := classifyLink(tt.title, tt.path); got != tt.want {
			t.Errorf("classifyLink(%q, %q) = %s, want %s", tt.title, tt.path, got, tt.want)
		}
	}
}

func TestParseLinkDate(t *testing.T) {
	tests := []struct {
		in   string
		want string // empty means nil
	}{
		{"Minutes January 12, 2026", "2026-01-12"},
		{"minutes-2026-01-12.pdf", "2026-01-12"},
		{"minutes 01/12/2026 regular", "2026-01-12"},
		{"no date here", ""},
	}
	for _, tt := range tests {
		got := parseLinkDate(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("parseLinkDate(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("parseLinkDate(%q) = nil, want %s", tt.in, tt.want)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("parseLinkDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestFilterLinks(t *testing.T) {
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	feb1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	links := []DocumentLink{
		{URL: "a.pdf", Kind: KindMinutes, Date: &jan},
		{URL: "b.pdf", Kind: KindMinutes, Date: &mar},
		{URL: "c.pdf", Kind: KindPackage, Date: &mar},
		{URL: "d.pdf", Kind: KindMinutes}, // undated passes the date filter
	}

	cfg := &models.JobConfig{IncludeMinutes: true, IncludePackages: false, DateFrom: &feb1, MaxPages: 10}
	got := filterLinks(links, cfg)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].URL != "b.pdf" || got[1].URL != "d.pdf" {
		t.Errorf("got %s, %s", got[0].URL, got[1].URL)
	}
}

func TestFilterLinks_MaxPagesCap(t *testing.T) {
	links := make([]DocumentLink, 10)
	for i := range links {
		links[i] = DocumentLink{URL: fmt.Sprintf("%d.pdf", i), Kind: KindMinutes}
	}
	cfg := &models.JobConfig{IncludeMinutes: true, MaxPages: 3}
	if got := filterLinks(links, cfg); len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestDiscover_FindsPDFLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/docs/minutes-2026-01-12.pdf">Minutes January 12, 2026</a>
			<a href="/docs/packet-2026-01-12.pdf">Board Packet January 12, 2026</a>
			<a href="/about.html">About</a>
		</body></html>`)
	}))
	defer srv.Close()

	cfg := &models.JobConfig{IncludeMinutes: true, IncludePackages: true, MaxPages: 10}
	links, err := testFetcher().Discover(context.Background(), srv.URL, cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("len(links) = %d, want 2: %+v", len(links), links)
	}
	if links[0].Kind != KindMinutes || links[1].Kind != KindPackage {
		t.Errorf("kinds = %s, %s", links[0].Kind, links[1].Kind)
	}
	if links[0].Date == nil {
		t.Error("expected parsed date on minutes link")
	}
}

func TestDownload_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "pdf content")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	if err := testFetcher().Download(context.Background(), srv.URL+"/doc.pdf", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	body, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(body) != "pdf content" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDownload_PartialAttemptNotKeptAcrossRetry(t *testing.T) {
	// The first attempt sends half a body before failing; the retry's body
	// must fully replace it, not append to it.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Length", "100")
			fmt.Fprint(w, "garbage-half")
			return
		}
		fmt.Fprint(w, "pdf content")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	if err := testFetcher().Download(context.Background(), srv.URL+"/doc.pdf", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	body, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(body) != "pdf content" {
		t.Errorf("body = %q, want the retried body only", body)
	}
}

func TestDownload_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "gone.pdf")
	err := testFetcher().Download(context.Background(), srv.URL+"/gone.pdf", dest)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("no file should exist after failure, stat err: %v", err)
	}
	// The temp file is cleaned up too.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected an empty dir after failure, found %d entries", len(entries))
	}
}

func TestDownload_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	err := testFetcher().Download(context.Background(), srv.URL+"/doc.pdf", dest)
	if err == nil {
		t.Fatal("expected error")
	}
	// MaxRetries=2 means 1 initial attempt + 2 retries.
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
