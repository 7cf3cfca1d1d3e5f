package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/civicscan/civicscan/internal/db/models"
	"github.com/civicscan/civicscan/internal/storage"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeJobStore struct {
	mu          sync.Mutex
	job         *models.ScrapeJob
	config      *models.JobConfig
	results     []*models.ScrapeResult
	insertCalls int
}

func (s *fakeJobStore) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.job.ID != jobID {
		return nil, nil
	}
	copy := *s.job
	return &copy, nil
}

func (s *fakeJobStore) GetConfig(ctx context.Context, jobID string) (*models.JobConfig, error) {
	return s.config, nil
}

func (s *fakeJobStore) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Status != models.JobStatusPending {
		return false, nil
	}
	s.job.Status = models.JobStatusRunning
	return true, nil
}

func (s *fakeJobStore) Complete(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Status != models.JobStatusRunning {
		return false, nil
	}
	s.job.Status = models.JobStatusCompleted
	return true, nil
}

func (s *fakeJobStore) Fail(ctx context.Context, jobID, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Status != models.JobStatusRunning {
		return false, nil
	}
	s.job.Status = models.JobStatusFailed
	s.job.ErrorMessage = &message
	return true, nil
}

func (s *fakeJobStore) InsertResults(ctx context.Context, jobID string, results []*models.ScrapeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	s.results = append(s.results, results...)
	return nil
}

func (s *fakeJobStore) status() models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Status
}

type fakeClientStore struct {
	sources []*models.ClientSource
}

func (s *fakeClientStore) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	return &models.Client{ID: clientID, Name: "Test Client", IsActive: true}, nil
}

func (s *fakeClientStore) ListSources(ctx context.Context, clientID string) ([]*models.ClientSource, error) {
	return s.sources, nil
}

type fakeKeywordStore struct {
	keywords []*models.Keyword
}

func (s *fakeKeywordStore) ListForClient(ctx context.Context, clientID string, activeOnly bool) ([]*models.Keyword, error) {
	return s.keywords, nil
}

// fakeSource serves canned links and document bodies, and can fail whole
// sources or individual documents.
type fakeSource struct {
	linksByPage map[string][]DocumentLink
	failPages   map[string]bool
	failDocs    map[string]bool
	bodies      map[string]string
}

func (s *fakeSource) Discover(ctx context.Context, pageURL string, cfg *models.JobConfig) ([]DocumentLink, error) {
	if s.failPages[pageURL] {
		return nil, fmt.Errorf("boom: %s", pageURL)
	}
	return s.linksByPage[pageURL], nil
}

func (s *fakeSource) Download(ctx context.Context, docURL, destPath string) error {
	if s.failDocs[docURL] {
		return fmt.Errorf("%w: %s", ErrFetchFailed, docURL)
	}
	body := s.bodies[docURL]
	if body == "" {
		body = "pdf"
	}
	return os.WriteFile(destPath, []byte(body), 0o644)
}

func newTestPipeline(t *testing.T, jobs *fakeJobStore, clients *fakeClientStore, keywords *fakeKeywordStore, source *fakeSource) *Pipeline {
	t.Helper()
	m, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewPipeline(Deps{
		Jobs:     jobs,
		Clients:  clients,
		Keywords: keywords,
		Storage:  m,
		Source:   source,
		// Fake extraction: page text derives from the stored file content.
		ExtractPages: func(path string) ([]string, error) {
			return []string{"page about zoning", "page about nothing"}, nil
		},
		Annotate: func(src, dest string, matches []Match) error {
			return nil
		},
	})
}

func pendingJob() *fakeJobStore {
	return &fakeJobStore{
		job:    &models.ScrapeJob{ID: "job-1", ClientID: "client-1", Status: models.JobStatusPending},
		config: &models.JobConfig{JobID: "job-1", MaxPages: 10, IncludeMinutes: true},
	}
}

func zoningKeywords() *fakeKeywordStore {
	return &fakeKeywordStore{keywords: []*models.Keyword{{ID: "kw-1", Term: "zoning"}}}
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecute_HappyPath(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", ClientID: "client-1", URL: "https://example.gov/minutes"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov/minutes": {{URL: "https://example.gov/docs/jan.pdf", Kind: KindMinutes}},
		},
	}

	p := newTestPipeline(t, jobs, clients, zoningKeywords(), source)
	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if jobs.status() != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", jobs.status())
	}
	if len(jobs.results) != 1 {
		t.Fatalf("results = %d, want 1", len(jobs.results))
	}
	if jobs.results[0].Keyword != "zoning" || jobs.results[0].PageNumber != 1 {
		t.Errorf("result = %+v", jobs.results[0])
	}
}

func TestExecute_UnknownJob(t *testing.T) {
	jobs := pendingJob()
	p := newTestPipeline(t, jobs, &fakeClientStore{}, zoningKeywords(), &fakeSource{})

	err := p.Execute(context.Background(), "ghost")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestExecute_RejectsNonPendingJob(t *testing.T) {
	jobs := pendingJob()
	jobs.job.Status = models.JobStatusCompleted

	p := newTestPipeline(t, jobs, &fakeClientStore{}, zoningKeywords(), &fakeSource{})
	err := p.Execute(context.Background(), "job-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	// Terminal state is untouched.
	if jobs.status() != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", jobs.status())
	}
}

func TestExecute_SecondExecutionRejected(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{}
	p := newTestPipeline(t, jobs, clients, zoningKeywords(), &fakeSource{})

	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	err := p.Execute(context.Background(), "job-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Execute err = %v, want ErrInvalidTransition", err)
	}
}

func TestExecute_NoSourcesCompletesEmpty(t *testing.T) {
	jobs := pendingJob()
	p := newTestPipeline(t, jobs, &fakeClientStore{}, zoningKeywords(), &fakeSource{})

	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if jobs.status() != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", jobs.status())
	}
	if len(jobs.results) != 0 {
		t.Errorf("results = %d, want 0", len(jobs.results))
	}
}

func TestExecute_NoKeywordsCompletesEmpty(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov/minutes"}}}
	p := newTestPipeline(t, jobs, clients, &fakeKeywordStore{}, &fakeSource{})

	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if jobs.status() != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", jobs.status())
	}
}

func TestExecute_AllSourcesFailed(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{
		{ID: "src-1", URL: "https://a.gov"},
		{ID: "src-2", URL: "https://b.gov"},
	}}
	source := &fakeSource{failPages: map[string]bool{"https://a.gov": true, "https://b.gov": true}}

	p := newTestPipeline(t, jobs, clients, zoningKeywords(), source)
	err := p.Execute(context.Background(), "job-1")
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("err = %v, want ErrAllSourcesFailed", err)
	}
	if jobs.status() != models.JobStatusFailed {
		t.Errorf("status = %s, want failed", jobs.status())
	}
	if jobs.job.ErrorMessage == nil {
		t.Error("expected error message on failed job")
	}
}

func TestExecute_PartialSourceFailureCompletes(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{
		{ID: "src-1", URL: "https://broken.gov"},
		{ID: "src-2", URL: "https://working.gov"},
	}}
	source := &fakeSource{
		failPages: map[string]bool{"https://broken.gov": true},
		linksByPage: map[string][]DocumentLink{
			"https://working.gov": {{URL: "https://working.gov/jan.pdf", Kind: KindMinutes}},
		},
	}

	p := newTestPipeline(t, jobs, clients, zoningKeywords(), source)
	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if jobs.status() != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", jobs.status())
	}
	if len(jobs.results) != 1 {
		t.Errorf("results = %d, want 1", len(jobs.results))
	}
}

func TestExecute_DocumentFailureIsolated(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov": {
				{URL: "https://example.gov/bad.pdf", Kind: KindMinutes},
				{URL: "https://example.gov/good.pdf", Kind: KindMinutes},
			},
		},
		failDocs: map[string]bool{"https://example.gov/bad.pdf": true},
	}

	p := newTestPipeline(t, jobs, clients, zoningKeywords(), source)
	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if jobs.status() != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", jobs.status())
	}
	if len(jobs.results) != 1 {
		t.Fatalf("results = %d, want 1", len(jobs.results))
	}
	if jobs.results[0].FileName != "002_good.pdf" {
		t.Errorf("FileName = %s, want 002_good.pdf", jobs.results[0].FileName)
	}
}

func TestExecute_DuplicateBasenamesKeptDistinct(t *testing.T) {
	// Two sources publish minutes under the same basename; both must survive
	// in storage and in the results, not silently overwrite each other.
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov": {
				{URL: "https://example.gov/2024-01/minutes.pdf", Kind: KindMinutes},
				{URL: "https://example.gov/2024-02/minutes.pdf", Kind: KindMinutes},
			},
		},
	}

	m, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	p := NewPipeline(Deps{
		Jobs:     jobs,
		Clients:  clients,
		Keywords: zoningKeywords(),
		Storage:  m,
		Source:   source,
		ExtractPages: func(path string) ([]string, error) {
			return []string{"page about zoning"}, nil
		},
		Annotate: func(src, dest string, matches []Match) error { return nil },
	})

	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(jobs.results) != 2 {
		t.Fatalf("results = %d, want 2", len(jobs.results))
	}
	if jobs.results[0].FileName == jobs.results[1].FileName {
		t.Errorf("both documents stored as %q", jobs.results[0].FileName)
	}

	rawDir, err := m.EnsureDir("job-1", storage.CategoryRaw)
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("raw files = %d, want 2", len(entries))
	}
}

func TestExecute_ResultsPersistedPerDocument(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov": {
				{URL: "https://example.gov/jan.pdf", Kind: KindMinutes},
				{URL: "https://example.gov/feb.pdf", Kind: KindMinutes},
			},
		},
	}

	p := newTestPipeline(t, jobs, clients, zoningKeywords(), source)
	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// One insert per matched document, not one batch at the end.
	if jobs.insertCalls != 2 {
		t.Errorf("insertCalls = %d, want 2", jobs.insertCalls)
	}
}

func TestExecute_PartialResultsSurviveCancellation(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov": {
				{URL: "https://example.gov/jan.pdf", Kind: KindMinutes},
				{URL: "https://example.gov/feb.pdf", Kind: KindMinutes},
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	m, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	p := NewPipeline(Deps{
		Jobs:     jobs,
		Clients:  clients,
		Keywords: zoningKeywords(),
		Storage:  m,
		Source:   source,
		ExtractPages: func(path string) ([]string, error) {
			return []string{"page about zoning"}, nil
		},
		// Cancel after the first document is annotated, before the second
		// document starts.
		Annotate: func(src, dest string, matches []Match) error {
			cancel()
			return nil
		},
	})

	if err := p.Execute(ctx, "job-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The first document's matches were stored before cancellation took hold.
	if len(jobs.results) != 1 {
		t.Errorf("results = %d, want 1 from the document processed before cancel", len(jobs.results))
	}
}

func TestExecute_CancelledContextStopsWork(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov": {{URL: "https://example.gov/jan.pdf", Kind: KindMinutes}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, jobs, clients, zoningKeywords(), source)
	err := p.Execute(ctx, "job-1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	// No terminal transition is written by the pipeline on cancellation; the
	// cancelling caller records the cancelled status.
	if jobs.status() != models.JobStatusRunning {
		t.Errorf("status = %s, want running", jobs.status())
	}
	if len(jobs.results) != 0 {
		t.Errorf("results = %d, want 0", len(jobs.results))
	}
}

func TestExecute_EntityExtractionAttached(t *testing.T) {
	jobs := pendingJob()
	clients := &fakeClientStore{sources: []*models.ClientSource{{ID: "src-1", URL: "https://example.gov"}}}
	source := &fakeSource{
		linksByPage: map[string][]DocumentLink{
			"https://example.gov": {{URL: "https://example.gov/jan.pdf", Kind: KindMinutes}},
		},
	}

	m, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	p := NewPipeline(Deps{
		Jobs:     jobs,
		Clients:  clients,
		Keywords: zoningKeywords(),
		Storage:  m,
		Source:   source,
		Entities: stubExtractor{},
		ExtractPages: func(path string) ([]string, error) {
			return []string{"zoning near Springfield"}, nil
		},
		Annotate: func(src, dest string, matches []Match) error { return nil },
	})

	if err := p.Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(jobs.results) != 1 {
		t.Fatalf("results = %d, want 1", len(jobs.results))
	}
	if jobs.results[0].Entities == nil || len(jobs.results[0].Entities.Locations) != 1 {
		t.Errorf("entities = %+v", jobs.results[0].Entities)
	}
}

type stubExtractor struct{}

func (stubExtractor) Extract(text string) (*models.EntitySet, error) {
	return &models.EntitySet{Locations: []string{"Springfield"}}, nil
}
