package leads

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/qualify"
	"github.com/sells-group/lead-magnet/internal/store"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
)

// --- Discoverer ---

type fakeDiscoverer struct {
	mu sync.Mutex

	pages [][]prospeo.Company
	// endless returns a full page of fresh companies for every page.
	endless  bool
	pageErrs map[int]error
	persons  map[string][]prospeo.Person
	// personErrs fails the person search for a company id.
	personErrs map[string]error
	// personsPer is the number of generated persons for companies not in
	// persons.
	personsPer int

	companyCalls []int
	personCalls  []prospeo.CompanyRef
}

func (f *fakeDiscoverer) SearchCompanies(_ context.Context, page, limit int, _ prospeo.CompanyFilters) (*prospeo.CompanyPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companyCalls = append(f.companyCalls, page)

	if err := f.pageErrs[page]; err != nil {
		return nil, err
	}
	if f.endless {
		cs := make([]prospeo.Company, limit)
		for i := range cs {
			cs[i] = testProspeoCompany(fmt.Sprintf("cmp-%d-%d", page, i))
		}
		return &prospeo.CompanyPage{Page: page, Companies: cs, HasMore: true}, nil
	}
	if page > len(f.pages) {
		return &prospeo.CompanyPage{Page: page}, nil
	}
	return &prospeo.CompanyPage{Page: page, Companies: f.pages[page-1], HasMore: page < len(f.pages)}, nil
}

func (f *fakeDiscoverer) SearchPersons(_ context.Context, company prospeo.CompanyRef, _ []string, _ int) (*prospeo.PersonPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personCalls = append(f.personCalls, company)

	if err := f.personErrs[company.ID]; err != nil {
		return nil, err
	}
	if ps, ok := f.persons[company.ID]; ok {
		return &prospeo.PersonPage{Persons: ps}, nil
	}
	ps := make([]prospeo.Person, f.personsPer)
	for i := range ps {
		ps[i] = prospeo.Person{
			ID:    fmt.Sprintf("%s-p%d", company.ID, i),
			Name:  fmt.Sprintf("Person %d", i),
			Title: "Owner",
		}
	}
	return &prospeo.PersonPage{Persons: ps}, nil
}

func testProspeoCompany(id string) prospeo.Company {
	return prospeo.Company{
		ID:       id,
		Name:     "Company " + id,
		Domain:   id + ".example.com",
		Website:  "https://" + id + ".example.com",
		Industry: "Retail",
	}
}

// --- Classifier ---

type fakeClassifier struct {
	mu sync.Mutex

	rejectAll       bool
	rejectWholesale map[string]bool
	rejectFit       map[string]bool
	categories      []string

	wholesaleCalls []string
	fitCalls       []string
	lastTerms      []string
	lastContent    string
}

func (f *fakeClassifier) CheckWholesale(_ context.Context, c *model.Company, content string) qualify.WholesaleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wholesaleCalls = append(f.wholesaleCalls, c.ID)
	f.lastContent = content

	if f.rejectAll || f.rejectWholesale[c.ID] {
		return qualify.WholesaleResult{Passed: false, Response: "NO"}
	}
	return qualify.WholesaleResult{Passed: true, Response: "YES"}
}

func (f *fakeClassifier) CheckProductFit(_ context.Context, c *model.Company, content string, keywords []string, _ string) qualify.ProductFitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fitCalls = append(f.fitCalls, c.ID)
	f.lastTerms = keywords
	f.lastContent = content

	if f.rejectFit[c.ID] {
		return qualify.ProductFitResult{Response: "VERDICT: NO"}
	}
	return qualify.ProductFitResult{
		Verdict:  model.QualificationVerdict{Matched: true, Categories: f.categories},
		Response: "VERDICT: YES",
	}
}

// --- Enricher ---

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) EnrichPerson(ctx context.Context, personID string) (string, error) {
	args := m.Called(ctx, personID)
	return args.String(0), args.Error(1)
}

func enricherAlwaysFinds() *mockEnricher {
	m := &mockEnricher{}
	m.On("EnrichPerson", mock.Anything, mock.Anything).Return("lead@example.com", nil)
	return m
}

// --- Extractor ---

type fakeExtractor struct {
	mu      sync.Mutex
	content string
	calls   int
}

func (f *fakeExtractor) Content(context.Context, string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.content
}

// --- Store ---

// recordingStore wraps a real store and records person writes.
type recordingStore struct {
	store.LeadStore

	mu      sync.Mutex
	saved   []string
	updated []string
}

func (s *recordingStore) SavePerson(ctx context.Context, p *model.Person) (string, error) {
	s.mu.Lock()
	s.saved = append(s.saved, p.ID)
	s.mu.Unlock()
	return s.LeadStore.SavePerson(ctx, p)
}

func (s *recordingStore) UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) error {
	s.mu.Lock()
	s.updated = append(s.updated, id)
	s.mu.Unlock()
	return s.LeadStore.UpdatePerson(ctx, id, u)
}

// failingVerdictStore wraps a real store and fails every verdict write.
type failingVerdictStore struct {
	store.LeadStore
}

func (failingVerdictStore) UpdateCompanyVerdict(context.Context, string, model.CompanyVerdict) error {
	return errors.New("disk full")
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedCompany stores a classified company.
func seedCompany(t *testing.T, st store.LeadStore, id string, wholesale bool, categories []string) *model.Company {
	t.Helper()
	ctx := context.Background()
	pc := testProspeoCompany(id)
	c := &model.Company{ID: pc.ID, Name: pc.Name, Domain: pc.Domain, Website: pc.Website}

	rowID, err := st.UpsertCompany(ctx, c)
	require.NoError(t, err)
	c.StoreID = rowID

	v := model.CompanyVerdict{
		WholesaleCheck:    model.Bool(wholesale),
		WholesaleResponse: "seeded",
		KeywordCheck:      model.Bool(wholesale && len(categories) > 0),
		KeywordResponse:   "seeded",
		ProductCategories: categories,
	}
	require.NoError(t, st.UpdateCompanyVerdict(ctx, rowID, v))
	c.ApplyVerdict(v, time.Now())
	return c
}

func testRequest(target, maxProcessed int) model.SearchRequest {
	return model.SearchRequest{
		Keywords:     []string{"vape"},
		TargetCount:  target,
		MaxProcessed: maxProcessed,
		Origin:       model.Origin{RunID: "run-test"},
	}
}
