package export

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-magnet/pkg/notion"
	"github.com/sells-group/lead-magnet/pkg/salesforce"
)

type fakeNotion struct {
	existing map[string]bool
	created  []notion.LeadPage
	queryErr error
}

func (f *fakeNotion) HasLead(_ context.Context, key string) (bool, error) {
	if f.queryErr != nil {
		return false, f.queryErr
	}
	return f.existing[key], nil
}

func (f *fakeNotion) CreateLead(_ context.Context, lead notion.LeadPage) (string, error) {
	f.created = append(f.created, lead)
	return "new", nil
}

func TestLeadKey(t *testing.T) {
	res := testResult()
	assert.Equal(t, "id:c1|p1", LeadKey(res.Leads[0]))
}

func TestNotionSink(t *testing.T) {
	fn := &fakeNotion{existing: map[string]bool{"id:c1|p2": true}}
	s := NewNotionSink(fn)

	loc, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "1 pages created, 1 already present", loc)
	require.Len(t, fn.created, 1)
	assert.Equal(t, "id:c1|p1", fn.created[0].Key)
	assert.Equal(t, "run-1", fn.created[0].RunID)
}

func TestNotionSink_LookupError(t *testing.T) {
	fn := &fakeNotion{queryErr: assert.AnError}
	_, err := NewNotionSink(fn).Write(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: notion lookup")
	assert.Empty(t, fn.created)
}

type fakeSF struct {
	existing []string
	lookups  [][]string
	inserted []salesforce.Lead
	fail     int
}

func (f *fakeSF) ExistingLeadEmails(_ context.Context, emails []string) (map[string]bool, error) {
	f.lookups = append(f.lookups, emails)
	found := make(map[string]bool, len(f.existing))
	for _, e := range f.existing {
		found[strings.ToLower(e)] = true
	}
	return found, nil
}

func (f *fakeSF) InsertLeads(_ context.Context, leads []salesforce.Lead) (salesforce.InsertSummary, error) {
	f.inserted = append(f.inserted, leads...)
	var sum salesforce.InsertSummary
	for i := range leads {
		if i < f.fail {
			sum.Failed++
			sum.Errors = append(sum.Errors, "DUPLICATE_VALUE")
			continue
		}
		sum.Created++
	}
	return sum, nil
}

func TestSalesforceSink(t *testing.T) {
	fs := &fakeSF{}
	s := NewSalesforceSink(fs, "Lead Magnet")

	loc, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "2 leads created, 0 failed, 0 already present", loc)

	require.Len(t, fs.lookups, 1)
	assert.Equal(t, []string{"dana@acmevapor.com", "lee@acmevapor.com"}, fs.lookups[0])
	require.Len(t, fs.inserted, 2)
	assert.Equal(t, "Dana", fs.inserted[0].FirstName)
	assert.Equal(t, "Smith", fs.inserted[0].LastName)
	assert.Equal(t, "Lee", fs.inserted[1].LastName)
	assert.Equal(t, "Lead Magnet", fs.inserted[1].LeadSource)
	assert.Equal(t, "carries disposables", fs.inserted[1].Description)
}

func TestSalesforceSink_PartialFailure(t *testing.T) {
	fs := &fakeSF{fail: 1}
	loc, err := NewSalesforceSink(fs, "").Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "1 leads created, 1 failed, 0 already present", loc)
}

func TestSalesforceSink_SkipsExisting(t *testing.T) {
	fs := &fakeSF{existing: []string{"DANA@acmevapor.com"}}
	loc, err := NewSalesforceSink(fs, "").Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "1 leads created, 0 failed, 1 already present", loc)
	require.Len(t, fs.inserted, 1)
	assert.Equal(t, "lee@acmevapor.com", fs.inserted[0].Email)
}

func TestSalesforceSink_AllExisting(t *testing.T) {
	fs := &fakeSF{existing: []string{"dana@acmevapor.com", "lee@acmevapor.com"}}
	loc, err := NewSalesforceSink(fs, "").Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "0 leads created, 2 already present", loc)
	assert.Empty(t, fs.inserted)
}
