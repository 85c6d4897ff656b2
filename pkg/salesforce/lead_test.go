package salesforce

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Dana Smith", "Dana", "Smith"},
		{"Mary Ann Lee", "Mary Ann", "Lee"},
		{"Cher", "", "Cher"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestLeadFields(t *testing.T) {
	f := Lead{FirstName: "Dana", LastName: "Smith", Email: "dana@acme.com", Company: "Acme", LeadSource: "Lead Magnet"}.Fields()
	assert.Equal(t, "Smith", f["LastName"])
	assert.Equal(t, "Acme", f["Company"])
	assert.Equal(t, "dana@acme.com", f["Email"])
	assert.Equal(t, "Lead Magnet", f["LeadSource"])
	assert.NotContains(t, f, "Title")

	empty := Lead{}.Fields()
	assert.Equal(t, "[not provided]", empty["LastName"])
	assert.Equal(t, "[not provided]", empty["Company"])
}

func TestExistingLeadEmails(t *testing.T) {
	var queries []string
	api := &fakeAPI{queryFn: func(_ context.Context, soql string, out any) error {
		queries = append(queries, soql)
		rows := out.(*[]leadEmail)
		*rows = append(*rows, leadEmail{ID: "00Q1", Email: "Dana@Acme.com"})
		return nil
	}}

	found, err := newFakeClient(api).ExistingLeadEmails(context.Background(), []string{"dana@acme.com", "o'neil@acme.com", "  "})
	require.NoError(t, err)
	assert.True(t, found["dana@acme.com"])
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], `'o\'neil@acme.com'`)
}

func TestExistingLeadEmails_Chunks(t *testing.T) {
	calls := 0
	api := &fakeAPI{queryFn: func(context.Context, string, any) error {
		calls++
		return nil
	}}
	emails := make([]string, 250)
	for i := range emails {
		emails[i] = strings.Repeat("a", i%5+1) + "@x.com"
	}
	_, err := newFakeClient(api).ExistingLeadEmails(context.Background(), emails)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestInsertLeads_Batches(t *testing.T) {
	var sizes []int
	api := &fakeAPI{insertCollectionFn: func(_ context.Context, obj string, records []map[string]any) ([]CollectionResult, error) {
		assert.Equal(t, "Lead", obj)
		sizes = append(sizes, len(records))
		out := make([]CollectionResult, len(records))
		for i := range out {
			out[i] = CollectionResult{Success: true}
		}
		out[0] = CollectionResult{Success: false, Errors: []string{"DUPLICATES_DETECTED"}}
		return out, nil
	}}

	leads := make([]Lead, 450)
	sum, err := newFakeClient(api).InsertLeads(context.Background(), leads)
	require.NoError(t, err)
	assert.Equal(t, []int{200, 200, 50}, sizes)
	assert.Equal(t, 447, sum.Created)
	assert.Equal(t, 3, sum.Failed)
	assert.Len(t, sum.Errors, 3)
}

func TestInsertLeads_BatchError(t *testing.T) {
	api := &fakeAPI{insertCollectionFn: func(context.Context, string, []map[string]any) ([]CollectionResult, error) {
		return nil, errors.New("session expired")
	}}

	_, err := newFakeClient(api).InsertLeads(context.Background(), []Lead{{LastName: "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: insert leads batch 0-1")
}

func TestExistingLeadEmails_AllBlank(t *testing.T) {
	calls := 0
	api := &fakeAPI{queryFn: func(context.Context, string, any) error {
		calls++
		return nil
	}}
	found, err := newFakeClient(api).ExistingLeadEmails(context.Background(), []string{"", " "})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Zero(t, calls)
}
