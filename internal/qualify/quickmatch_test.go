package qualify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuickMatch(t *testing.T) {
	tests := []struct {
		name       string
		keywords   []string
		categories []string
		outcome    MatchOutcome
		matched    *bool
		hits       []string
	}{
		{
			name:       "exact normalized match",
			keywords:   []string{"vape shops"},
			categories: []string{"Vape Shops", "Smoke Accessories"},
			outcome:    StrongMatch,
			matched:    boolPtr(true),
			hits:       []string{"vape shops"},
		},
		{
			name:       "nothing in common",
			keywords:   []string{"robotics", "drones"},
			categories: []string{"Golf Equipment"},
			outcome:    NoMatch,
			matched:    boolPtr(false),
		},
		{
			name:       "half the keywords is inclusive",
			keywords:   []string{"golf", "robotics"},
			categories: []string{"Golf Equipment", "Apparel"},
			outcome:    StrongMatch,
			matched:    boolPtr(true),
			hits:       []string{"golf"},
		},
		{
			name:       "below half is uncertain",
			keywords:   []string{"golf", "robotics", "drones"},
			categories: []string{"Golf Equipment"},
			outcome:    Uncertain,
			hits:       []string{"golf"},
		},
		{
			name:       "category inside keyword",
			keywords:   []string{"premium golf equipment"},
			categories: []string{"golf equipment"},
			outcome:    StrongMatch,
			matched:    boolPtr(true),
			hits:       []string{"premium golf equipment"},
		},
		{
			name:       "unicode case folding",
			keywords:   []string{"ÉPICERIE FINE"},
			categories: []string{"épicerie fine"},
			outcome:    StrongMatch,
			matched:    boolPtr(true),
			hits:       []string{"ÉPICERIE FINE"},
		},
		{
			name:       "no stored categories",
			keywords:   []string{"golf"},
			categories: nil,
			outcome:    Uncertain,
		},
		{
			name:       "blank keywords are ignored",
			keywords:   []string{"  ", ""},
			categories: []string{"Golf"},
			outcome:    Uncertain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := QuickMatch(tt.keywords, tt.categories)
			assert.Equal(t, tt.outcome, res.Outcome)
			if tt.matched == nil {
				assert.Nil(t, res.Matched)
				assert.False(t, res.Confident)
			} else {
				require.NotNil(t, res.Matched)
				assert.Equal(t, *tt.matched, *res.Matched)
				assert.True(t, res.Confident)
			}
			assert.Equal(t, tt.hits, res.MatchedKeywords)
		})
	}
}

func TestQuickMatch_Deterministic(t *testing.T) {
	kw := []string{"vape", "cbd", "glass"}
	cats := []string{"Vape Hardware", "Glassware"}
	first := QuickMatch(kw, cats)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, QuickMatch(kw, cats))
	}
}
