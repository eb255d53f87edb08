package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposcout/search-service/internal/model"
)

func intPtr(v int) *int { return &v }

func TestSearchFilters_NormalizeDefaults(t *testing.T) {
	f := model.SearchFilters{Topic: "  graph database  ", Language: " Go "}.Normalize()

	assert.Equal(t, "graph database", f.Topic)
	assert.Equal(t, "Go", f.Language)
	assert.Equal(t, model.DefaultLimit, f.Limit)
	assert.False(t, f.OnlyMaintained)
	assert.Equal(t, 0, f.MinStarsValue())
}

func TestSearchFilters_Validate(t *testing.T) {
	cases := []struct {
		name    string
		filters model.SearchFilters
		field   string
	}{
		{"valid", model.SearchFilters{Topic: "cli", Limit: 6}, ""},
		{"valid bounds", model.SearchFilters{Topic: "cli", Limit: 15, MinStars: intPtr(0)}, ""},
		{"empty topic", model.SearchFilters{Topic: "", Limit: 6}, "topic"},
		{"blank topic after normalize", model.SearchFilters{Topic: "   "}.Normalize(), "topic"},
		{"limit too large", model.SearchFilters{Topic: "cli", Limit: 16}, "limit"},
		{"limit negative", model.SearchFilters{Topic: "cli", Limit: -1}, "limit"},
		{"negative stars", model.SearchFilters{Topic: "cli", Limit: 3, MinStars: intPtr(-5)}, "minStars"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filters.Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCandidate_LastActivity(t *testing.T) {
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, model.Candidate{}.LastActivity())
	assert.Equal(t, older, *model.Candidate{PushedAt: &older}.LastActivity())
	assert.Equal(t, newer, *model.Candidate{UpdatedAt: &newer}.LastActivity())
	assert.Equal(t, newer, *model.Candidate{PushedAt: &older, UpdatedAt: &newer}.LastActivity())
	assert.Equal(t, newer, *model.Candidate{PushedAt: &newer, UpdatedAt: &older}.LastActivity())
}

func TestDaysSince_JSON(t *testing.T) {
	b, err := json.Marshal(model.UnknownDays())
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = json.Marshal(model.DaysSince(42))
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))

	var d model.DaysSince
	require.NoError(t, json.Unmarshal([]byte("null"), &d))
	assert.False(t, d.Known())

	require.NoError(t, json.Unmarshal([]byte("7"), &d))
	assert.True(t, d.Known())
	assert.Equal(t, model.DaysSince(7), d)
}

func TestRankedCandidate_UnknownAgeEncodes(t *testing.T) {
	rc := model.RankedCandidate{
		Candidate:       model.Candidate{Name: "x"},
		DaysSinceUpdate: model.UnknownDays(),
		Reasons:         []string{"unknown activity"},
	}
	b, err := json.Marshal(rc)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"daysSinceUpdate":null`)
	assert.Contains(t, string(b), `"name":"x"`)
}
