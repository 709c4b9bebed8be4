package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/avatar-broker/internal/backend"
)

func namedClient(name string, configured bool) *scriptedClient {
	return &scriptedClient{name: name, configured: configured}
}

func candidateNames(clients []backend.Client) []string {
	names := make([]string, 0, len(clients))
	for _, c := range clients {
		names = append(names, c.Name())
	}
	return names
}

func TestSelector_TierOrdering(t *testing.T) {
	s := NewSelector(nil,
		namedClient("runpod", true),
		namedClient("replicate", true),
		namedClient("vastai", true),
	)

	tests := []struct {
		tier backend.Tier
		want []string
	}{
		{backend.TierFree, []string{"replicate", "runpod", "vastai"}},
		{backend.TierStandard, []string{"runpod", "replicate", "vastai"}},
		{backend.TierPremium, []string{"vastai", "runpod", "replicate"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			got := s.Candidates(tt.tier)
			assert.Equal(t, tt.want, candidateNames(got))
		})
	}
}

func TestSelector_SkipsUnconfigured(t *testing.T) {
	s := NewSelector(nil,
		namedClient("runpod", false),
		namedClient("replicate", true),
		namedClient("vastai", false),
	)

	got := s.Candidates(backend.TierStandard)
	require.Len(t, got, 1)
	assert.Equal(t, "replicate", got[0].Name())
}

func TestSelector_EmptyWhenNothingConfigured(t *testing.T) {
	s := NewSelector(nil,
		namedClient("runpod", false),
		namedClient("replicate", false),
	)
	assert.Empty(t, s.Candidates(backend.TierFree))
}

func TestSelector_UnknownTierFallsBackToStandard(t *testing.T) {
	s := NewSelector(nil,
		namedClient("runpod", true),
		namedClient("replicate", true),
	)

	got := s.Candidates(backend.Tier("gold"))
	assert.Equal(t, []string{"runpod", "replicate"}, candidateNames(got))
}
