package orchestrator

import (
	"log/slog"

	"github.com/maauso/avatar-broker/internal/backend"
)

// Selector orders configured backend clients for a requested tier. Clients
// are injected explicitly; nothing here reaches into process-wide state.
type Selector struct {
	clients []backend.Client
	logger  *slog.Logger
}

// NewSelector creates a selector over the given clients. Order matters only
// as a tie-break within a tier preference.
func NewSelector(logger *slog.Logger, clients ...backend.Client) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{clients: clients, logger: logger}
}

// tierPreference maps a tier to backend names in descending preference.
// Premium requests try the marketplace A100s first; free requests prefer the
// cheap hosted models.
var tierPreference = map[backend.Tier][]string{
	backend.TierFree:     {"replicate", "runpod", "vastai"},
	backend.TierStandard: {"runpod", "replicate", "vastai"},
	backend.TierPremium:  {"vastai", "runpod", "replicate"},
}

// Candidates returns the configured clients in preference order for the
// tier. Unconfigured clients are skipped with a debug log; the result may be
// empty.
func (s *Selector) Candidates(tier backend.Tier) []backend.Client {
	pref, ok := tierPreference[tier]
	if !ok {
		pref = tierPreference[backend.TierStandard]
	}

	byName := make(map[string]backend.Client, len(s.clients))
	for _, c := range s.clients {
		byName[c.Name()] = c
	}

	candidates := make([]backend.Client, 0, len(s.clients))
	for _, name := range pref {
		c, ok := byName[name]
		if !ok {
			continue
		}
		if !c.IsConfigured() {
			s.logger.Debug("skipping unconfigured backend",
				slog.String("backend", name),
			)
			continue
		}
		candidates = append(candidates, c)
	}

	return candidates
}
