package railprovider

import (
	"fmt"
	"sort"
)

// entry pairs a provider with its configuration-declared selection
// priority. Lower priority wins ties.
type entry struct {
	provider Provider
	priority int
}

// Registry is the closed set of rail providers a tenant's configuration
// wires up at construction time, looked up by name — grounded on the
// teacher's plugin service's name-keyed, load-once registry
// (internal/plugin/service.go's `plugins map[string]*LoadedPlugin`), here
// with no dynamic loading: every provider is a compiled-in adapter.
type Registry struct {
	byName map[string]entry
}

// NewRegistry builds a closed registry from providers, each with its
// configured selection priority. Empty provider names are rejected; names
// are unique because they are the keys of providers.
func NewRegistry(providers map[string]Provider, priorities map[string]int) (*Registry, error) {
	byName := make(map[string]entry, len(providers))
	for name, p := range providers {
		if name == "" {
			return nil, fmt.Errorf("railprovider: provider name must not be empty")
		}
		byName[name] = entry{provider: p, priority: priorities[name]}
	}
	return &Registry{byName: byName}, nil
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Names returns every registered provider's name, sorted, so callers like
// reconciliation's per-provider sweep have a stable iteration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrNoCapableProvider is returned when no registered provider supports the
// requested rail; the requested direction is carried for the message.
type ErrNoCapableProvider struct {
	Rail      Rail
	Direction Direction
}

func (e *ErrNoCapableProvider) Error() string {
	return fmt.Sprintf("railprovider: no provider supports rail %s direction %s", e.Rail, e.Direction)
}

// Select returns the provider whose capabilities fit rail, breaking ties by
// the lowest configured priority (§4.8 capability match). direction is not
// matched against capabilities; it is only reported in ErrNoCapableProvider.
func (r *Registry) Select(rail Rail, direction Direction) (Provider, error) {
	var candidates []entry
	for _, e := range r.byName {
		if supports(e.provider.Capabilities(), rail) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, &ErrNoCapableProvider{Rail: rail, Direction: direction}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })
	return candidates[0].provider, nil
}

func supports(caps Capabilities, rail Rail) bool {
	switch rail {
	case RailACHCredit:
		return caps.ACHCredit
	case RailACHDebit:
		return caps.ACHDebit
	case RailWire:
		return caps.Wire
	case RailRTP:
		return caps.RTP
	case RailFedNow:
		return caps.FedNow
	case RailCheck:
		return caps.Check
	default:
		return false
	}
}
