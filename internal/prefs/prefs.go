// Package prefs stores small user preferences in the local key-value store.
package prefs

import (
	"encoding/json"
	"fmt"

	"github.com/maauso/videogen/internal/kv"
	"github.com/maauso/videogen/internal/provider"
)

// ModelOrderKey returns the key holding a provider's preferred model order.
func ModelOrderKey(p provider.Name) string {
	return fmt.Sprintf("%s_model_order", p)
}

// Prefs reads and writes preferences.
type Prefs struct {
	kv       kv.Store
	registry *provider.Registry
}

// New creates a Prefs over store.
func New(store kv.Store, registry *provider.Registry) *Prefs {
	return &Prefs{kv: store, registry: registry}
}

// ModelOrder returns the model variants of p in the user's preferred order.
// Stored ids the provider no longer offers are dropped and catalogue models
// missing from the stored order are appended. Unparsable data yields the
// catalogue order.
func (p *Prefs) ModelOrder(name provider.Name) ([]string, error) {
	a, err := p.registry.Get(name)
	if err != nil {
		return nil, err
	}
	catalogue := a.Models()

	var stored []string
	if raw, ok := p.kv.Get(ModelOrderKey(name)); ok {
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			stored = nil
		}
	}

	known := make(map[string]bool, len(catalogue))
	for _, m := range catalogue {
		known[m] = true
	}

	order := make([]string, 0, len(catalogue))
	seen := make(map[string]bool, len(catalogue))
	for _, m := range stored {
		if known[m] && !seen[m] {
			order = append(order, m)
			seen[m] = true
		}
	}
	for _, m := range catalogue {
		if !seen[m] {
			order = append(order, m)
		}
	}
	return order, nil
}

// Preferred returns the first model of a stored order. It reports false
// when nothing usable has been stored, so callers keep the provider default.
func (p *Prefs) Preferred(name provider.Name) (string, bool, error) {
	if _, err := p.registry.Get(name); err != nil {
		return "", false, err
	}
	raw, ok := p.kv.Get(ModelOrderKey(name))
	if !ok {
		return "", false, nil
	}
	var stored []string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return "", false, nil
	}
	order, err := p.ModelOrder(name)
	if err != nil {
		return "", false, err
	}
	for _, m := range stored {
		if len(order) > 0 && m == order[0] {
			return m, true, nil
		}
	}
	return "", false, nil
}

// Promote moves model to the front of p's order and saves it.
func (p *Prefs) Promote(name provider.Name, model string) ([]string, error) {
	order, err := p.ModelOrder(name)
	if err != nil {
		return nil, err
	}

	next := []string{model}
	found := false
	for _, m := range order {
		if m == model {
			found = true
			continue
		}
		next = append(next, m)
	}
	if !found {
		return nil, fmt.Errorf("prefs: model %q is not offered by %s", model, name)
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("prefs: marshal model order: %w", err)
	}
	if err := p.kv.Set(ModelOrderKey(name), string(data)); err != nil {
		return nil, fmt.Errorf("prefs: save model order: %w", err)
	}
	return next, nil
}
