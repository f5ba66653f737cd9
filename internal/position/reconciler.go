// Package position reconciles locally-predicted betting positions against
// the authoritative backend-computed ones.
package position

import (
	"encoding/json"
	"fmt"
	"sync"

	"betflow/internal/selkey"
	"betflow/models"
)

// Reconciler keeps two maps per category: stable (backend-confirmed,
// authoritative) and optimistic (locally predicted at bet time). A key
// present in both is resolved by taking the stable value and deleting the
// optimistic entry in the same step. Stable is merge-only: a partial or
// empty backend response never clears it — only ResetForContext does,
// exactly once per match-context change.
type Reconciler struct {
	mu        sync.RWMutex
	contextID string

	stableMatchOdds map[string]float64
	stableBookmaker map[string]float64
	stableFancy     map[string]map[string]float64

	optMatchOdds map[string]float64
	optBookmaker map[string]float64
	optFancy     map[string]map[string]float64
}

func NewReconciler() *Reconciler {
	r := &Reconciler{}
	r.clearLocked()
	return r
}

func (r *Reconciler) clearLocked() {
	r.stableMatchOdds = make(map[string]float64)
	r.stableBookmaker = make(map[string]float64)
	r.stableFancy = make(map[string]map[string]float64)
	r.optMatchOdds = make(map[string]float64)
	r.optBookmaker = make(map[string]float64)
	r.optFancy = make(map[string]map[string]float64)
}

// positionEnvelope is the position endpoint's response shape. Absence of
// success or data means "no update this cycle", never "clear positions".
type positionEnvelope struct {
	Success bool                       `json:"success"`
	Data    *models.PositionCategories `json:"data"`
}

// IngestRaw parses one position endpoint response and merges it in.
// Returns false when a well-formed body carries no update; an error means
// the body did not parse and nothing was merged.
func (r *Reconciler) IngestRaw(data []byte) (bool, error) {
	var env positionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("malformed position response: %w", err)
	}
	if !env.Success || env.Data == nil {
		return false, nil
	}
	r.IngestBackend(*env.Data)
	return true, nil
}

// IngestBackend merges an authoritative category set into stable. Every
// incoming key is written; a matching optimistic key is deleted in the
// same pass. Categories absent or empty in the input leave their stable
// maps untouched.
func (r *Reconciler) IngestBackend(categories models.PositionCategories) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, value := range categories.MatchOdds {
		k := selkey.Normalize(key)
		r.stableMatchOdds[k] = value
		deleteMatching(r.optMatchOdds, k)
	}
	for key, value := range categories.Bookmaker {
		k := selkey.Normalize(key)
		r.stableBookmaker[k] = value
		deleteMatching(r.optBookmaker, k)
	}
	for key, outcomes := range categories.Fancy {
		k := selkey.Normalize(key)
		stable := r.stableFancy[k]
		if stable == nil {
			stable = make(map[string]float64, len(outcomes))
			r.stableFancy[k] = stable
		}
		for label, value := range outcomes {
			stable[label] = value
		}
		deleteMatchingNested(r.optFancy, k)
	}
}

// deleteMatching removes key k from m, including entries whose stored key
// only matches under coercion (numeric form, padding).
func deleteMatching(m map[string]float64, k string) {
	if _, ok := m[k]; ok {
		delete(m, k)
		return
	}
	for existing := range m {
		if equivalentKeys(existing, k) {
			delete(m, existing)
		}
	}
}

func deleteMatchingNested(m map[string]map[string]float64, k string) {
	if _, ok := m[k]; ok {
		delete(m, k)
		return
	}
	for existing := range m {
		if equivalentKeys(existing, k) {
			delete(m, existing)
		}
	}
}

func equivalentKeys(a, b string) bool {
	if a == b {
		return true
	}
	cands := selkey.Candidates(a)
	for _, c := range cands {
		if c == b {
			return true
		}
	}
	for _, c := range selkey.Candidates(b) {
		if c == a {
			return true
		}
	}
	return false
}

// RecordOptimistic stores a locally-predicted net value for a flat
// category the instant a bet is placed, before the backend confirms it.
// Stable is never touched.
func (r *Reconciler) RecordOptimistic(category models.PositionCategory, rawKey interface{}, value float64) {
	k := selkey.Normalize(rawKey)
	if k == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch category {
	case models.CategoryMatchOdds:
		r.optMatchOdds[k] = value
	case models.CategoryBookmaker:
		r.optBookmaker[k] = value
	}
}

// RecordOptimisticFancy stores a predicted value for one outcome label of
// a fancy market.
func (r *Reconciler) RecordOptimisticFancy(rawKey interface{}, label string, value float64) {
	k := selkey.Normalize(rawKey)
	if k == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	outcomes := r.optFancy[k]
	if outcomes == nil {
		outcomes = make(map[string]float64, 2)
		r.optFancy[k] = outcomes
	}
	outcomes[label] = value
}

// View materializes the merged per-category positions: optimistic values
// first, stable values written over them, so stable wins any conflict.
// The fancy merge runs one level deeper, per outcome label. The result
// shares no storage with the reconciler.
func (r *Reconciler) View() models.PositionCategories {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := models.PositionCategories{
		MatchOdds: mergeFlat(r.optMatchOdds, r.stableMatchOdds),
		Bookmaker: mergeFlat(r.optBookmaker, r.stableBookmaker),
		Fancy:     make(map[string]map[string]float64, len(r.optFancy)+len(r.stableFancy)),
	}
	for key, outcomes := range r.optFancy {
		out.Fancy[key] = copyFlat(outcomes)
	}
	for key, outcomes := range r.stableFancy {
		merged := out.Fancy[key]
		if merged == nil {
			merged = make(map[string]float64, len(outcomes))
			out.Fancy[key] = merged
		}
		for label, value := range outcomes {
			merged[label] = value
		}
	}
	return out
}

// Lookup resolves one selection against the merged view of a flat
// category using the layered key strategies.
func (r *Reconciler) Lookup(category models.PositionCategory, rawKey interface{}) (float64, bool) {
	view := r.View()
	switch category {
	case models.CategoryMatchOdds:
		return selkey.Lookup(view.MatchOdds, rawKey)
	case models.CategoryBookmaker:
		return selkey.Lookup(view.Bookmaker, rawKey)
	default:
		return 0, false
	}
}

// LookupFancy resolves one fancy market against the merged view.
func (r *Reconciler) LookupFancy(rawKey interface{}) (map[string]float64, bool) {
	return selkey.LookupNested(r.View().Fancy, rawKey)
}

// ResetForContext wholesale-clears both stable and optimistic for every
// category. This is the only operation allowed to clear stable. A repeat
// call with the current context id is ignored so a data refresh inside
// one context can never wipe positions.
func (r *Reconciler) ResetForContext(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contextID != "" && contextID == r.contextID {
		return
	}
	r.contextID = contextID
	r.clearLocked()
}

// ContextID returns the active match context.
func (r *Reconciler) ContextID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contextID
}

func mergeFlat(optimistic, stable map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(optimistic)+len(stable))
	for k, v := range optimistic {
		out[k] = v
	}
	for k, v := range stable {
		out[k] = v
	}
	return out
}

func copyFlat(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
