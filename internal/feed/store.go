// Package feed maintains the consumer-facing match list by merging the
// polled feed (live + upcoming) with push-delivered live updates.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"betflow/internal/normalize"
	"betflow/models"
)

// Store deduplicates matches by identifier across the two sources. The
// poll is the base; push updates are shallow-overlaid on top, since push
// is fresher for volatile fields while poll carries fields push never
// does. A match absent from one source's latest batch is retained, never
// dropped — absence is not evidence of deletion. Only Reset evicts.
type Store struct {
	mu        sync.RWMutex
	records   map[string]models.MatchSummary
	liveOrder []string
	upOrder   []string
	liveIDs   []string
	total     int
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]models.MatchSummary),
	}
}

// pollEnvelope covers both historical poll shapes. The current producer
// sends {success, live, upcoming, total}; the legacy one sends
// {status: "ok", response: {items, total_items, total_pages}}. Presence
// of success vs status decides which branch applies.
type pollEnvelope struct {
	Success  *bool             `json:"success"`
	Live     []json.RawMessage `json:"live"`
	Upcoming []json.RawMessage `json:"upcoming"`
	Total    int               `json:"total"`

	Status   string `json:"status"`
	Response *struct {
		Items      []json.RawMessage `json:"items"`
		TotalItems int               `json:"total_items"`
		TotalPages int               `json:"total_pages"`
	} `json:"response"`
}

// subscribeStub is the bare {type: "subscribe", match_id} entry the
// current producer mixes into the live array. Stubs carry no match data
// and are collected into a separate identifier list.
type subscribeStub struct {
	Type    string      `json:"type"`
	MatchID interface{} `json:"match_id"`
}

// Non-nil ApplyPoll results. A declined cycle and an unrecognized body
// both leave the store untouched but mean different things upstream.
var (
	ErrPollDeclined     = errors.New("backend declined the poll")
	ErrUnknownPollShape = errors.New("unrecognized poll response shape")
)

// ApplyPoll folds one poll response into the store. Previously stored
// matches are untouched on any non-nil return.
func (s *Store) ApplyPoll(data []byte) error {
	var env pollEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownPollShape, err)
	}

	switch {
	case env.Success != nil:
		if !*env.Success {
			return ErrPollDeclined
		}
		live, ids := splitStubs(env.Live)
		upcoming := parseAll(env.Upcoming)
		s.applyLists(live, upcoming, ids, env.Total)
		return nil
	case env.Status == "ok" && env.Response != nil:
		live := parseAll(env.Response.Items)
		s.applyLists(live, nil, nil, env.Response.TotalItems)
		return nil
	default:
		return ErrUnknownPollShape
	}
}

// splitStubs separates subscribe stubs from full match records in the
// live array. A stub contributes only its identifier.
func splitStubs(raw []json.RawMessage) ([]models.MatchSummary, []string) {
	var matches []models.MatchSummary
	var ids []string
	for _, item := range raw {
		var stub subscribeStub
		if err := json.Unmarshal(item, &stub); err == nil && stub.Type == "subscribe" {
			if m, ok := normalize.ParseMatch(item); ok {
				ids = append(ids, m.MatchID)
			}
			continue
		}
		if m, ok := normalize.ParseMatch(item); ok {
			matches = append(matches, m)
		}
	}
	return matches, ids
}

func parseAll(raw []json.RawMessage) []models.MatchSummary {
	out := make([]models.MatchSummary, 0, len(raw))
	for _, item := range raw {
		if m, ok := normalize.ParseMatch(item); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) applyLists(live, upcoming []models.MatchSummary, liveIDs []string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.liveOrder = s.mergeList(s.liveOrder, live)
	s.upOrder = s.mergeList(s.upOrder, upcoming)
	if liveIDs != nil {
		s.liveIDs = liveIDs
	}
	if total > 0 {
		s.total = total
	}
}

// mergeList folds fresh records over the stored ones and rebuilds the
// ordering: fresh batch order first, previously known matches missing
// from the batch retained after it.
func (s *Store) mergeList(prev []string, fresh []models.MatchSummary) []string {
	if len(fresh) == 0 {
		return prev
	}
	order := make([]string, 0, len(fresh)+len(prev))
	inBatch := make(map[string]struct{}, len(fresh))
	for _, m := range fresh {
		if existing, ok := s.records[m.MatchID]; ok {
			// Fresh sighting on top; placeholder fields in the batch
			// never erase real values the other source carried.
			m = existing.Overlay(m)
		}
		s.records[m.MatchID] = m
		if _, dup := inBatch[m.MatchID]; !dup {
			inBatch[m.MatchID] = struct{}{}
			order = append(order, m.MatchID)
		}
	}
	for _, id := range prev {
		if _, ok := inBatch[id]; !ok {
			order = append(order, id)
		}
	}
	return order
}

// ApplyPushList folds a push-delivered live list into the store. Known
// matches are updated in place, new ones appended; matches missing from
// the batch keep their position.
func (s *Store) ApplyPushList(matches []models.MatchSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range matches {
		if existing, ok := s.records[m.MatchID]; ok {
			s.records[m.MatchID] = existing.Overlay(m)
		} else {
			s.records[m.MatchID] = m
			s.liveOrder = append(s.liveOrder, m.MatchID)
		}
	}
}

// ApplyRealtime folds one push-delivered match update into the store and
// moves that match to the front of the live list.
func (s *Store) ApplyRealtime(m models.MatchSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[m.MatchID]; ok {
		s.records[m.MatchID] = existing.Overlay(m)
	} else {
		s.records[m.MatchID] = m
	}

	order := make([]string, 0, len(s.liveOrder)+1)
	order = append(order, m.MatchID)
	for _, id := range s.liveOrder {
		if id != m.MatchID {
			order = append(order, id)
		}
	}
	s.liveOrder = order
}

// Get returns the stored record for one match.
func (s *Store) Get(matchID string) (models.MatchSummary, bool) {
	s.mu.RLock()
	m, ok := s.records[matchID]
	s.mu.RUnlock()
	return m, ok
}

// View materializes the current feed. The returned value shares no
// storage with the store.
func (s *Store) View() models.FeedView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := models.FeedView{
		Live:     make([]models.MatchSummary, 0, len(s.liveOrder)),
		Upcoming: make([]models.MatchSummary, 0, len(s.upOrder)),
		LiveIDs:  append([]string(nil), s.liveIDs...),
	}
	for _, id := range s.liveOrder {
		v.Live = append(v.Live, s.records[id])
	}
	for _, id := range s.upOrder {
		v.Upcoming = append(v.Upcoming, s.records[id])
	}
	v.TotalItems = s.total
	if v.TotalItems == 0 {
		v.TotalItems = len(v.Live) + len(v.Upcoming)
	}
	return v
}

// Reset evicts everything, typically on a context switch.
func (s *Store) Reset() {
	s.mu.Lock()
	s.records = make(map[string]models.MatchSummary)
	s.liveOrder = nil
	s.upOrder = nil
	s.liveIDs = nil
	s.total = 0
	s.mu.Unlock()
}
