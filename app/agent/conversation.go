package agent

import (
	"slices"
	"sync"
	"time"

	"ragchat/types"
)

// ConversationStore keeps dialogues in memory. Each conversation holds at most
// 2*maxLength turns; the oldest are evicted first.
type ConversationStore struct {
	maxLength int

	mu    sync.RWMutex
	turns map[string][]types.ConversationTurn
	locks map[string]*convLock

	now func() time.Time
}

func NewConversationStore(maxLength int) *ConversationStore {
	return &ConversationStore{
		maxLength: maxLength,
		turns:     make(map[string][]types.ConversationTurn),
		locks:     make(map[string]*convLock),
		now:       time.Now,
	}
}

// Get returns a copy of the conversation, or nil when unknown.
func (s *ConversationStore) Get(id string) []types.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns[id])
}

// Exists reports whether id has any stored turns.
func (s *ConversationStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.turns[id]
	return ok
}

// Append records one user/assistant exchange and trims the conversation.
func (s *ConversationStore) Append(id, user, assistant string) {
	ts := s.now().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := append(s.turns[id],
		types.ConversationTurn{Role: types.RoleUser, Content: user, Timestamp: ts},
		types.ConversationTurn{Role: types.RoleAssistant, Content: assistant, Timestamp: ts},
	)
	if limit := 2 * s.maxLength; len(conv) > limit {
		conv = slices.Clone(conv[len(conv)-limit:])
	}
	s.turns[id] = conv
}

// Clear removes a conversation and reports whether it existed.
func (s *ConversationStore) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.turns[id]
	delete(s.turns, id)
	return ok
}

// ListIDs returns all conversation ids, sorted.
func (s *ConversationStore) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.turns))
	for id := range s.turns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// convLock lives only while some exchange holds or waits for it.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// Exclusive runs fn while holding the lock for id, so a read of the history
// and the append that follows it are not interleaved with another exchange
// on the same conversation.
func (s *ConversationStore) Exclusive(id string, fn func() error) error {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &convLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

func (s *ConversationStore) activeLocks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locks)
}
