package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
	"github.com/Turbo-Partners/UGCHUB-sub009/model"
)

// EnvelopeStore is the in-memory record of envelopes created through this
// service. The orchestrator itself is stateless; this is the calling layer's
// bookkeeping. In production this should be backed by the marketplace
// database.
type EnvelopeStore struct {
	envelopes    map[string]*model.EnvelopeRecord
	mu           sync.RWMutex
	maxEnvelopes int // 0 = unlimited
}

var (
	globalStore *EnvelopeStore
	storeOnce   sync.Once
)

// InitEnvelopeStore initializes the global envelope store with configuration
func InitEnvelopeStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		maxEnvelopes := cfg.MaxEnvelopes
		if maxEnvelopes < 0 {
			maxEnvelopes = 0
		}
		globalStore = &EnvelopeStore{
			envelopes:    make(map[string]*model.EnvelopeRecord),
			maxEnvelopes: maxEnvelopes,
		}
		slog.Info("envelope store initialized", "max_envelopes", maxEnvelopes)
	})
}

// GetEnvelopeStore returns the global envelope store
func GetEnvelopeStore() *EnvelopeStore {
	if globalStore == nil {
		globalStore = &EnvelopeStore{
			envelopes:    make(map[string]*model.EnvelopeRecord),
			maxEnvelopes: 100,
		}
	}
	return globalStore
}

func (s *EnvelopeStore) Save(record *model.EnvelopeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.UpdatedAt = time.Now()
	s.envelopes[record.ID] = record

	s.cleanupIfNeeded()
}

func (s *EnvelopeStore) Get(id string) *model.EnvelopeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envelopes[id]
}

func (s *EnvelopeStore) GetByTenant(tenant string) []*model.EnvelopeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.EnvelopeRecord
	for _, r := range s.envelopes {
		if r.Tenant == tenant {
			result = append(result, r)
		}
	}
	return result
}

func (s *EnvelopeStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.envelopes, id)
}

func (s *EnvelopeStore) UpdateStatus(id, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.envelopes[id]; ok {
		r.Status = status
		r.ErrorMsg = errMsg
		r.UpdatedAt = time.Now()
	}
}

// cleanupIfNeeded removes the oldest records when the store exceeds
// maxEnvelopes. Must be called with lock held.
func (s *EnvelopeStore) cleanupIfNeeded() {
	if s.maxEnvelopes <= 0 {
		return
	}

	if len(s.envelopes) <= s.maxEnvelopes {
		return
	}

	records := make([]*model.EnvelopeRecord, 0, len(s.envelopes))
	for _, r := range s.envelopes {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	removeCount := len(records) - s.maxEnvelopes
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old envelope record",
			"envelope_id", records[i].ID,
			"created_at", records[i].CreatedAt,
		)
		delete(s.envelopes, records[i].ID)
	}
}

// Count returns the number of envelope records in the store
func (s *EnvelopeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.envelopes)
}
