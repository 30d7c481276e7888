package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger"
)

// Store implements ledger.Store using in-memory storage
type Store struct {
	mu        sync.RWMutex
	issuances map[uuid.UUID]*ledger.Issuance
}

// New creates a new in-memory store
func New() ledger.Store {
	return &Store{
		issuances: make(map[uuid.UUID]*ledger.Issuance),
	}
}

func (s *Store) Record(ctx context.Context, issuance *ledger.Issuance) error {
	if err := issuance.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid external modifications
	c := *issuance
	s.issuances[issuance.ID] = &c
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*ledger.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuance, ok := s.issuances[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	c := *issuance
	return &c, nil
}

func (s *Store) List(ctx context.Context, bucket string, limit int) ([]*ledger.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.Issuance
	for _, issuance := range s.issuances {
		if bucket != "" && issuance.Bucket != bucket {
			continue
		}
		c := *issuance
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit = ledger.NormalizeLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
