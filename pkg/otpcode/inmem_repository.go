package otpcode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCodeRepository implements CodeRepository using in-memory storage
type InMemoryCodeRepository struct {
	mu       sync.RWMutex
	codes    map[uuid.UUID][]Code           // accountID -> codes, newest last
	sessions map[uuid.UUID]map[string]time.Time // accountID -> sessionID -> verifiedAt
}

// NewInMemoryCodeRepository creates a new in-memory code repository
func NewInMemoryCodeRepository() *InMemoryCodeRepository {
	return &InMemoryCodeRepository{
		codes:    make(map[uuid.UUID][]Code),
		sessions: make(map[uuid.UUID]map[string]time.Time),
	}
}

func (r *InMemoryCodeRepository) CreateCode(ctx context.Context, params CreateCodeParams) (Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := Code{
		ID:        uuid.New(),
		AccountID: params.AccountID,
		Code:      params.Code,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	r.codes[params.AccountID] = append(r.codes[params.AccountID], code)
	return code, nil
}

func (r *InMemoryCodeRepository) GetLatestCode(ctx context.Context, accountID uuid.UUID) (Code, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := r.codes[accountID]
	if len(codes) == 0 {
		return Code{}, ErrCodeNotFound
	}
	return codes[len(codes)-1], nil
}

func (r *InMemoryCodeRepository) ConsumeCode(ctx context.Context, codeID uuid.UUID, consumedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for accountID, codes := range r.codes {
		for i, c := range codes {
			if c.ID != codeID {
				continue
			}
			if c.ConsumedAt == nil {
				t := consumedAt
				codes[i].ConsumedAt = &t
				r.codes[accountID] = codes
			}
			return nil
		}
	}
	return ErrCodeNotFound
}

func (r *InMemoryCodeRepository) InvalidateCodes(ctx context.Context, accountID uuid.UUID, consumedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := r.codes[accountID]
	for i, c := range codes {
		if c.ConsumedAt == nil {
			t := consumedAt
			codes[i].ConsumedAt = &t
		}
	}
	r.codes[accountID] = codes
	return nil
}

func (r *InMemoryCodeRepository) MarkSessionVerified(ctx context.Context, accountID uuid.UUID, sessionID string, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[accountID]; !ok {
		r.sessions[accountID] = make(map[string]time.Time)
	}
	r.sessions[accountID][sessionID] = verifiedAt
	return nil
}

func (r *InMemoryCodeRepository) IsSessionVerified(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.sessions[accountID]
	if !ok {
		return false, nil
	}
	_, ok = sessions[sessionID]
	return ok, nil
}
