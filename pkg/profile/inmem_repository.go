package profile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryAccountRepository implements AccountRepository using in-memory storage
type InMemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

// NewInMemoryAccountRepository creates a new in-memory account repository
func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{
		accounts: make(map[uuid.UUID]Account),
	}
}

func (r *InMemoryAccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *InMemoryAccountRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	if err := ValidateRole(params.Role); err != nil {
		return Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	now := time.Now().UTC()
	account := Account{
		ID:        id,
		Email:     params.Email,
		Role:      params.Role,
		OrgID:     params.OrgID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.accounts[id] = account
	return account, nil
}

func (r *InMemoryAccountRepository) SetMfaMethod(ctx context.Context, id uuid.UUID, method string) error {
	if err := ValidateMfaMethod(method); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.MfaMethod = method
	account.UpdatedAt = time.Now().UTC()
	r.accounts[id] = account
	return nil
}
