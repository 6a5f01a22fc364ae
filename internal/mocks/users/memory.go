// Package users contains an in-memory UserRepository for unit tests.
package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/school-service/internal/domain"
	"github.com/spec-kit/school-service/internal/repository"
)

var _ repository.UserRepository = (*MemoryUserRepository)(nil)

// MemoryUserRepository mirrors the Postgres repository semantics, including
// pgx.ErrNoRows on misses and the unique email constraint.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User

	// Reads and Writes count repository calls for resource assertions.
	Reads  int
	Writes int
}

// NewMemoryUserRepository creates an empty store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int64]*domain.User)}
}

func clone(u *domain.User) *domain.User {
	cp := *u
	if u.SessionToken != nil {
		token := *u.SessionToken
		cp.SessionToken = &token
	}
	if u.SessionIssuedAt != nil {
		at := *u.SessionIssuedAt
		cp.SessionIssuedAt = &at
	}
	return &cp
}

func (m *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	m.nextID++
	now := time.Now()
	user.ID = m.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = clone(user)
	return nil
}

func (m *MemoryUserRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++

	user, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return clone(user), nil
}

func (m *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++

	for _, user := range m.users {
		if user.Email == email {
			return clone(user), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MemoryUserRepository) GetBySessionToken(_ context.Context, token string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++

	for _, user := range m.users {
		if user.SessionToken != nil && *user.SessionToken == token {
			return clone(user), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MemoryUserRepository) SetSessionToken(_ context.Context, id int64, token *string, issuedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++

	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if token == nil {
		user.SessionToken = nil
		user.SessionIssuedAt = nil
		return nil
	}
	value := *token
	user.SessionToken = &value
	if issuedAt != nil {
		at := *issuedAt
		user.SessionIssuedAt = &at
	}
	return nil
}

func (m *MemoryUserRepository) ClearSessionToken(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++

	for _, user := range m.users {
		if user.SessionToken != nil && *user.SessionToken == token {
			user.SessionToken = nil
			user.SessionIssuedAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryUserRepository) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++

	user, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *MemoryUserRepository) UpdateStatus(_ context.Context, id int64, status domain.AccountStatus) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++

	user, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	user.Status = status
	if status != domain.AccountStatusActive {
		user.SessionToken = nil
		user.SessionIssuedAt = nil
	}
	return clone(user), nil
}

// Seed inserts a user directly, bypassing counters.
func (m *MemoryUserRepository) Seed(user *domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	user.ID = m.nextID
	m.users[user.ID] = clone(user)
	return user
}

// Snapshot returns a copy of the stored user, or nil.
func (m *MemoryUserRepository) Snapshot(id int64) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil
	}
	return clone(user)
}

// ResetCounters zeroes Reads and Writes.
func (m *MemoryUserRepository) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads, m.Writes = 0, 0
}
