package handler_test

import (
	"context"
	"strings"
	"sync"

	"github.com/socialblog/auth-service/internal/auth/domain"
	autherror "github.com/socialblog/auth-service/internal/errors"
)

// memStore is an in-memory domain.UserRepository for driving the HTTP layer end to end.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	accounts   map[int64]*domain.Account
	challenges map[string]*domain.PendingLoginChallenge
	refresh    map[string]*domain.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		nextID:     1,
		accounts:   make(map[int64]*domain.Account),
		challenges: make(map[string]*domain.PendingLoginChallenge),
		refresh:    make(map[string]*domain.RefreshToken),
	}
}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	return &cp
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, nil
}

func (s *memStore) Create(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return autherror.ErrEmailAlreadyInUse
		}
	}
	account.ID = s.nextID
	s.nextID++
	if account.RoleName == "" {
		account.RoleName = "user"
	}
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (s *memStore) UpdateAccount(_ context.Context, id int64, update domain.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	if update.FullName != nil {
		a.FullName = update.FullName
	}
	if update.LastLoginIP != nil {
		ip := *update.LastLoginIP
		a.LastLoginIP = &ip
	}
	if update.LastLoginAt != nil {
		at := *update.LastLoginAt
		a.LastLoginAt = &at
	}
	return nil
}

func (s *memStore) Lock(_ context.Context, id int64, lock domain.AccountLock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	a.LockedAt = &lock.LockedAt
	a.LockedUntil = &lock.LockedUntil
	a.LockReason = &lock.Reason
	a.LockedBy = &lock.LockedBy
	return true, nil
}

func (s *memStore) Unlock(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	a.ClearLock()
	return true, nil
}

func (s *memStore) CreateChallenge(_ context.Context, c *domain.PendingLoginChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}

func (s *memStore) GetChallengeByToken(_ context.Context, token string) (*domain.PendingLoginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		if c.Token == token {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) DeleteChallenge(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return false, nil
	}
	delete(s.challenges, id)
	return true, nil
}

func (s *memStore) StoreRefreshToken(_ context.Context, rt *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rt
	s.refresh[rt.Token] = &cp
	return nil
}

func (s *memStore) GetRefreshToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.refresh[token]; ok {
		cp := *rt
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) DeleteRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
	return nil
}

func (s *memStore) onlyChallenge() *domain.PendingLoginChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		cp := *c
		return &cp
	}
	return nil
}

func (s *memStore) challengeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

func (s *memStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

func (s *memStore) seed(a *domain.Account) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextID
	s.nextID++
	s.accounts[a.ID] = copyAccount(a)
	return a
}

type sentMail struct {
	to, subject, html string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}
