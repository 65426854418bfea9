package main

import (
	"errors"
	"sync"
	"time"
)

// Adapter-level sentinels. Each adapter translates its driver's error
// vocabulary into these; nothing above the DB interface ever inspects a
// driver error directly.
var (
	errDuplicateEmail = errors.New("email already taken")
	errNoSuchUser     = errors.New("user not found")
)

// DB is the narrow store surface the credential service consumes. Lookups
// return (nil, nil) when the record is absent; callers decide semantics.
type DB interface {
	CreateUser(email, passwordHash string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id int64) (*User, error)
	UpdateUserEmail(id int64, email string) (*User, error)
	UpdateUserPassword(id int64, passwordHash string) (*User, error)
	DeleteUser(id int64) error
}

// Memory DB. Used by tests and for local runs without a database; the mutex
// matters because net/http serves requests on real OS threads.
type MemDB struct {
	mu      sync.Mutex
	byEmail map[string]*User
	byID    map[int64]*User
	seq     int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{byEmail: map[string]*User{}, byID: map[int64]*User{}, seq: 1}
}

func (m *MemDB) CreateUser(email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return nil, errDuplicateEmail
	}
	now := time.Now()
	u := &User{ID: m.seq, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.seq++
	m.byEmail[email] = u
	m.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) UpdateUserEmail(id int64, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, errNoSuchUser
	}
	if other, taken := m.byEmail[email]; taken && other.ID != id {
		return nil, errDuplicateEmail
	}
	delete(m.byEmail, u.Email)
	u.Email = email
	u.UpdatedAt = time.Now()
	m.byEmail[email] = u
	cp := *u
	return &cp, nil
}

func (m *MemDB) UpdateUserPassword(id int64, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, errNoSuchUser
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *MemDB) DeleteUser(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return errNoSuchUser
	}
	delete(m.byEmail, u.Email)
	delete(m.byID, id)
	return nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }
