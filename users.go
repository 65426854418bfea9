package main

import (
	"errors"
	"fmt"
)

// Users implements the account lifecycle on top of a DB adapter: input
// validation, email normalization, hashing, and mapping of store sentinels
// onto the API error taxonomy. Uniqueness races between concurrent
// registrations are resolved by the store's constraint, not by a pre-check.
type Users struct {
	db             DB
	minPasswordLen int
}

func NewUsers(db DB, minPasswordLen int) *Users {
	return &Users{db: db, minPasswordLen: minPasswordLen}
}

// Create registers a new account.
func (s *Users) Create(email, password string) (*User, error) {
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, errMissingFields(missing...)
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, errInvalidEmail()
	}
	if len(password) < s.minPasswordLen {
		return nil, errInvalidPassword(fmt.Sprintf("Password must be at least %d characters", s.minPasswordLen))
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.db.CreateUser(email, hash)
	if err != nil {
		if errors.Is(err, errDuplicateEmail) {
			return nil, errConflict("User with this email already exists")
		}
		return nil, err
	}
	return u, nil
}

func (s *Users) FindByID(id int64) (*User, error) {
	return s.db.GetUserByID(id)
}

func (s *Users) FindByEmail(email string) (*User, error) {
	return s.db.GetUserByEmail(normalizeEmail(email))
}

// VerifyPassword reports whether candidate matches the stored hash. Constant
// time comes from bcrypt itself.
func (s *Users) VerifyPassword(u *User, candidate string) bool {
	if u == nil || candidate == "" {
		return false
	}
	return comparePassword(u.PasswordHash, candidate)
}

// UpdatePassword re-validates and re-hashes. The swap is a single UPDATE, so
// there is no window where both old and new passwords verify.
func (s *Users) UpdatePassword(u *User, newPassword string) (*User, error) {
	if newPassword == "" {
		return nil, errMissingFields("newPassword")
	}
	if len(newPassword) < s.minPasswordLen {
		return nil, errInvalidPassword(fmt.Sprintf("Password must be at least %d characters", s.minPasswordLen))
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.db.UpdateUserPassword(u.ID, hash)
}

// Update applies the whitelisted mutable fields. Email is the only one.
func (s *Users) Update(u *User, fields map[string]string) (*User, error) {
	email, ok := fields["email"]
	if !ok {
		return nil, errValidation("No updatable fields supplied", "email")
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, errInvalidEmail()
	}
	updated, err := s.db.UpdateUserEmail(u.ID, email)
	if err != nil {
		if errors.Is(err, errDuplicateEmail) {
			return nil, errConflict("User with this email already exists")
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes a persisted account.
func (s *Users) Delete(u *User) error {
	if u == nil || u.ID == 0 {
		return errValidation("Account has never been persisted")
	}
	return s.db.DeleteUser(u.ID)
}
