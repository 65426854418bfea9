package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`)
	return err
}

// translateSQLiteError maps the driver's error vocabulary onto the shared
// taxonomy. modernc.org/sqlite exposes constraint failures only through the
// error text.
func translateSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errDuplicateEmail
	}
	return errDatabase(err)
}

func (s *SQLiteDB) CreateUser(email, passwordHash string) (*User, error) {
	now := time.Now().UTC().Format(sqliteTimeLayout)
	res, err := s.db.Exec(`INSERT INTO users(email,password_hash,created_at,updated_at) VALUES(?,?,?,?)`,
		email, passwordHash, now, now)
	if err != nil {
		return nil, translateSQLiteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errDatabase(err)
	}
	return s.GetUserByID(id)
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var created, updated string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errDatabase(err)
	}
	var err error
	if u.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
		return nil, errDatabase(fmt.Errorf("parse created_at: %w", err))
	}
	if u.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return nil, errDatabase(fmt.Errorf("parse updated_at: %w", err))
	}
	return &u, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id,email,password_hash,created_at,updated_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id,email,password_hash,created_at,updated_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) UpdateUserEmail(id int64, email string) (*User, error) {
	now := time.Now().UTC().Format(sqliteTimeLayout)
	res, err := s.db.Exec(`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`, email, now, id)
	if err != nil {
		return nil, translateSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errNoSuchUser
	}
	return s.GetUserByID(id)
}

func (s *SQLiteDB) UpdateUserPassword(id int64, passwordHash string) (*User, error) {
	now := time.Now().UTC().Format(sqliteTimeLayout)
	res, err := s.db.Exec(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, now, id)
	if err != nil {
		return nil, translateSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errNoSuchUser
	}
	return s.GetUserByID(id)
}

func (s *SQLiteDB) DeleteUser(id int64) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return translateSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNoSuchUser
	}
	return nil
}

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
