package main

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	// rely on migrations to create tables; just verify connectivity
	if err := d.Ping(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

// translatePGError maps postgres error codes onto the shared taxonomy so
// callers never see raw driver errors. 23505 unique, 23502 not-null, 23503
// foreign key; class 08 is connection trouble.
func translatePGError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return errDuplicateEmail
		case pqErr.Code == "23502":
			return errMissingFields()
		case pqErr.Code == "23503":
			return errValidation("Referenced record does not exist")
		case pqErr.Code.Class() == "08":
			return errDBConnection(err)
		}
	}
	return errDatabase(err)
}

const pgUserColumns = `id,email,password_hash,created_at,updated_at`

func (p *PostgresDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, translatePGError(err)
	}
	return &u, nil
}

func (p *PostgresDB) CreateUser(email, passwordHash string) (*User, error) {
	row := p.db.QueryRow(`INSERT INTO users(email,password_hash,created_at,updated_at)
		VALUES($1,$2,now(),now()) RETURNING `+pgUserColumns, email, passwordHash)
	u, err := p.scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errDatabase(sql.ErrNoRows)
	}
	return u, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT `+pgUserColumns+` FROM users WHERE email = $1`, email))
}

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id))
}

func (p *PostgresDB) UpdateUserEmail(id int64, email string) (*User, error) {
	row := p.db.QueryRow(`UPDATE users SET email = $1, updated_at = now()
		WHERE id = $2 RETURNING `+pgUserColumns, email, id)
	u, err := p.scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errNoSuchUser
	}
	return u, nil
}

func (p *PostgresDB) UpdateUserPassword(id int64, passwordHash string) (*User, error) {
	row := p.db.QueryRow(`UPDATE users SET password_hash = $1, updated_at = now()
		WHERE id = $2 RETURNING `+pgUserColumns, passwordHash, id)
	u, err := p.scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errNoSuchUser
	}
	return u, nil
}

func (p *PostgresDB) DeleteUser(id int64) error {
	res, err := p.db.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translatePGError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNoSuchUser
	}
	return nil
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
