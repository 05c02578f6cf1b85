package store

import (
	"database/sql"
	"errors"
	"time"
)

// SaveCredential replaces the stored credential.
func (db *DB) SaveCredential(c *Credential) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO credentials (id, token, subject, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			subject = excluded.subject,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		c.Token, c.Subject, c.ExpiresAt, now)
	return err
}

// LoadCredential returns the stored credential, or nil when none is stored.
func (db *DB) LoadCredential() (*Credential, error) {
	var c Credential
	err := db.QueryRow(`SELECT token, subject, expires_at, updated_at FROM credentials WHERE id = 1`).
		Scan(&c.Token, &c.Subject, &c.ExpiresAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCredential removes the stored credential. Deleting when none exists is not an error.
func (db *DB) DeleteCredential() error {
	_, err := db.Exec(`DELETE FROM credentials WHERE id = 1`)
	return err
}
