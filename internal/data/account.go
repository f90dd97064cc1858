package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identity is who a provider says somebody is. It is produced at the end of a
// successful login and handed to Provision; nothing keeps hold of it after.
type Identity struct {
	Provider  string
	Subject   string
	Name      string
	Handle    string
	AvatarURL string
	Email     string

	LastLoginAt time.Time
}

// Account is a local user of the countdown platform. An account can have many
// identities linked to it, at most one per provider subject.
type Account struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Provision finds or creates the account for identity. An identity that has
// been seen before returns its linked account; otherwise an account with the
// same e-mail address is linked, and failing that a new account is created.
// The account's profile is refreshed from identity every time.
//
// If another first login for the same identity links it first, the lookup is
// retried so both end up with the same account.
func (d *Database) Provision(ctx context.Context, identity Identity) (Account, error) {
	if identity.Provider == "" || identity.Subject == "" {
		return Account{}, errors.New("identity must have a provider and subject")
	}

	account, err := d.provision(ctx, identity)
	if errors.Is(err, errIdentityLinked) {
		account, err = d.provision(ctx, identity)
	}

	return account, err
}

// errIdentityLinked is returned by provision when identity was linked by
// someone else between looking it up and inserting it.
var errIdentityLinked = errors.New("identity linked concurrently")

func (d *Database) provision(ctx context.Context, identity Identity) (Account, error) {
	now := time.Now().UTC()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	var accountID string
	err = tx.QueryRowContext(ctx, `SELECT AccountID FROM identity WHERE Provider = ? AND Subject = ?`,
		identity.Provider,
		identity.Subject).Scan(&accountID)

	switch {
	case err == nil:
		if _, err = tx.ExecContext(ctx, `UPDATE identity SET Handle = ?, LastLoginAt = ? WHERE Provider = ? AND Subject = ?`,
			identity.Handle,
			now,
			identity.Provider,
			identity.Subject); err != nil {
			return Account{}, fmt.Errorf("update identity: %w", err)
		}

	case errors.Is(err, sql.ErrNoRows):
		if accountID, err = d.findOrCreateAccount(ctx, tx, identity, now); err != nil {
			return Account{}, err
		}

		result, err := tx.ExecContext(ctx, `INSERT INTO identity(Provider, Subject, AccountID, Handle, CreatedAt, LastLoginAt) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(Provider, Subject) DO NOTHING`,
			identity.Provider,
			identity.Subject,
			accountID,
			identity.Handle,
			now,
			now)
		if err != nil {
			return Account{}, fmt.Errorf("insert identity: %w", err)
		}
		// Rolling back also drops any account findOrCreateAccount made.
		if n, err := result.RowsAffected(); err != nil {
			return Account{}, fmt.Errorf("insert identity: %w", err)
		} else if n == 0 {
			return Account{}, errIdentityLinked
		}

	default:
		return Account{}, fmt.Errorf("find identity: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE account SET DisplayName = ?, AvatarURL = ?, Email = CASE WHEN ? = '' THEN Email ELSE ? END, UpdatedAt = ? WHERE ID = ?`,
		identity.Name,
		identity.AvatarURL,
		identity.Email,
		identity.Email,
		now,
		accountID); err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Account{}, err
	}

	return d.Account(ctx, accountID)
}

func (d *Database) findOrCreateAccount(ctx context.Context, tx *sql.Tx, identity Identity, now time.Time) (string, error) {
	var accountID string

	if identity.Email != "" {
		err := tx.QueryRowContext(ctx, `SELECT ID FROM account WHERE Email = ? ORDER BY CreatedAt LIMIT 1`,
			identity.Email).Scan(&accountID)
		if err == nil {
			return accountID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("find account by email: %w", err)
		}
	}

	accountID = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO account(ID, DisplayName, Email, AvatarURL, CreatedAt, UpdatedAt) VALUES (?, ?, ?, ?, ?, ?)`,
		accountID,
		identity.Name,
		identity.Email,
		identity.AvatarURL,
		now,
		now); err != nil {
		return "", fmt.Errorf("insert account: %w", err)
	}

	return accountID, nil
}

// Account returns the account with id, or sql.ErrNoRows.
func (d *Database) Account(ctx context.Context, id string) (account Account, err error) {
	row := d.db.QueryRowContext(ctx, `SELECT ID, DisplayName, Email, AvatarURL, CreatedAt, UpdatedAt FROM account WHERE ID = ?`,
		id)

	err = row.Scan(
		&account.ID,
		&account.DisplayName,
		&account.Email,
		&account.AvatarURL,
		&account.CreatedAt,
		&account.UpdatedAt)
	return
}

// Identities lists the provider identities linked to an account.
func (d *Database) Identities(ctx context.Context, accountID string) (identities []Identity, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT identity.Provider, identity.Subject, identity.Handle, identity.LastLoginAt, account.DisplayName, account.Email, account.AvatarURL
		FROM identity
		JOIN account ON identity.AccountID = account.ID
		WHERE identity.AccountID = ?
		ORDER BY identity.Provider`,
		accountID)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var identity Identity
		if err = rows.Scan(
			&identity.Provider,
			&identity.Subject,
			&identity.Handle,
			&identity.LastLoginAt,
			&identity.Name,
			&identity.Email,
			&identity.AvatarURL,
		); err != nil {
			return
		}

		identities = append(identities, identity)
	}

	err = rows.Err()
	return
}
