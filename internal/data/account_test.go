package data

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"hawx.me/code/assert"
)

func openTestDatabase(t *testing.T) *Database {
	db, err := Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestProvisionCreatesAccount(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)

	account, err := db.Provision(ctx, Identity{
		Provider:  "twitter",
		Subject:   "12345",
		Name:      "John Doe",
		Handle:    "johndoe",
		AvatarURL: "https://pbs.example.com/john.jpg",
		Email:     "john@example.com",
	})
	assert.Nil(t, err)
	assert.NotEqual(t, "", account.ID)
	assert.Equal(t, "John Doe", account.DisplayName)
	assert.Equal(t, "john@example.com", account.Email)
	assert.Equal(t, "https://pbs.example.com/john.jpg", account.AvatarURL)

	found, err := db.Account(ctx, account.ID)
	assert.Nil(t, err)
	assert.Equal(t, account.ID, found.ID)

	identities, err := db.Identities(ctx, account.ID)
	assert.Nil(t, err)
	assert.Len(t, identities, 1)
	if len(identities) == 1 {
		assert.Equal(t, "twitter", identities[0].Provider)
		assert.Equal(t, "12345", identities[0].Subject)
		assert.Equal(t, "johndoe", identities[0].Handle)
	}
}

func TestProvisionReturnsSameAccountForSameIdentity(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)

	first, err := db.Provision(ctx, Identity{Provider: "twitter", Subject: "1", Name: "Old Name", Handle: "old"})
	assert.Nil(t, err)

	second, err := db.Provision(ctx, Identity{Provider: "twitter", Subject: "1", Name: "New Name", Handle: "new"})
	assert.Nil(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "New Name", second.DisplayName)

	identities, _ := db.Identities(ctx, first.ID)
	assert.Len(t, identities, 1)
	if len(identities) == 1 {
		assert.Equal(t, "new", identities[0].Handle)
	}
}

func TestProvisionConcurrentFirstLogins(t *testing.T) {
	ctx := context.Background()

	db, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	identity := Identity{Provider: "twitter", Subject: "12345", Name: "John Doe"}

	const logins = 8
	var (
		wg   sync.WaitGroup
		ids  = make([]string, logins)
		errs = make([]error, logins)
	)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account, err := db.Provision(ctx, identity)
			ids[i], errs[i] = account.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < logins; i++ {
		assert.Nil(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var accounts int
	assert.Nil(t, db.db.QueryRow(`SELECT COUNT(*) FROM account`).Scan(&accounts))
	assert.Equal(t, 1, accounts)
}

func TestProvisionKeepsEmailWhenProviderOmitsIt(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)

	first, _ := db.Provision(ctx, Identity{Provider: "twitter", Subject: "1", Email: "john@example.com"})
	second, err := db.Provision(ctx, Identity{Provider: "twitter", Subject: "1"})
	assert.Nil(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "john@example.com", second.Email)
}

func TestProvisionLinksByEmail(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)

	twitter, _ := db.Provision(ctx, Identity{Provider: "twitter", Subject: "1", Handle: "john", Email: "john@example.com"})
	google, err := db.Provision(ctx, Identity{Provider: "google", Subject: "abc", Email: "john@example.com"})
	assert.Nil(t, err)
	assert.Equal(t, twitter.ID, google.ID)

	identities, _ := db.Identities(ctx, twitter.ID)
	assert.Len(t, identities, 2)
	if len(identities) == 2 {
		assert.Equal(t, "google", identities[0].Provider)
		assert.Equal(t, "twitter", identities[1].Provider)
	}
}

func TestProvisionWithoutEmailCreatesSeparateAccounts(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)

	a, _ := db.Provision(ctx, Identity{Provider: "twitter", Subject: "1"})
	b, _ := db.Provision(ctx, Identity{Provider: "twitter", Subject: "2"})

	assert.NotEqual(t, a.ID, b.ID)
}

func TestProvisionRequiresSubject(t *testing.T) {
	db := openTestDatabase(t)

	_, err := db.Provision(context.Background(), Identity{Provider: "twitter"})
	assert.NotNil(t, err)
}

func TestAccountUnknown(t *testing.T) {
	db := openTestDatabase(t)

	_, err := db.Account(context.Background(), "nope")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := openTestDatabase(t)

	assert.Nil(t, db.migrate())

	version, err := db.schemaVersion()
	assert.Nil(t, err)
	assert.Equal(t, 2, version)
}
