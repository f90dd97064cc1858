package data

import (
	"database/sql"
	"strconv"
	"strings"

	// register sqlite3 for database/sql
	_ "github.com/mattn/go-sqlite3"
)

// Database stores the accounts that people sign in to, and which provider
// identities are linked to each of them.
type Database struct {
	db *sql.DB
}

// Open connects to the sqlite database at path, creating it if needed. Write
// transactions take the database lock when they begin, so concurrent logins
// wait for each other instead of failing with a busy error.
func Open(path string) (*Database, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	sqlite, err := sql.Open("sqlite3", path+sep+"_txlock=immediate")
	if err != nil {
		return nil, err
	}

	db := &Database{db: sqlite}

	return db, db.migrate()
}

func (d *Database) migrate() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS account (
			ID          TEXT PRIMARY KEY,
			DisplayName TEXT,
			Email       TEXT,
			AvatarURL   TEXT,
			CreatedAt   DATETIME,
			UpdatedAt   DATETIME
		);

		CREATE TABLE IF NOT EXISTS identity (
			Provider  TEXT,
			Subject   TEXT,
			AccountID TEXT,
			Handle    TEXT,
			CreatedAt DATETIME,
			PRIMARY KEY (Provider, Subject),
			FOREIGN KEY (AccountID) REFERENCES account(ID)
		);
`)
	if err != nil {
		return err
	}

	version, err := d.schemaVersion()
	if err != nil {
		return err
	}

	stmts := []string{
		`CREATE INDEX IF NOT EXISTS account_email ON account(Email);`,
		`ALTER TABLE identity ADD COLUMN LastLoginAt DATETIME;`,
	}

	for _, stmt := range stmts[version:] {
		_, err := d.db.Exec(stmt)
		if err != nil {
			return err
		}
	}

	return d.setSchemaVersion(len(stmts))
}

func (d *Database) schemaVersion() (int, error) {
	row := d.db.QueryRow("PRAGMA user_version")

	var version int
	err := row.Scan(&version)
	return version, err
}

func (d *Database) setSchemaVersion(version int) error {
	_, err := d.db.Exec("PRAGMA user_version = " + strconv.Itoa(version))
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}
