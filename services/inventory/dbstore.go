package inventory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// DBStore persists the ledger as a single-row JSON blob per account in
// sqlite (or a libsql server). The document is small and always read
// and written whole, so a blob beats a normalized schema here.
type DBStore struct {
	db      *sql.DB
	account string
}

func NewDBStore(database *sql.DB, account string) DBStore {
	return DBStore{db: database, account: account}
}

func (s DBStore) Load() (*Document, error) {
	var raw string
	err := s.db.QueryRow(
		`select document from inventory_document where account = ?`,
		s.account,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory document: %w", err)
	}

	doc := &Document{}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, fmt.Errorf("failed to parse inventory document: %w", err)
	}
	return doc, nil
}

func (s DBStore) Save(doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`insert into inventory_document (account, version, document, last_saved)
		values (?, ?, ?, ?)
		on conflict (account) do update set
			version = excluded.version,
			document = excluded.document,
			last_saved = excluded.last_saved`,
		s.account, doc.Version, string(raw), doc.LastSaved,
	)
	if err != nil {
		return fmt.Errorf("failed to save inventory document: %w", err)
	}
	return nil
}
