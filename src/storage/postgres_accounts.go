package storage

import (
	"database/sql"
	"fmt"
	"regexp"

	"multisig-observer/src/utils"
)

// Account entries of a watch may reference a Postgres column instead of
// naming an account: "schema.table.field" loads every non-empty value of
// that column.
var accountRefRegex = regexp.MustCompile(`^(\w+)\.(\w+)\.(\w+)$`)

// AccountRef describes where one configured account entry came from.
type AccountRef struct {
	Account   string
	Type      string // "classic" or "postgres_ref"
	RefSchema string
	RefTable  string
	RefField  string
	Watch     string
}

// -----------------------------------------------------------------------------

// ParseAccountRef reports whether entry is a column reference.
func ParseAccountRef(entry string) (AccountRef, bool) {
	matches := accountRefRegex.FindStringSubmatch(entry)
	if len(matches) != 4 {
		return AccountRef{}, false
	}
	return AccountRef{
		Account:   entry,
		Type:      "postgres_ref",
		RefSchema: matches[1],
		RefTable:  matches[2],
		RefField:  matches[3],
	}, true
}

// -----------------------------------------------------------------------------

// ExpandAccounts resolves column references in a watch's account list,
// records the result in watch_accounts and returns the plain account IDs.
func (d *PostgresDB) ExpandAccounts(watch string, entries []string) ([]string, error) {
	var accounts []string
	var refs []AccountRef

	for _, entry := range entries {
		ref, ok := ParseAccountRef(entry)
		if !ok {
			accounts = append(accounts, entry)
			refs = append(refs, AccountRef{Account: entry, Type: "classic", Watch: watch})
			continue
		}

		ref.Watch = watch
		refs = append(refs, ref)

		loaded, err := d.AccountsFromTable(ref.RefSchema, ref.RefTable, ref.RefField)
		if err != nil {
			return utils.Dedupe(accounts), fmt.Errorf("failed to load accounts from %s: %w", entry, err)
		}
		for _, account := range loaded {
			accounts = append(accounts, account)
			refs = append(refs, AccountRef{Account: account, Type: "classic", Watch: watch})
		}
	}

	accounts = utils.Dedupe(accounts)
	if err := d.RegisterAccounts(watch, refs); err != nil {
		return accounts, fmt.Errorf("failed to register accounts: %w", err)
	}
	return accounts, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RegisterAccounts(watch string, refs []AccountRef) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableName := fmt.Sprintf(`"%s"."watch_accounts"`, d.Schema)
	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE watch = $1`, tableName), watch); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (watch, account, type, ref_schema, ref_table, ref_field, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (watch, account) DO UPDATE SET
			type = EXCLUDED.type,
			ref_schema = EXCLUDED.ref_schema,
			ref_table = EXCLUDED.ref_table,
			ref_field = EXCLUDED.ref_field,
			updated_at = EXCLUDED.updated_at
	`, tableName)

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := d.Clock.Now().UTC()
	for _, r := range refs {
		if _, err := stmt.Exec(watch, r.Account, r.Type, r.RefSchema, r.RefTable, r.RefField, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) AccountsFromTable(schema, table, field string) ([]string, error) {
	// Identifiers come from ParseAccountRef, so only \w characters reach here.
	query := fmt.Sprintf(`SELECT "%s" FROM "%s"."%s"`, field, schema, table)

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s.Valid && s.String != "" {
			accounts = append(accounts, s.String)
		}
	}

	return accounts, rows.Err()
}
