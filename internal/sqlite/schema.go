package sqlite

import (
	"fmt"
	"strings"
)

// Catalog DDL. Store and index tables are named by store id so that any
// store or index name is safe.
const (
	createMeta = `CREATE TABLE IF NOT EXISTS larder_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	createStores = `CREATE TABLE IF NOT EXISTS larder_stores (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    schema TEXT NOT NULL,
    seq INTEGER NOT NULL DEFAULT 0
);`
)

// catalogDDL lists the statements run on every open.
var catalogDDL = []string{
	createMeta,
	createStores,
}

const metaVersionKey = "version"

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func storeTable(id int64) string {
	return quoteIdent(fmt.Sprintf("store_%d", id))
}

func indexTable(id int64, pos int) string {
	return quoteIdent(fmt.Sprintf("store_%d_index_%d", id, pos))
}

func uniqueIndexName(id int64, pos int) string {
	return quoteIdent(fmt.Sprintf("store_%d_unique_%d", id, pos))
}

// storeDDL returns the statements that create a store table and its index
// tables. Unique indexes get a UNIQUE index on the index value so SQLite
// enforces them.
func storeDDL(id int64, uniques []bool) []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
    pk BLOB PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;`, storeTable(id)),
	}
	for pos, unique := range uniques {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE %s (
    ik BLOB NOT NULL,
    pk BLOB NOT NULL,
    PRIMARY KEY (ik, pk)
) WITHOUT ROWID;`, indexTable(id, pos)))
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX %s ON %s(pk);`,
			quoteIdent(fmt.Sprintf("store_%d_index_%d_pk", id, pos)), indexTable(id, pos)))
		if unique {
			stmts = append(stmts, fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s(ik);`,
				uniqueIndexName(id, pos), indexTable(id, pos)))
		}
	}
	return stmts
}
