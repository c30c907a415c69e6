//go:build !sqlite_fts5

package storage

// The schema declares an FTS5 virtual table, and mattn/go-sqlite3 compiles
// the FTS5 extension only when the sqlite_fts5 build tag is set. Without the
// tag every build would fail at runtime with "no such module: fts5" the
// moment the store opens, so the requirement is surfaced at compile time
// instead. Build and test with:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
var _ = Lexical_search_requires_building_with_tags_sqlite_fts5
