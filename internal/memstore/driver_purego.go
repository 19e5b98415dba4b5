//go:build purego

package memstore

import (
	_ "modernc.org/sqlite" // registers "sqlite", pure-Go fallback, supports FTS5
)

// driverName is the database/sql driver used to open the documents
// database. The purego build tag (go build -tags purego) selects the
// CGO-free modernc.org/sqlite driver for environments without a C toolchain,
// matching the donor's cmd/query-kb fallback driver.
const driverName = "sqlite"
