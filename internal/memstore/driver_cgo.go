//go:build !purego

package memstore

import (
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3", cgo, built with fts5
)

// driverName is the database/sql driver used to open the documents
// database. The cgo build (default) uses mattn/go-sqlite3 built with the
// fts5 tag, matching the donor's primary driver.
const driverName = "sqlite3"
