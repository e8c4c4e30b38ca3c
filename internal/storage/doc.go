// Package storage persists the collation buffer.
//
// Two backends exist: "file" keeps one indented JSON document that a human
// can read and edit, "sqlite" keeps the same data in a SQLite database.
// Both rewrite the full buffer on every Save.
package storage
