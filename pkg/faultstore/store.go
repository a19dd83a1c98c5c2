// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package faultstore keeps fault records pulled from the recorder in SQLite.
// Record bodies are stored as CBOR.
package faultstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one fault record as received from the peer
type Record struct {
	ID         int64     `cbor:"-" json:"id"`
	Data       string    `cbor:"1,keyasint" json:"data"`
	Origin     string    `cbor:"2,keyasint" json:"origin"`
	ReceivedAt time.Time `cbor:"3,keyasint" json:"receivedAt"`
	Stamp      string    `cbor:"4,keyasint,omitempty" json:"stamp,omitempty"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Store wraps the fault database
type Store struct {
	db *sql.DB
}

// Open opens the database at path and creates the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS faults (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			origin TEXT NOT NULL,
			received_at TEXT NOT NULL,
			body BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_faults_received ON faults(received_at);
	`)
	return err
}

// Add stores r and returns its id
func (s *Store) Add(r Record) (int64, error) {
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now()
	}
	body, err := encMode.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("encode fault record: %w", err)
	}
	res, err := s.db.Exec("INSERT INTO faults (origin, received_at, body) VALUES (?, ?, ?)",
		r.Origin, r.ReceivedAt.UTC().Format(time.RFC3339Nano), body)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query("SELECT id, body FROM faults ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id   int64
			body []byte
			r    Record
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		if err := cbor.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("decode fault record %d: %w", id, err)
		}
		r.ID = id
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored records
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM faults").Scan(&n)
	return n, err
}

// Clear deletes every record and returns how many were removed
func (s *Store) Clear() (int64, error) {
	res, err := s.db.Exec("DELETE FROM faults")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
