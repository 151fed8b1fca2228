// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package state provides persistence of settled counter values and the
// history of finished runs.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kortschak/countup/counter"

	// For sql.DB registration.
	_ "modernc.org/sqlite"
)

// timeFormat is a fixed width time format so that stored times sort
// lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no value is held for a counter.
var ErrNotFound = errors.New("not found")

// DB is a persistent state store.
type DB struct {
	mu    sync.Mutex
	store *sql.DB
	now   func() time.Time
	log   *slog.Logger
}

// Schema is the DB schema. The counters table holds the most recently
// settled value of each named counter and the runs table holds the
// finished runs.
const Schema = `
create table if not exists counters(
	name    TEXT NOT NULL PRIMARY KEY CHECK(name != ''),
	value   REAL NOT NULL,
	display REAL NOT NULL,
	run     TEXT NOT NULL,
	updated TEXT NOT NULL
);
create table if not exists runs(
	run      TEXT NOT NULL PRIMARY KEY,
	name     TEXT NOT NULL CHECK(name != ''),
	start    REAL NOT NULL,
	target   REAL NOT NULL,
	ticks    INTEGER NOT NULL,
	finished TEXT NOT NULL
);
`

const (
	upsert = `
insert into counters values(?, ?, ?, ?, ?)
  on conflict(name) do update set value=excluded.value, display=excluded.display, run=excluded.run, updated=excluded.updated;
`

	get = `
select value, display, run, updated from counters where name is ?;
`

	delet = `
delete from counters where name is ?;
`

	dump = `
select name, value, display, run, updated from counters;
`

	insertRun = `
insert or replace into runs values(?, ?, ?, ?, ?, ?);
`

	history = `
select run, start, target, ticks, finished from runs where name is ? order by finished desc, rowid desc limit ?;
`
)

// Open opens a DB, creating the tables if required.
// See https://pkg.go.dev/modernc.org/sqlite#Driver.Open for name handling
// details.
func Open(name string, log *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{
		store: db,
		now:   time.Now,
		log:   log.With(slog.String("component", "state")),
	}, nil
}

// Record is a persisted counter value.
type Record struct {
	Value   float64   `json:"value"`
	Display float64   `json:"display"`
	Run     uuid.UUID `json:"run"`
	Updated time.Time `json:"updated"`
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

// Set stores the value of the named counter from the provided state.
func (db *DB) Set(name string, s counter.State) error {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "set", slog.String("name", name), slog.Float64("value", s.Value))
	db.mu.Lock()
	err := db.set(db.store, name, s)
	db.mu.Unlock()
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "set", slog.String("name", name), slog.Any("error", err))
	}
	return err
}

func (db *DB) set(q querier, name string, s counter.State) error {
	_, err := q.Exec(upsert, name, s.Value, s.Display, s.Run.String(), db.now().UTC().Format(timeFormat))
	return err
}

// Get returns the record for the named counter. Get returns ErrNotFound if
// no record is found.
func (db *DB) Get(name string) (Record, error) {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "get", slog.String("name", name))
	db.mu.Lock()
	rec, err := db.get(db.store, name)
	db.mu.Unlock()
	if err != nil && err != ErrNotFound {
		db.log.LogAttrs(ctx, slog.LevelError, "get", slog.String("name", name), slog.Any("error", err))
	}
	return rec, err
}

func (*DB) get(q querier, name string) (Record, error) {
	rows, err := q.Query(get, name)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, ErrNotFound
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return Record{}, err
	}
	if rows.Next() {
		return rec, errors.New("unexpected record")
	}
	return rec, rows.Err()
}

type scanner interface {
	Scan(dst ...any) error
}

func scanRecord(row scanner, prefix ...any) (Record, error) {
	var (
		rec          Record
		run, updated string
	)
	err := row.Scan(append(prefix, &rec.Value, &rec.Display, &run, &updated)...)
	if err != nil {
		return rec, err
	}
	rec.Run, err = uuid.Parse(run)
	if err != nil {
		return rec, err
	}
	rec.Updated, err = time.Parse(timeFormat, updated)
	return rec, err
}

// Put returns the record for the named counter and sets it to the value of
// the provided state if the values differ. It returns whether a write was
// performed. If there was no previous record, old is the zero Record.
func (db *DB) Put(name string, s counter.State) (old Record, written bool, err error) {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "put", slog.String("name", name), slog.Float64("value", s.Value))
	db.mu.Lock()
	defer func() {
		db.mu.Unlock()
		if err != nil {
			db.log.LogAttrs(ctx, slog.LevelError, "put", slog.String("name", name), slog.Any("error", err))
		}
	}()
	tx, err := db.store.Begin()
	if err != nil {
		return old, false, err
	}
	old, err = db.get(tx, name)
	switch {
	case err == ErrNotFound:
	case err != nil:
		return old, false, errors.Join(err, tx.Rollback())
	case old.Value == s.Value && old.Display == s.Display:
		return old, false, tx.Rollback()
	}
	err = db.set(tx, name, s)
	if err != nil {
		return old, false, errors.Join(err, tx.Rollback())
	}
	return old, true, tx.Commit()
}

// Delete removes the record for the named counter.
func (db *DB) Delete(name string) error {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "delete", slog.String("name", name))
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.store.Exec(delet, name)
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "delete", slog.String("name", name), slog.Any("error", err))
	}
	return err
}

// Dump returns a Go map with the counter records in the database.
func (db *DB) Dump() (map[string]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.store.Query(dump)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	d := make(map[string]Record)
	for rows.Next() {
		var name string
		rec, err := scanRecord(rows, &name)
		if err != nil {
			return nil, err
		}
		d[name] = rec
	}
	return d, rows.Err()
}

// JSON returns a JSON representation of a DB map dump returned by Dump.
func JSON(db map[string]Record) ([]byte, error) {
	return json.Marshal(db)
}

// Run is a finished counter run.
type Run struct {
	Run      uuid.UUID `json:"run"`
	From     float64   `json:"from"`
	To       float64   `json:"to"`
	Ticks    int       `json:"ticks"`
	Finished time.Time `json:"finished"`
}

// AddRun records the run described by the settled state s of the named
// counter.
func (db *DB) AddRun(name string, s counter.State) error {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "add run", slog.String("name", name), slog.String("run", s.Run.String()))
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.store.Exec(insertRun, s.Run.String(), name, s.From, s.To, s.Ticks, db.now().UTC().Format(timeFormat))
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "add run", slog.String("name", name), slog.Any("error", err))
	}
	return err
}

// History returns up to n of the most recent finished runs of the named
// counter, most recent first.
func (db *DB) History(name string, n int) ([]Run, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.store.Query(history, name, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var (
			r             Run
			run, finished string
		)
		err = rows.Scan(&run, &r.From, &r.To, &r.Ticks, &finished)
		if err != nil {
			return nil, err
		}
		r.Run, err = uuid.Parse(run)
		if err != nil {
			return nil, err
		}
		r.Finished, err = time.Parse(timeFormat, finished)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (db *DB) Close() error {
	return db.store.Close()
}
