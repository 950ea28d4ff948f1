// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package controller

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"

	"github.com/canonical/dbchurn/internal/descriptor"
)

// DB executes the controller-side queries against the database named by a
// descriptor. Every call opens a fresh connection: the controller runs
// rarely and the endpoint may have moved since its last call.
type DB interface {
	// Exec runs statements in order with autocommit semantics.
	Exec(ctx context.Context, desc descriptor.Descriptor, statements ...string) error

	// Count returns the number of rows in the continuous_writes table.
	Count(ctx context.Context, desc descriptor.Descriptor) (int64, error)

	// Max returns the highest number committed to the continuous_writes
	// table, or zero when the table is empty.
	Max(ctx context.Context, desc descriptor.Descriptor) (int64, error)

	// Query runs an ad-hoc query and renders every value as text.
	Query(ctx context.Context, desc descriptor.Descriptor, query string) ([][]string, error)

	// Ping connects and disconnects, verifying reachability with the
	// descriptor's TLS requirement.
	Ping(ctx context.Context, desc descriptor.Descriptor) error
}

// PgDB is the production DB implementation.
type PgDB struct{}

func (PgDB) connect(ctx context.Context, desc descriptor.Descriptor) (*pgx.Conn, error) {
	cfg, err := desc.ConnConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conn, nil
}

// Exec is part of the DB interface.
func (db PgDB) Exec(ctx context.Context, desc descriptor.Descriptor, statements ...string) error {
	conn, err := db.connect(ctx, desc)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = conn.Close(ctx) }()
	for _, statement := range statements {
		if _, err := conn.Exec(ctx, statement); err != nil {
			return errors.Annotatef(err, "executing %q", statement)
		}
	}
	return nil
}

// Count is part of the DB interface.
func (db PgDB) Count(ctx context.Context, desc descriptor.Descriptor) (int64, error) {
	return db.queryInt(ctx, desc, "SELECT COUNT(number) FROM continuous_writes;")
}

// Max is part of the DB interface.
func (db PgDB) Max(ctx context.Context, desc descriptor.Descriptor) (int64, error) {
	return db.queryInt(ctx, desc, "SELECT COALESCE(MAX(number), 0) FROM continuous_writes;")
}

func (db PgDB) queryInt(ctx context.Context, desc descriptor.Descriptor, query string) (int64, error) {
	conn, err := db.connect(ctx, desc)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer func() { _ = conn.Close(ctx) }()
	var value int64
	if err := conn.QueryRow(ctx, query).Scan(&value); err != nil {
		return 0, errors.Trace(err)
	}
	return value, nil
}

// Query is part of the DB interface.
func (db PgDB) Query(ctx context.Context, desc descriptor.Descriptor, query string) ([][]string, error) {
	conn, err := db.connect(ctx, desc)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	var results [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Trace(err)
		}
		row := make([]string, len(values))
		for i, value := range values {
			row[i] = fmt.Sprint(value)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return results, nil
}

// Ping is part of the DB interface.
func (db PgDB) Ping(ctx context.Context, desc descriptor.Descriptor) error {
	conn, err := db.connect(ctx, desc)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(conn.Close(ctx))
}
