// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/canonical/dbchurn/internal/descriptor"
)

// PgInsert is the production InsertFunc. It opens a fresh connection for
// every attempt (the endpoint may have moved since the last one) and
// issues a single autocommit insert; there is no transaction boundary
// beyond the statement itself.
func PgInsert(ctx context.Context, desc descriptor.Descriptor, number int64) error {
	cfg, err := desc.ConnConfig()
	if err != nil {
		return err
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return err
	}
	// Close under a fresh context so an aborted attempt still releases
	// the connection promptly.
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	_, err = conn.Exec(ctx, "INSERT INTO continuous_writes(number) VALUES($1);", number)
	return err
}
