// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package writer_test

import (
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/errors"
	"github.com/juju/testing"
	gc "gopkg.in/check.v1"

	"github.com/canonical/dbchurn/internal/writer"
)

type classifySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&classifySuite{})

func (s *classifySuite) TestClassify(c *gc.C) {
	tests := []struct {
		err      error
		expected writer.Class
	}{{
		err:      nil,
		expected: writer.ClassOK,
	}, {
		err:      &pgconn.PgError{Code: "23505"},
		expected: writer.ClassDuplicate,
	}, {
		err:      &pgconn.PgError{Code: "25006"},
		expected: writer.ClassTransient,
	}, {
		// Connection exception class.
		err:      &pgconn.PgError{Code: "08006"},
		expected: writer.ClassTransient,
	}, {
		// Admin shutdown, typical of a primary being demoted.
		err:      &pgconn.PgError{Code: "57P01"},
		expected: writer.ClassTransient,
	}, {
		err:      &pgconn.PgError{Code: "57P03"},
		expected: writer.ClassTransient,
	}, {
		// Undefined table: database-reported, so assumed benign.
		err:      &pgconn.PgError{Code: "42P01"},
		expected: writer.ClassBenign,
	}, {
		err:      &pgconn.PgError{Code: "22003"},
		expected: writer.ClassBenign,
	}, {
		err:      &net.OpError{Op: "dial", Err: errors.New("connection refused")},
		expected: writer.ClassTransient,
	}, {
		err:      fmt.Errorf("wrapped: %w", &net.OpError{Op: "read", Err: errors.New("connection reset")}),
		expected: writer.ClassTransient,
	}, {
		err:      errors.New("boom"),
		expected: writer.ClassFatal,
	}}
	for i, test := range tests {
		c.Logf("running test %d: %v", i, test.err)
		c.Check(writer.Classify(test.err), gc.Equals, test.expected)
	}
}

func (s *classifySuite) TestClassifyMalformedDescriptor(c *gc.C) {
	_, err := pgx.ParseConfig("=broken")
	c.Assert(err, gc.NotNil)
	c.Check(writer.Classify(err), gc.Equals, writer.ClassFatal)
}
