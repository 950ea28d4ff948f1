// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package writer

import (
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Class buckets a write attempt error for the driver loop.
type Class int

const (
	// ClassOK: the row is committed; advance the counter.
	ClassOK Class = iota

	// ClassTransient: connectivity or failover trouble (connection
	// refused, broken connection, read-only transaction while a primary
	// is re-elected). Hold the counter and back off before retrying.
	ClassTransient

	// ClassDuplicate: unique constraint violation. A prior attempt whose
	// outcome was unknown actually committed, so the number is already
	// in the table; advance past it.
	ClassDuplicate

	// ClassBenign: some other database-reported error. Treated as
	// evidence of a prior unconfirmed commit so the driver cannot stall
	// forever, but logged loudly since it may mask a real fault.
	ClassBenign

	// ClassFatal: anything else, including a malformed descriptor.
	// The driver terminates without writing a handoff value.
	ClassFatal
)

// SQLSTATE values and class prefixes used for classification.
const (
	codeUniqueViolation        = "23505"
	codeReadOnlySQLTransaction = "25006"
	classConnectionException   = "08"
	classOperatorIntervention  = "57"
)

// Classify buckets err according to the driver's error taxonomy.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}

	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		// The descriptor itself is broken; retrying cannot help.
		return ClassFatal
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return ClassDuplicate
		case pgErr.Code == codeReadOnlySQLTransaction,
			strings.HasPrefix(pgErr.Code, classConnectionException),
			strings.HasPrefix(pgErr.Code, classOperatorIntervention):
			return ClassTransient
		default:
			return ClassBenign
		}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	if pgconn.SafeToRetry(err) {
		return ClassTransient
	}
	return ClassFatal
}

// String implements fmt.Stringer, mostly for log messages.
func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassDuplicate:
		return "duplicate"
	case ClassBenign:
		return "benign"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}
