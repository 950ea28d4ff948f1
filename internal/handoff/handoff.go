// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package handoff persists the last sequence number the write driver
// believes it successfully committed. The driver writes it exactly once,
// at drain time; the controller reads it with bounded retry because the
// write is asynchronous relative to the termination signal.
package handoff

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/canonical/dbchurn/internal/durablefile"
)

// DefaultPath is the well-known location of the handoff value file.
const DefaultPath = "/tmp/last_written_value"

const (
	// DefaultPollInterval is how often the controller re-reads the
	// handoff location while waiting for the driver to drain.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollBound is the total time the controller will wait for
	// the handoff value before reporting the result as unknown.
	DefaultPollBound = 60 * time.Second
)

// Store reads and writes the handoff value at a well-known path.
type Store struct {
	path string
}

// NewStore returns a store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the handoff file.
func (s *Store) Path() string {
	return s.path
}

// Write persists value as decimal text, forcing it to stable storage
// before returning. The driver must not report a clean stop until this
// has succeeded.
func (s *Store) Write(value int64) error {
	data := []byte(strconv.FormatInt(value, 10))
	if err := durablefile.Write(s.path, data, 0o644); err != nil {
		return errors.Annotatef(err, "writing handoff value to %q", s.path)
	}
	return nil
}

// Read returns the stored handoff value. It returns a NotFound error when
// the driver has not yet written one.
func (s *Store) Read() (int64, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, errors.NotFoundf("handoff value at %q", s.path)
	} else if err != nil {
		return 0, errors.Trace(err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Annotatef(err, "parsing handoff value at %q", s.path)
	}
	return value, nil
}

// Wait polls for the handoff value every interval until it appears or
// bound elapses. The final NotFound error is returned when the driver
// never reported; callers surface that as an unknown result rather than
// blocking forever.
func (s *Store) Wait(clk clock.Clock, interval, bound time.Duration) (int64, error) {
	var value int64
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			v, err := s.Read()
			if err != nil {
				return errors.Trace(err)
			}
			value = v
			return nil
		},
		IsFatalError: func(err error) bool {
			// Only an absent file is worth waiting out.
			return !errors.Is(err, errors.NotFound)
		},
		Delay:       interval,
		MaxDuration: bound,
		Clock:       clk,
	})
	if err != nil {
		if retry.IsDurationExceeded(err) || retry.IsAttemptsExceeded(err) {
			err = retry.LastError(err)
		}
		return 0, errors.Trace(err)
	}
	return value, nil
}

// Remove deletes the handoff file once its value has been consumed.
// Removing an absent file is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	return nil
}
