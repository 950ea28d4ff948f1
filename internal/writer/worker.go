// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package writer implements the continuous write driver: a worker that
// inserts sequentially numbered rows against a database whose connection
// parameters may change underneath it, advancing the sequence only on
// confirmed success, and persisting the last written number on shutdown.
package writer

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"gopkg.in/tomb.v2"

	"github.com/canonical/dbchurn/internal/descriptor"
)

const (
	// DefaultAttemptTimeout is the hard wall-clock cap on a single write
	// attempt. An attempt still in flight when it expires is aborted and
	// its outcome treated as unconfirmed.
	DefaultAttemptTimeout = 10 * time.Second

	// DefaultRetryCooldown is how long the driver holds off after a
	// transient failure, to avoid hot-looping against a primary that is
	// being re-elected.
	DefaultRetryCooldown = 30 * time.Second
)

// Logger represents the methods used by the worker to log.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warningf(string, ...interface{})
	Errorf(string, ...interface{})
}

// DescriptorReader provides the current connection descriptor. It is
// consulted before every attempt; the result is never cached.
type DescriptorReader interface {
	Read() (descriptor.Descriptor, error)
}

// HandoffWriter persists the last written value at drain time.
type HandoffWriter interface {
	Write(value int64) error
}

// InsertFunc performs a single autocommit insert of number using the
// supplied descriptor. Implementations must honour ctx cancellation; it
// is the mechanism by which the per-attempt cap is enforced.
type InsertFunc func(ctx context.Context, desc descriptor.Descriptor, number int64) error

// Config defines the operation of the Worker.
type Config struct {
	Descriptors DescriptorReader
	Handoff     HandoffWriter
	Insert      InsertFunc
	Clock       clock.Clock
	Logger      Logger

	// StartNumber is the first sequence number to write.
	StartNumber int64

	// SleepInterval is the configured pause between writes. Zero means
	// write as fast as the database allows.
	SleepInterval time.Duration

	// AttemptTimeout and RetryCooldown default to DefaultAttemptTimeout
	// and DefaultRetryCooldown when left zero.
	AttemptTimeout time.Duration
	RetryCooldown  time.Duration
}

// Validate returns an error if config cannot drive the Worker.
func (config Config) Validate() error {
	if config.Descriptors == nil {
		return errors.NotValidf("nil Descriptors")
	}
	if config.Handoff == nil {
		return errors.NotValidf("nil Handoff")
	}
	if config.Insert == nil {
		return errors.NotValidf("nil Insert")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.StartNumber < 1 {
		return errors.NotValidf("start number %d", config.StartNumber)
	}
	if config.SleepInterval < 0 {
		return errors.NotValidf("negative sleep interval")
	}
	return nil
}

// Worker is the continuous write driver. The sequence counter is owned
// exclusively by the worker loop; per-attempt goroutines only perform the
// database call and report the outcome back.
type Worker struct {
	tomb   tomb.Tomb
	config Config

	// current is the next sequence number to attempt.
	current int64
}

// NewWorker returns a continuous write Worker backed by config.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.AttemptTimeout == 0 {
		config.AttemptTimeout = DefaultAttemptTimeout
	}
	if config.RetryCooldown == 0 {
		config.RetryCooldown = DefaultRetryCooldown
	}
	w := &Worker{
		config:  config,
		current: config.StartNumber,
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface. It requests a drain: the
// in-flight attempt completes under its own cap, the handoff value is
// persisted, and only then does the worker stop.
func (w *Worker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.tomb.Wait()
}

func (w *Worker) loop() error {
	w.config.Logger.Infof("starting continuous writes at %d", w.current)
	for {
		// Termination is only checked between attempts; an attempt in
		// flight always completes under its own timeout first.
		select {
		case <-w.tomb.Dying():
			return w.drain()
		default:
		}

		advance, err := w.attempt()
		if err != nil {
			// Fatal. No handoff value is written: the controller's
			// subsequent read will time out and report unknown rather
			// than trust a number we cannot stand behind.
			return errors.Trace(err)
		}
		if advance {
			w.current++
		}

		if !w.sleep(w.config.SleepInterval) {
			return w.drain()
		}
	}
}

// attempt executes one isolated, time-bounded write of the current
// number. It reports whether the counter should advance; any returned
// error is fatal to the worker.
func (w *Worker) attempt() (bool, error) {
	desc, err := w.config.Descriptors.Read()
	if err != nil {
		return false, errors.Annotate(err, "reading connection descriptor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	number := w.current
	go func() {
		done <- w.config.Insert(ctx, desc, number)
	}()

	select {
	case err = <-done:
	case <-w.config.Clock.After(w.config.AttemptTimeout):
		// Commit status is unknown: abort the attempt and reuse the
		// same number next iteration. The unique index turns a retry of
		// a row that did commit into a duplicate error, handled below
		// on that later attempt.
		cancel()
		w.config.Logger.Warningf("write of %d timed out after %v; retrying same number", number, w.config.AttemptTimeout)
		return false, nil
	}

	switch Classify(err) {
	case ClassOK:
		w.config.Logger.Debugf("wrote %d", number)
		return true, nil
	case ClassTransient:
		w.config.Logger.Infof("database unavailable writing %d (%v); cooling down %v", number, err, w.config.RetryCooldown)
		// Hold the counter and wait out what is presumably a failover.
		w.sleep(w.config.RetryCooldown)
		return false, nil
	case ClassDuplicate:
		w.config.Logger.Debugf("%d already written by an earlier unconfirmed attempt", number)
		return true, nil
	case ClassBenign:
		w.config.Logger.Errorf("unexpected database error writing %d, assuming prior commit: %v", number, err)
		return true, nil
	default:
		return false, errors.Annotatef(err, "writing %d", number)
	}
}

// drain persists the last number known or assumed committed and stops.
func (w *Worker) drain() error {
	last := w.current - 1
	if err := w.config.Handoff.Write(last); err != nil {
		return errors.Annotatef(err, "persisting last written value %d", last)
	}
	w.config.Logger.Infof("stopped; last written value %d", last)
	return tomb.ErrDying
}

// sleep pauses for d, returning false if the worker was killed while
// sleeping. A zero or negative duration returns immediately.
func (w *Worker) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-w.tomb.Dying():
		return false
	case <-w.config.Clock.After(d):
		return true
	}
}
