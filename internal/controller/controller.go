// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package controller orchestrates the continuous write driver: it creates
// the schema, spawns and signals the driver process, distributes
// connection descriptor updates, and reconciles the driver's handoff
// value with the database's own row count. It never shares memory with
// the driver; the descriptor and handoff files are the only channel.
package controller

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/canonical/dbchurn/internal/descriptor"
	"github.com/canonical/dbchurn/internal/handoff"
)

// DefaultStatePath is the well-known location of the controller's driver
// bookkeeping file.
const DefaultStatePath = "/tmp/continuous_writes_state.yaml"

// Unknown is reported when a stopped driver never surfaced its last
// written value within the poll bound.
const Unknown int64 = -1

// Logger represents the methods used by the controller to log.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// DescriptorStore is the controller's side of the descriptor channel.
type DescriptorStore interface {
	Write(descriptor.Descriptor) error
	Read() (descriptor.Descriptor, error)
	Remove() error
}

// HandoffStore is the controller's side of the handoff channel.
type HandoffStore interface {
	Wait(clk clock.Clock, interval, bound time.Duration) (int64, error)
	Remove() error
}

// StateStore records which driver process the controller manages.
type StateStore interface {
	Read() (*State, error)
	Write(pid int, startNumber int64) error
	Remove() error
}

// Config defines the collaborators of a Controller.
type Config struct {
	Runner      Runner
	DB          DB
	Descriptors DescriptorStore
	Handoff     HandoffStore
	State       StateStore
	Clock       clock.Clock
	Logger      Logger

	// PollInterval and PollBound control the wait for the handoff value
	// after a stop request. They default to the handoff package values.
	PollInterval time.Duration
	PollBound    time.Duration
}

// Validate returns an error if the config cannot drive a Controller.
func (config Config) Validate() error {
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.DB == nil {
		return errors.NotValidf("nil DB")
	}
	if config.Descriptors == nil {
		return errors.NotValidf("nil Descriptors")
	}
	if config.Handoff == nil {
		return errors.NotValidf("nil Handoff")
	}
	if config.State == nil {
		return errors.NotValidf("nil State")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Controller drives the write workload from the outside.
type Controller struct {
	config Config
}

// New returns a Controller backed by config.
func New(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.PollInterval == 0 {
		config.PollInterval = handoff.DefaultPollInterval
	}
	if config.PollBound == 0 {
		config.PollBound = handoff.DefaultPollBound
	}
	return &Controller{config: config}, nil
}

// EnsureSchema idempotently creates the continuous_writes table and the
// unique index the driver relies on to make duplicate-number inserts a
// reported error instead of silent corruption.
func (c *Controller) EnsureSchema(ctx context.Context, desc descriptor.Descriptor) error {
	return errors.Trace(c.config.DB.Exec(ctx, desc,
		"CREATE TABLE IF NOT EXISTS continuous_writes(number INTEGER);",
		"CREATE UNIQUE INDEX IF NOT EXISTS number ON continuous_writes(number);",
	))
}

// Start launches a driver writing from startNumber. Any driver already
// running is stopped first, so at most one writes at a time.
func (c *Controller) Start(ctx context.Context, desc descriptor.Descriptor, startNumber int64, sleepInterval time.Duration) error {
	if _, _, err := c.Stop(ctx); err != nil {
		return errors.Annotate(err, "stopping previous writes")
	}
	if err := c.config.Descriptors.Write(desc); err != nil {
		return errors.Trace(err)
	}
	pid, err := c.config.Runner.Spawn(startNumber, sleepInterval)
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.config.State.Write(pid, startNumber); err != nil {
		return errors.Trace(err)
	}
	c.config.Logger.Infof("started continuous writes from %d (driver pid %d)", startNumber, pid)
	return nil
}

// UpdateDescriptor rewrites the descriptor file after an endpoint or
// credential change. The running driver picks it up on its next attempt;
// no restart and no direct coordination is involved. It is a no-op when
// no driver is running.
func (c *Controller) UpdateDescriptor(desc descriptor.Descriptor) error {
	if _, err := c.config.State.Read(); err == ErrNoStateFile {
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	c.config.Logger.Infof("updating connection descriptor to %s:%d", desc.Host, desc.Port)
	return errors.Trace(c.config.Descriptors.Write(desc))
}

// Stop signals the driver to drain and returns the last written value it
// reported. The second result is false when no driver was running, which
// is not an error. A driver that did not report within the poll bound
// yields Unknown.
func (c *Controller) Stop(ctx context.Context) (int64, bool, error) {
	st, err := c.config.State.Read()
	if err == ErrNoStateFile {
		return 0, false, nil
	} else if err != nil {
		return 0, false, errors.Trace(err)
	}

	// Drop the record up front; a stop is never retried against a stale
	// pid.
	if err := c.config.State.Remove(); err != nil {
		return 0, false, errors.Trace(err)
	}

	if err := c.config.Runner.Terminate(st.PID); err != nil {
		if errors.Is(err, errors.NotFound) {
			// The driver already exited; there is nothing to stop and
			// no handoff value to collect.
			return 0, false, nil
		}
		return 0, false, errors.Trace(err)
	}

	value, err := c.config.Handoff.Wait(c.config.Clock, c.config.PollInterval, c.config.PollBound)
	if err != nil {
		c.config.Logger.Errorf("unable to read last written value from driver %d: %v", st.PID, err)
		return Unknown, true, nil
	}

	// Consume the handoff and descriptor files; their absence marks a
	// completed stop cycle.
	if err := c.config.Handoff.Remove(); err != nil {
		return value, true, errors.Trace(err)
	}
	if err := c.config.Descriptors.Remove(); err != nil {
		return value, true, errors.Trace(err)
	}
	c.config.Logger.Infof("stopped continuous writes; last written value %d", value)
	return value, true, nil
}

// IsRunning reports whether a recorded driver process is still alive.
func (c *Controller) IsRunning() bool {
	st, err := c.config.State.Read()
	if err != nil {
		return false
	}
	return c.config.Runner.Alive(st.PID)
}

// Resume restarts the workload after a controller restart: if a driver
// was recorded but is no longer alive and the table already has rows, a
// new driver picks up at count+1. It reports whether a driver was
// started.
func (c *Controller) Resume(ctx context.Context, desc descriptor.Descriptor, sleepInterval time.Duration) (bool, error) {
	st, err := c.config.State.Read()
	if err == ErrNoStateFile {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	if c.config.Runner.Alive(st.PID) {
		return false, nil
	}
	count, err := c.config.DB.Count(ctx, desc)
	if err != nil {
		return false, errors.Annotate(err, "counting writes to resume from")
	}
	if count == 0 {
		return false, nil
	}
	c.config.Logger.Infof("restarting continuous writes from the database count")
	if err := c.Start(ctx, desc, count+1, sleepInterval); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// Count returns the number of rows committed to the continuous_writes
// table, or Unknown with the underlying error.
func (c *Controller) Count(ctx context.Context, desc descriptor.Descriptor) (int64, error) {
	count, err := c.config.DB.Count(ctx, desc)
	if err != nil {
		return Unknown, errors.Trace(err)
	}
	return count, nil
}

// MaxWritten returns the highest committed number, or Unknown with the
// underlying error.
func (c *Controller) MaxWritten(ctx context.Context, desc descriptor.Descriptor) (int64, error) {
	max, err := c.config.DB.Max(ctx, desc)
	if err != nil {
		return Unknown, errors.Trace(err)
	}
	return max, nil
}

// Clear stops any running driver and drops the continuous_writes table.
func (c *Controller) Clear(ctx context.Context, desc descriptor.Descriptor) error {
	if _, _, err := c.Stop(ctx); err != nil {
		return errors.Annotate(err, "stopping writes to drop table")
	}
	return errors.Trace(c.config.DB.Exec(ctx, desc, "DROP TABLE IF EXISTS continuous_writes;"))
}

// RunSQL executes an ad-hoc query and returns each value rendered as
// text.
func (c *Controller) RunSQL(ctx context.Context, desc descriptor.Descriptor, query string) ([][]string, error) {
	c.config.Logger.Debugf("running query: %s", query)
	results, err := c.config.DB.Query(ctx, desc, query)
	return results, errors.Trace(err)
}

// CheckTLS reports whether the endpoint accepts a TLS-required
// connection.
func (c *Controller) CheckTLS(ctx context.Context, desc descriptor.Descriptor) bool {
	desc.RequireTLS = true
	if err := c.config.DB.Ping(ctx, desc); err != nil {
		c.config.Logger.Debugf("tls probe failed: %v", err)
		return false
	}
	return true
}
