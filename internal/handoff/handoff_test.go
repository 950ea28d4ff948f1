// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package handoff_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/dbchurn/internal/handoff"
	coretesting "github.com/canonical/dbchurn/internal/testing"
)

type handoffSuite struct {
	testing.IsolationSuite

	store *handoff.Store
	path  string
}

var _ = gc.Suite(&handoffSuite{})

func (s *handoffSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.path = filepath.Join(c.MkDir(), "last_written_value")
	s.store = handoff.NewStore(s.path)
}

func (s *handoffSuite) TestReadMissing(c *gc.C) {
	_, err := s.store.Read()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *handoffSuite) TestWriteThenRead(c *gc.C) {
	c.Assert(s.store.Write(1234), jc.ErrorIsNil)
	value, err := s.store.Read()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(value, gc.Equals, int64(1234))
}

func (s *handoffSuite) TestWriteIsDecimalText(c *gc.C) {
	c.Assert(s.store.Write(7), jc.ErrorIsNil)
	data, err := os.ReadFile(s.path)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "7")
}

func (s *handoffSuite) TestReadGarbage(c *gc.C) {
	c.Assert(os.WriteFile(s.path, []byte("seven"), 0o644), jc.ErrorIsNil)
	_, err := s.store.Read()
	c.Assert(err, gc.ErrorMatches, "parsing handoff value at .*")
}

func (s *handoffSuite) TestRemove(c *gc.C) {
	c.Assert(s.store.Write(1), jc.ErrorIsNil)
	c.Assert(s.store.Remove(), jc.ErrorIsNil)
	_, err := s.store.Read()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *handoffSuite) TestRemoveMissing(c *gc.C) {
	c.Assert(s.store.Remove(), jc.ErrorIsNil)
}

func (s *handoffSuite) TestWaitImmediate(c *gc.C) {
	c.Assert(s.store.Write(99), jc.ErrorIsNil)
	clk := testclock.NewClock(time.Now())
	value, err := s.store.Wait(clk, 5*time.Second, time.Minute)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(value, gc.Equals, int64(99))
}

func (s *handoffSuite) TestWaitForLateValue(c *gc.C) {
	clk := testclock.NewClock(time.Now())

	done := make(chan int64, 1)
	errs := make(chan error, 1)
	go func() {
		value, err := s.store.Wait(clk, 5*time.Second, time.Minute)
		errs <- err
		done <- value
	}()

	// The first poll finds nothing and the reader settles in to wait.
	// Only then does the driver get around to writing the value.
	c.Assert(s.store.Write(17), jc.ErrorIsNil)
	c.Assert(clk.WaitAdvance(5*time.Second, coretesting.LongWait, 1), jc.ErrorIsNil)

	select {
	case err := <-errs:
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(<-done, gc.Equals, int64(17))
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out waiting for handoff value")
	}
}

func (s *handoffSuite) TestWaitBoundExceeded(c *gc.C) {
	clk := testclock.NewClock(time.Now())

	errs := make(chan error, 1)
	go func() {
		_, err := s.store.Wait(clk, 5*time.Second, 12*time.Second)
		errs <- err
	}()

	for i := 0; i < 10; i++ {
		select {
		case err := <-errs:
			c.Assert(err, jc.Satisfies, errors.IsNotFound)
			return
		case <-time.After(coretesting.ShortWait):
			// Nudge the poll loop along until it gives up.
			_ = clk.WaitAdvance(5*time.Second, coretesting.ShortWait, 1)
		}
	}
	c.Fatalf("poll loop never gave up")
}
