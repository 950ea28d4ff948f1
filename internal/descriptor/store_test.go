// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package descriptor_test

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/dbchurn/internal/descriptor"
)

type storeSuite struct {
	testing.IsolationSuite

	store *descriptor.Store
	path  string
}

var _ = gc.Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.path = filepath.Join(c.MkDir(), "continuous_writes_config")
	s.store = descriptor.NewStore(s.path)
}

func (s *storeSuite) TestReadMissing(c *gc.C) {
	_, err := s.store.Read()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *storeSuite) TestWriteThenRead(c *gc.C) {
	in := exampleDescriptor()
	c.Assert(s.store.Write(in), jc.ErrorIsNil)
	out, err := s.store.Read()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.DeepEquals, in)
}

func (s *storeSuite) TestWriteOverwrites(c *gc.C) {
	first := exampleDescriptor()
	c.Assert(s.store.Write(first), jc.ErrorIsNil)

	second := first
	second.Host = "10.0.0.9"
	c.Assert(s.store.Write(second), jc.ErrorIsNil)

	out, err := s.store.Read()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out.Host, gc.Equals, "10.0.0.9")
}

func (s *storeSuite) TestWriteInvalid(c *gc.C) {
	err := s.store.Write(descriptor.Descriptor{})
	c.Assert(err, gc.ErrorMatches, "empty host not valid")
	_, statErr := os.Stat(s.path)
	c.Assert(os.IsNotExist(statErr), jc.IsTrue)
}

func (s *storeSuite) TestRemove(c *gc.C) {
	c.Assert(s.store.Write(exampleDescriptor()), jc.ErrorIsNil)
	c.Assert(s.store.Remove(), jc.ErrorIsNil)
	_, err := s.store.Read()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *storeSuite) TestRemoveMissing(c *gc.C) {
	c.Assert(s.store.Remove(), jc.ErrorIsNil)
}

func (s *storeSuite) TestReadGarbage(c *gc.C) {
	c.Assert(os.WriteFile(s.path, []byte("not a descriptor\n"), 0o600), jc.ErrorIsNil)
	_, err := s.store.Read()
	c.Assert(err, gc.ErrorMatches, "parsing connection descriptor at .*")
}
