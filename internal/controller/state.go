// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package controller

import (
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// State records the write driver process currently managed by the
// controller, so liveness can be checked across controller restarts.
type State struct {
	// PID is the process id of the running write driver.
	PID int `yaml:"pid"`

	// StartNumber is the sequence number the driver was started at.
	StartNumber int64 `yaml:"start-number"`
}

// validate returns an error if the state violates expectations.
func (st State) validate() error {
	if st.PID <= 0 {
		return fmt.Errorf("invalid driver pid %d", st.PID)
	}
	if st.StartNumber < 1 {
		return fmt.Errorf("invalid start number %d", st.StartNumber)
	}
	return nil
}

// StateFile holds the disk state for the controller's driver bookkeeping.
type StateFile struct {
	path string
}

// NewStateFile returns a new StateFile using path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path}
}

// ErrNoStateFile means no driver run has been recorded.
var ErrNoStateFile = errors.New("driver state file does not exist")

// Read reads a State from the file. If the file does not exist it returns
// ErrNoStateFile.
func (f *StateFile) Read() (*State, error) {
	var st State
	if err := utils.ReadYaml(f.path, &st); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoStateFile
		}
		return nil, errors.Trace(err)
	}
	if err := st.validate(); err != nil {
		return nil, fmt.Errorf("cannot read driver state at %q: %v", f.path, err)
	}
	return &st, nil
}

// Write stores the supplied state to the file.
func (f *StateFile) Write(pid int, startNumber int64) error {
	st := &State{
		PID:         pid,
		StartNumber: startNumber,
	}
	if err := st.validate(); err != nil {
		panic(err)
	}
	return utils.WriteYaml(f.path, st)
}

// Remove deletes the state file; a missing file is not an error.
func (f *StateFile) Remove() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	return nil
}
