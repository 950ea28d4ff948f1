// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testing holds constants shared by the test suites.
package testing

import "time"

const (
	// LongWait is used when something should have happened already and
	// we only wait to be sure of it.
	LongWait = 10 * time.Second

	// ShortWait is a reasonable pause when nothing interesting is
	// expected to happen.
	ShortWait = 50 * time.Millisecond
)
