// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// dbwriter runs the continuous write driver in the background. It takes
// two positional arguments: the starting sequence number (required) and
// the sleep interval between writes in milliseconds (optional, default
// 0). On SIGTERM it finishes the attempt in flight, persists the last
// written value to the handoff file, and exits.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/lumberjack/v2"

	"github.com/canonical/dbchurn/internal/descriptor"
	"github.com/canonical/dbchurn/internal/handoff"
	"github.com/canonical/dbchurn/internal/signalhandler"
	"github.com/canonical/dbchurn/internal/writer"
)

var logger = loggo.GetLogger("dbchurn.dbwriter")

// terminated marks the clean-stop path out of the signal watcher.
var terminated = errors.New("termination signal received")

type commandLineArgs struct {
	configFile     string
	handoffFile    string
	attemptTimeout time.Duration
	logConfig      string
	logFile        string

	startNumber   int64
	sleepInterval time.Duration
}

func commandLine(args []string) (commandLineArgs, error) {
	var a commandLineArgs
	f := gnuflag.NewFlagSet("dbwriter", gnuflag.ContinueOnError)
	f.StringVar(&a.configFile, "config-file", descriptor.DefaultPath,
		"path of the connection descriptor file")
	f.StringVar(&a.handoffFile, "handoff-file", handoff.DefaultPath,
		"path the last written value is persisted to on shutdown")
	f.DurationVar(&a.attemptTimeout, "attempt-timeout", writer.DefaultAttemptTimeout,
		"hard cap on a single write attempt")
	f.StringVar(&a.logConfig, "log-config", "<root>=INFO",
		"loggo configuration string")
	f.StringVar(&a.logFile, "log-file", "",
		"log to this file instead of stderr")
	if err := f.Parse(true, args); err != nil {
		return a, errors.Trace(err)
	}

	positional := f.Args()
	switch len(positional) {
	case 1, 2:
	default:
		return a, errors.Errorf("usage: dbwriter [options] <starting number> [<sleep interval ms>]")
	}
	startNumber, err := strconv.ParseInt(positional[0], 10, 64)
	if err != nil {
		return a, errors.NotValidf("starting number %q", positional[0])
	}
	a.startNumber = startNumber
	if len(positional) == 2 {
		ms, err := strconv.ParseInt(positional[1], 10, 64)
		if err != nil || ms < 0 {
			return a, errors.NotValidf("sleep interval %q", positional[1])
		}
		a.sleepInterval = time.Duration(ms) * time.Millisecond
	}
	return a, nil
}

func setupLogging(config, file string) error {
	if file != "" {
		output := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 2,
		}
		loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(output, loggo.DefaultFormatter))
	}
	return loggo.ConfigureLoggers(config)
}

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs the driver and returns the process exit code.
func Main(args []string) int {
	a, err := commandLine(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dbwriter: %v\n", err)
		return 2
	}
	if err := setupLogging(a.logConfig, a.logFile); err != nil {
		fmt.Fprintf(os.Stderr, "dbwriter: configuring logging: %v\n", err)
		return 2
	}

	w, err := writer.NewWorker(writer.Config{
		Descriptors:    descriptor.NewStore(a.configFile),
		Handoff:        handoff.NewStore(a.handoffFile),
		Insert:         writer.PgInsert,
		Clock:          clock.WallClock,
		Logger:         logger,
		StartNumber:    a.startNumber,
		SleepInterval:  a.sleepInterval,
		AttemptTimeout: a.attemptTimeout,
	})
	if err != nil {
		logger.Errorf("starting continuous writes: %v", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	watcher, err := signalhandler.NewSignalWatcher(
		logger, sigCh, signalhandler.SignalHandler(terminated, nil))
	if err != nil {
		logger.Errorf("installing signal watcher: %v", err)
		w.Kill()
		_ = w.Wait()
		return 1
	}

	go func() {
		// Whatever ends the watcher ends the writes; a received signal
		// surfaces as the terminated error and triggers a drain.
		if err := watcher.Wait(); err != nil && !errors.Is(err, terminated) {
			logger.Warningf("signal watcher stopped: %v", err)
		}
		w.Kill()
	}()

	if err := w.Wait(); err != nil {
		logger.Errorf("continuous writes failed: %v", err)
		watcher.Kill()
		return 1
	}
	watcher.Kill()
	return 0
}
