// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// dbctl drives the continuous write workload from the command line: it
// creates the schema, starts and stops the background driver, reports
// progress, and runs ad-hoc queries including a TLS handshake check.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/canonical/dbchurn/internal/controller"
	"github.com/canonical/dbchurn/internal/descriptor"
	"github.com/canonical/dbchurn/internal/handoff"
)

var logger = loggo.GetLogger("dbchurn.dbctl")

const usage = `usage: dbctl <command> [options]

commands:
  ensure-schema  create the continuous_writes table and unique index
  start          start the background write driver
  stop           stop the driver and report its last written value
  update-config  rewrite the connection descriptor for a running driver
  show           report the number of committed writes
  max            report the highest committed number
  clear          stop the driver and drop the table
  resume         restart a dead driver from the database count
  is-running     report whether a driver process is alive
  run-sql        run an ad-hoc query
  check-tls      probe the endpoint with TLS required
`

type commandLineArgs struct {
	desc          descriptor.Descriptor
	configFile    string
	handoffFile   string
	stateFile     string
	driverPath    string
	startNumber   int64
	sleepInterval time.Duration
	logConfig     string
	query         string
}

func addConnectionFlags(f *gnuflag.FlagSet, a *commandLineArgs) {
	f.StringVar(&a.desc.Host, "host", "", "database host")
	f.IntVar(&a.desc.Port, "port", 5432, "database port")
	f.StringVar(&a.desc.Database, "database", "", "database name")
	f.StringVar(&a.desc.User, "user", "", "database user")
	f.StringVar(&a.desc.Password, "password", "", "database password")
	f.DurationVar(&a.desc.ConnectTimeout, "connect-timeout", 5*time.Second,
		"bound on the connection handshake")
	f.DurationVar(&a.desc.KeepaliveIdle, "keepalive-idle", 30*time.Second,
		"TCP keepalive probe interval")
	f.DurationVar(&a.desc.TCPUserTimeout, "tcp-user-timeout", 30*time.Second,
		"bound on unacknowledged transmitted data")
}

func addPathFlags(f *gnuflag.FlagSet, a *commandLineArgs) {
	f.StringVar(&a.configFile, "config-file", descriptor.DefaultPath,
		"path of the connection descriptor file")
	f.StringVar(&a.handoffFile, "handoff-file", handoff.DefaultPath,
		"path the driver persists its last written value to")
	f.StringVar(&a.stateFile, "state-file", controller.DefaultStatePath,
		"path of the controller's driver bookkeeping file")
	f.StringVar(&a.driverPath, "driver", "dbwriter",
		"driver executable to spawn")
	f.StringVar(&a.logConfig, "log-config", "<root>=WARNING",
		"loggo configuration string")
}

func newController(a *commandLineArgs) (*controller.Controller, error) {
	runnerArgs := []string{
		"--config-file", a.configFile,
		"--handoff-file", a.handoffFile,
	}
	return controller.New(controller.Config{
		Runner:      controller.ExecRunner{DriverPath: a.driverPath, Args: runnerArgs},
		DB:          controller.PgDB{},
		Descriptors: descriptor.NewStore(a.configFile),
		Handoff:     handoff.NewStore(a.handoffFile),
		State:       controller.NewStateFile(a.stateFile),
		Clock:       clock.WallClock,
		Logger:      logger,
	})
}

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs one controller command and returns the process exit code.
func Main(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command, rest := args[0], args[1:]

	var a commandLineArgs
	f := gnuflag.NewFlagSet("dbctl "+command, gnuflag.ContinueOnError)
	addConnectionFlags(f, &a)
	addPathFlags(f, &a)
	switch command {
	case "start", "resume":
		f.Int64Var(&a.startNumber, "start-number", 1, "first number to write")
		f.DurationVar(&a.sleepInterval, "sleep-interval", 0, "pause between writes")
	}
	if err := f.Parse(true, rest); err != nil {
		return 2
	}
	if command == "run-sql" {
		positional := f.Args()
		if len(positional) != 1 {
			fmt.Fprintln(os.Stderr, "usage: dbctl run-sql [options] <query>")
			return 2
		}
		a.query = positional[0]
	}
	if err := loggo.ConfigureLoggers(a.logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "dbctl: configuring logging: %v\n", err)
		return 2
	}

	ctl, err := newController(&a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dbctl: %v\n", err)
		return 1
	}
	if err := run(context.Background(), ctl, command, &a); err != nil {
		fmt.Fprintf(os.Stderr, "dbctl: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, ctl *controller.Controller, command string, a *commandLineArgs) error {
	switch command {
	case "ensure-schema":
		return errors.Trace(ctl.EnsureSchema(ctx, a.desc))

	case "start":
		if err := ctl.EnsureSchema(ctx, a.desc); err != nil {
			return errors.Annotate(err, "creating table")
		}
		return errors.Trace(ctl.Start(ctx, a.desc, a.startNumber, a.sleepInterval))

	case "stop":
		value, running, err := ctl.Stop(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if !running {
			fmt.Println("nothing to stop")
			return nil
		}
		fmt.Printf("writes: %d\n", value)
		return nil

	case "update-config":
		return errors.Trace(ctl.UpdateDescriptor(a.desc))

	case "show":
		count, err := ctl.Count(ctx, a.desc)
		if err != nil {
			logger.Errorf("unable to count writes: %v", err)
		}
		fmt.Printf("writes: %d\n", count)
		return nil

	case "max":
		max, err := ctl.MaxWritten(ctx, a.desc)
		if err != nil {
			logger.Errorf("unable to read max written value: %v", err)
		}
		fmt.Printf("max: %d\n", max)
		return nil

	case "clear":
		return errors.Trace(ctl.Clear(ctx, a.desc))

	case "resume":
		started, err := ctl.Resume(ctx, a.desc, a.sleepInterval)
		if err != nil {
			return errors.Trace(err)
		}
		if started {
			fmt.Println("resumed")
		} else {
			fmt.Println("nothing to resume")
		}
		return nil

	case "is-running":
		fmt.Println(ctl.IsRunning())
		return nil

	case "run-sql":
		results, err := ctl.RunSQL(ctx, a.desc, a.query)
		if err != nil {
			return errors.Trace(err)
		}
		for _, row := range results {
			fmt.Println(strings.Join(row, "\t"))
		}
		return nil

	case "check-tls":
		fmt.Println(ctl.CheckTLS(ctx, a.desc))
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.Errorf("unrecognized command: %s", command)
	}
}
