package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-fundkeeper/pkg/control"
	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
	"github.com/core-tools/hsu-fundkeeper/pkg/logging"
)

type flagOptions struct {
	Port    int           `long:"port" description:"status port of the fund keeper" required:"true"`
	Unit    string        `long:"unit" description:"show a single unit"`
	List    bool          `long:"list" description:"list all monitored units"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"request timeout"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logcollection.DefaultLoggerConfig()
	loggerConfig.Format = "console"
	structured, err := logcollection.NewStructuredLogger(loggerConfig)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer structured.Sync()
	logger := logcollection.AsLogger("module: fundcli , ", structured)

	conn, err := control.Dial(opts.Port, logger)
	if err != nil {
		logger.Errorf("Failed to connect: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	gateway := control.NewGRPCClientGateway(conn, logger)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	status, err := gateway.Status(ctx)
	if err != nil {
		fail(logger, "get status", err, opts.Timeout)
	}
	fmt.Printf("state: %s, scheduler: %s, environment: %s, minting: %t, interval: %v, ticks: %d, units: %d, default obtain: %s\n",
		status.State, status.SchedulerState, status.Environment, status.MintingEnabled,
		status.Interval, status.TickCount, status.Units, status.GlobalObtainStrategy)

	if opts.Unit != "" {
		unit, err := gateway.GetUnit(ctx, opts.Unit)
		if err != nil {
			fail(logger, "get unit", err, opts.Timeout)
		}
		printUnit(*unit)
	}

	if opts.List {
		units, err := gateway.ListUnits(ctx)
		if err != nil {
			fail(logger, "list units", err, opts.Timeout)
		}
		for _, unit := range units {
			printUnit(unit)
		}
	}
}

func fail(logger logging.Logger, what string, err error, timeout time.Duration) {
	switch {
	case errors.IsTimeoutError(err):
		logger.Errorf("Failed to %s: fund keeper did not answer within %v", what, timeout)
	case errors.IsNotFoundError(err):
		logger.Errorf("Failed to %s: %v", what, err)
		fmt.Printf("Use --list to see the monitored units\n")
	default:
		logger.Errorf("Failed to %s: %v", what, err)
	}
	os.Exit(1)
}

func printUnit(unit control.UnitInfo) {
	budget := "unobserved"
	if unit.BudgetObserved {
		budget = fmt.Sprintf("%d at %s", unit.LastKnownBudget, unit.LastObservedAt.Format(time.RFC3339))
	}
	fmt.Printf("%s: budget: %s, burn rate: %.4f/s, fund: %s, obtain: %s, top-ups: %d, failures: %d, last outcome: %s\n",
		unit.UnitID, budget, unit.BurnRate, unit.FundStrategy, unit.ObtainStrategy,
		unit.TopUps, unit.ConsecutiveFailures, unit.LastOutcome)
	if unit.LastError != "" {
		fmt.Printf("  last error: %s\n", unit.LastError)
	}
}
