package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-fundkeeper/pkg/errors"
	"github.com/core-tools/hsu-fundkeeper/pkg/fleet"
	"github.com/core-tools/hsu-fundkeeper/pkg/logcollection"
)

type flagOptions struct {
	Config       string `long:"config" short:"c" description:"path to the YAML configuration file" required:"true"`
	RunDuration  int    `long:"run-duration" description:"stop after this many seconds, 0 runs until signalled"`
	ValidateOnly bool   `long:"validate-only" description:"validate the configuration file and exit"`
	LogLevel     string `long:"log-level" description:"override the configured log level"`
	LogFormat    string `long:"log-format" description:"override the configured log format (json, console)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
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

	if opts.ValidateOnly {
		if err := fleet.ValidateConfigFile(opts.Config); err != nil {
			fmt.Printf("Configuration is invalid: %v\n", err)
			if errors.IsConfigurationError(err) {
				fmt.Printf("Ledger withdrawals must draw from an account declared under 'accounts'\n")
			}
			os.Exit(1)
		}
		fmt.Printf("Configuration is valid: %s\n", opts.Config)
		return
	}

	loggerConfig := logcollection.DefaultLoggerConfig()
	if config, err := fleet.LoadConfigFromFile(opts.Config); err == nil {
		loggerConfig.Level = config.Manager.LogLevel
		loggerConfig.Format = config.Manager.LogFormat
	}
	if opts.LogLevel != "" {
		loggerConfig.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		loggerConfig.Format = opts.LogFormat
	}

	events, err := logcollection.NewStructuredLogger(loggerConfig)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer events.Sync()

	logger := logcollection.AsLogger(logPrefix("fundkeeper"), events)
	logger.Infof("opts: %+v", opts)

	if err := fleet.Run(opts.RunDuration, opts.Config, logger, events); err != nil {
		logger.Errorf("Fund keeper failed: %v", err)
		events.Sync()
		os.Exit(1)
	}
}
