// Command missioncheck asserts that a mission fixture directory loads
// cleanly: it runs the same loader validation pass the kernel depends on
// and exits non-zero the moment a hard error (a prerequisite cycle) would
// otherwise surface only once a mission run is already underway.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"

	"apollosim/pkg/missionio"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errMissingDir = errors.New("mission directory is required")

type config struct {
	dir            string
	failOnWarnings bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args)
	if err != nil {
		fmt.Fprintf(stderr, "missioncheck: %v\n", err)

		return exitUsage
	}

	mission, err := missionio.Load(cfg.dir)
	if err != nil {
		fmt.Fprintf(stderr, "missioncheck: %v\n", err)

		return exitError
	}

	warnings := multierr.Errors(mission.Warnings)

	for _, w := range warnings {
		fmt.Fprintf(stdout, "missioncheck: warning: %v\n", w)
	}

	if cfg.failOnWarnings && len(warnings) > 0 {
		fmt.Fprintf(stderr, "missioncheck: %d warning(s), failing per -fail-on-warnings\n", len(warnings))

		return exitError
	}

	fmt.Fprintf(stdout, "missioncheck: %s OK (%d events, %d warnings)\n", cfg.dir, len(mission.Events), len(warnings))

	return exitOK
}

func parseConfig(args []string) (config, error) {
	var cfg config

	flagSet := flag.NewFlagSet("missioncheck", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cfg.dir, "dir", "", "Path to the mission fixture directory (must contain mission.yaml)")
	flagSet.BoolVar(&cfg.failOnWarnings, "fail-on-warnings", false, "Treat non-fatal loader warnings as a failure")

	if err := flagSet.Parse(args); err != nil {
		return config{}, fmt.Errorf("parse flags: %w", err)
	}

	if cfg.dir == "" {
		return config{}, errMissingDir
	}

	return cfg, nil
}
