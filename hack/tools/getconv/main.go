// Command getconv converts between a raw GET seconds value and the
// HH:MM:SS.sss display form, the way p95query queries one thing and
// prints it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"apollosim/pkg/get"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errNoInput = errors.New("exactly one of -seconds or -get must be provided")

type config struct {
	seconds   string
	formatted string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args)
	if err != nil {
		fmt.Fprintf(stderr, "getconv: %v\n", err)

		return exitUsage
	}

	if cfg.seconds != "" {
		seconds, err := strconv.ParseFloat(cfg.seconds, 64)
		if err != nil {
			fmt.Fprintf(stderr, "getconv: %v\n", err)

			return exitError
		}

		fmt.Fprintln(stdout, get.Format(seconds))

		return exitOK
	}

	seconds, err := get.Parse(cfg.formatted)
	if err != nil {
		fmt.Fprintf(stderr, "getconv: %v\n", err)

		return exitError
	}

	fmt.Fprintf(stdout, "%.3f\n", seconds)

	return exitOK
}

func parseConfig(args []string) (config, error) {
	var cfg config

	flagSet := flag.NewFlagSet("getconv", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cfg.seconds, "seconds", "", "GET seconds value to render as HH:MM:SS.sss")
	flagSet.StringVar(&cfg.formatted, "get", "", "HH:MM:SS[.sss] value to convert to seconds")

	if err := flagSet.Parse(args); err != nil {
		return config{}, fmt.Errorf("parse flags: %w", err)
	}

	if (cfg.seconds == "") == (cfg.formatted == "") {
		return config{}, errNoInput
	}

	return cfg, nil
}
