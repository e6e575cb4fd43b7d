// Command stlisten acquires debug output from attached keyboard consoles,
// printing every record and optionally collecting rule usage statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/console"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/listener"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/usagelog"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("stlisten", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var glob string
	flags.StringVar(&glob, "d", "/dev/ttyACM*",
		"Glob pattern of console device nodes to monitor.")

	var usageCSV string
	flags.StringVar(&usageCSV, "usage-csv", "",
		"Collect rule usage records and write them as CSV to the given path on exit.")

	var quiet bool
	flags.BoolVar(&quiet, "q", false, "Suppresses connection status output.")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if help {
		fmt.Fprintln(stdErr, "stlisten")
		fmt.Fprintln(stdErr)
		fmt.Fprintln(stdErr, "Usage:\n  stlisten [-d <glob>] [-usage-csv <path>]")
		fmt.Fprintln(stdErr)
		fmt.Fprintln(stdErr, "Options:")
		flags.PrintDefaults()
		return 0
	}

	cons := console.New(stdErr, quiet)

	observers := []listener.Observer{
		listener.ObserverFunc(func(msg string) { fmt.Fprintln(stdOut, msg) }),
	}
	var collector *usagelog.Collector
	if usageCSV != "" {
		collector = usagelog.New()
		observers = append(observers, collector)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cons.Infof("looking for devices matching %s ...", glob)
	l := listener.New(listener.Options{
		Glob:         glob,
		PollInterval: 100 * time.Millisecond,
		Console:      cons,
	}, observers...)

	err := l.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		cons.Errorf("%v", err)
		return 1
	}

	if collector != nil {
		f, err := os.Create(usageCSV)
		if err != nil {
			cons.Errorf("%v", err)
			return 1
		}
		defer f.Close()
		if err := collector.WriteCSV(f); err != nil {
			cons.Errorf("%v", err)
			return 1
		}
		cons.Infof("wrote %d rule usage entries to %s", collector.Len(), usageCSV)
	}
	return 0
}
