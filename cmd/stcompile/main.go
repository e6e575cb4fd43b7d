// Command stcompile compiles a sequence transform dictionary into the data
// and test headers the firmware build includes.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/compiler"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/config"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/console"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/version"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("stcompile", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var configPath string
	flags.StringVar(&configPath, "config", "../../sequence_transform_config.json",
		"Path of the sequence transform configuration document.")

	var quiet bool
	flags.BoolVar(&quiet, "q", false, "Suppresses informational output.")
	flags.BoolVar(&quiet, "quiet", false, "Suppresses informational output.")

	var dataOut string
	flags.StringVar(&dataOut, "o", "",
		"Data header output path. Defaults to sequence_transform_data.h next to the config.")

	var testOut string
	flags.StringVar(&testOut, "t", "",
		"Test header output path. Defaults to sequence_transform_test.h next to the config.")

	var showVersion bool
	flags.BoolVar(&showVersion, "version", false, "Displays the generator version.")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if help {
		printUsage(stdErr, flags)
		return 0
	}
	if showVersion {
		fmt.Fprintln(stdOut, version.String())
		return 0
	}

	cons := console.New(stdErr, quiet)

	cfg, err := config.Load(configPath)
	if err != nil {
		cons.Errorf("%v", err)
		return 1
	}

	res, err := compiler.Compile(cfg, cons)
	if err != nil {
		cons.Errorf("%v", err)
		return 1
	}

	if dataOut == "" {
		dataOut = filepath.Join(cfg.Dir, "sequence_transform_data.h")
	}
	if testOut == "" {
		testOut = filepath.Join(cfg.Dir, "sequence_transform_test.h")
	}
	if err := res.WriteHeaders(dataOut, testOut); err != nil {
		cons.Errorf("%v", err)
		return 1
	}
	return 0
}

func printUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "stcompile")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  stcompile -config <path>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
