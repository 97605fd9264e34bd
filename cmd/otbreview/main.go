package main

import (
	"fmt"
	"os"
)

const (
	version = "0.1.0"
	banner  = `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   otbreview - Over-The-Board Game Review                ║
║              from video, no DGT board required            ║
║                                                           ║
║                    Version %s                          ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "calib":
		err = runCalib(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "otbreview: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(banner, version)
	fmt.Println(`usage: otbreview <command> [flags]

commands:
  analyze   run the full pipeline over a single recorded game
  watch     supervise an inbox directory and analyze new recordings as they arrive
  calib     capture a calibration artifact from a single reference frame

run "otbreview <command> -h" for the flags a command accepts.`)
}
