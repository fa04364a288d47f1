package main

import (
	"fmt"
	"os"

	"github.com/TheCacophonyProject/powerswitch-controller/internal/console"
	"github.com/TheCacophonyProject/powerswitch-controller/internal/controller"
	"github.com/TheCacophonyProject/powerswitch-controller/logging"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: powerswitch-controller <subcommand> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "controller":
		err = controller.Run(args, version)
	case "console":
		err = console.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
