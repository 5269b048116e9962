package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Run    RunCommand    `command:"run" description:"Run the motion control loop and its web interface"`
	Teleop TeleopCommand `command:"teleop" description:"Drive a running robot from the terminal"`
	Ports  PortsCommand  `command:"ports" description:"List serial ports for the motor board and servo bus"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "v2mini - motion control core for the V2 mini animatronic robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
