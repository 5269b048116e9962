package main

import (
	"fmt"

	"github.com/cjeanneret/v2mini/internal/hw/bus"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := bus.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
