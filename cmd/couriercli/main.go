// Command couriercli is the courier daemon's process entrypoint.
package main

import (
	"github.com/monoco-dev/fabric/cli"
)

func main() {
	cli.Handle()
}
