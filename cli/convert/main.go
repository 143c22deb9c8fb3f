// Package main is the splat buffer conversion command.
package main

import (
	"os"

	"go.viam.com/splatbuffer/cli"
	"go.viam.com/splatbuffer/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Global().Fatal(err)
	}
}
