package main

import (
	"github.com/alecthomas/kong"

	"ruuvitool/internal/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("ruuvitool"),
		kong.Description("Pull historical measurements off Ruuvi BLE sensors"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&c)
	ctx.FatalIfErrorf(err)
}
