package main

import (
	"context"
	"os"

	"github.com/tablecraft/tablecraft/internal/cli/tablecraftctl"
)

func main() {
	options := tablecraftctl.OptionsFromEnv(os.LookupEnv, os.Stderr)
	options.Stdout = os.Stdout
	options.Stderr = os.Stderr
	os.Exit(tablecraftctl.Run(context.Background(), os.Args[1:], options))
}
