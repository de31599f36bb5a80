package main

import (
	"context"
	"fmt"
	"os"

	"intelterm/internal/transports/cli"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	root := cli.New(buildVersion())
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if date != "" {
		v += " " + date
	}
	return v
}
