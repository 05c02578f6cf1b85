package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vibee/vibee/internal/daemon"
	"github.com/vibee/vibee/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName, err := profile.Select(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Logger(),
		daemon.Module(daemon.Params{ProfileName: profileName}),
	)

	app.Run()
}
