package main

import (
	"os"

	"github.com/soyeahso/sprintbot/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	if os.Getenv("SPRINTBOT_AUTORESTART") != "" {
		go autorestart.RestartOnChange()
	}

	os.Exit(cli.ExitCode(cli.Execute()))
}
