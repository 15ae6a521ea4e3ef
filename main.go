package main

import (
	"github.com/draganm/inviteflow/command/server"
	"github.com/draganm/inviteflow/command/signup"
	"github.com/urfave/cli/v2"
)

func main() {

	app := &cli.App{
		Name:  "inviteflow",
		Usage: "invite-only signup and auth callback service",
		Commands: []*cli.Command{
			server.Command,
			signup.Command,
		},
	}
	app.RunAndExitOnError()

}
