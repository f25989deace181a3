package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Serve    ServeCmd         `cmd:"" help:"Run the blackjack session server"`
	Play     PlayCmd          `cmd:"" help:"Play blackjack in the terminal"`
	Verify   VerifyCmd        `cmd:"" help:"Replay a round from its seed and check the claimed result"`
	Simulate SimulateCmd      `cmd:"" help:"Simulate many rounds with a playing strategy"`
	RelaySim RelaySimCmd      `cmd:"relay-sim" help:"Run a local contract relay simulator"`
	Token    TokenCmd         `cmd:"" help:"Manage relay API tokens in the OS keyring"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("celojack"),
		kong.Description("Provably fair blackjack with free and on-chain settlement"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
