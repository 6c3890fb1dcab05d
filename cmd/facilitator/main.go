package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/raid-guild/hive-x402-facilitator-go/cmd/facilitator/commands"
)

func main() {
	// A missing .env file is fine, the environment is used as is
	_ = godotenv.Load()

	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.NewServeCmd(),
		commands.VersionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
