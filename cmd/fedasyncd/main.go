package main

import (
	"log"
	"os"

	"github.com/absmach/fedasync/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const pathEnv = ".env"

func main() {
	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	rootCmd := &cobra.Command{
		Use:   "fedasyncd",
		Short: "Fedasync Daemon",
		Long:  `Fedasync Daemon runs the coordinator and clients of a federated learning run.`,
	}

	rootCmd.AddCommand(cli.NewCoordinatorCmd())
	rootCmd.AddCommand(cli.NewClientCmd())
	rootCmd.AddCommand(cli.NewSimulateCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
