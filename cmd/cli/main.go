package main

import (
	"log"

	"github.com/absmach/fedasync/cli"
	"github.com/absmach/fedasync/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	var coordinatorURL string

	rootCmd := &cobra.Command{
		Use:   "fedasync-cli",
		Short: "Fedasync CLI",
		Long:  `Fedasync CLI inspects a running coordinator over its HTTP API.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: cli.DefTLSVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "u", cli.DefCoordinatorURL, "Coordinator URL")

	rootCmd.AddCommand(cli.NewRunCmds()...)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
