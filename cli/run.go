package cli

import (
	"github.com/absmach/fedasync/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	DefTLSVerification        = false
	DefCoordinatorURL         = "http://localhost:7070"
	defOffset          uint64 = 0
	defLimit           uint64 = 10
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

// NewRunCmds returns the commands that inspect a coordinator's run over its
// HTTP API.
func NewRunCmds() []*cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Run status",
		Long:  `Show the phase, current epoch and chosen clients of the coordinator's run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			st, err := fsdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}

	var offset, limit uint64

	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "List clients",
		Long:  `List the clients registered with the coordinator.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListClients(offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	roundsCmd := &cobra.Command{
		Use:   "rounds",
		Short: "List rounds",
		Long:  `List the completed rounds of the coordinator's run in epoch order.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListRounds(offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	for _, c := range []*cobra.Command{clientsCmd, roundsCmd} {
		c.Flags().Uint64VarP(&offset, "offset", "o", defOffset, "Offset")
		c.Flags().Uint64VarP(&limit, "limit", "l", defLimit, "Limit")
	}

	return []*cobra.Command{statusCmd, clientsCmd, roundsCmd}
}
