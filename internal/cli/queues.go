package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List queues on the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}

			overview, err := svc.CheckConnection(cmd.Context())
			if err != nil {
				return err
			}
			queues, err := svc.ListQueues(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return writeJSON(out, queues)
			}
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s (RabbitMQ %s), vhost %s",
				overview.ClusterName, overview.RabbitMQVersion, a.cfg.VHost)))
			renderQueues(out, queues)
			return nil
		},
	}
}
