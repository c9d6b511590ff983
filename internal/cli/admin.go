package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epalmerini/snoop/internal/inspect"
)

func newPurgeCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge <queue>",
		Short: "Delete every message in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]
			if !yes {
				return fmt.Errorf("refusing to purge %q without --yes", queue)
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			if err := svc.Purge(cmd.Context(), queue); err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"purged": queue})
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Purged "+queue))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the purge")
	return cmd
}

func newReturnCmd(a *app) *cobra.Command {
	var (
		target string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "return <error-queue>",
		Short: "Move failed messages back to the queue they came from",
		Long: `Take the oldest message off an error queue and publish it, unchanged, to the
queue named in its rbs2-source-queue header (or to --to). With --all, repeat
until the error queue is empty or max_messages have been moved. A message
that cannot be delivered is put back on the error queue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			errorQueue := args[0]

			var moved []inspect.Returned
			var runErr error
			if all {
				moved, runErr = svc.ReturnAll(cmd.Context(), errorQueue, target)
			} else {
				var ret *inspect.Returned
				ret, runErr = svc.ReturnToSource(cmd.Context(), errorQueue, target)
				if ret != nil {
					moved = append(moved, *ret)
				}
				if errors.Is(runErr, inspect.ErrQueueEmpty) {
					runErr = nil
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				if moved == nil {
					moved = []inspect.Returned{}
				}
				if err := writeJSON(out, moved); err != nil {
					return err
				}
				return runErr
			}

			if len(moved) == 0 && runErr == nil {
				fmt.Fprintln(out, mutedStyle.Render("No messages in "+errorQueue))
			}
			for _, r := range moved {
				fmt.Fprintf(out, "%s %s %s -> %s\n",
					successStyle.Render("Returned"),
					typeStyle.Render(r.MessageType),
					r.From, r.To)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "publish to this queue instead of the source queue")
	cmd.Flags().BoolVar(&all, "all", false, "return every message in the error queue")
	return cmd
}
