package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/epalmerini/snoop/internal/decode"
)

func newMessagesCmd(a *app) *cobra.Command {
	var (
		filterExpr string
		copyOut    bool
	)

	cmd := &cobra.Command{
		Use:   "messages <queue>",
		Short: "Show decoded messages in a queue without consuming them",
		Long: `Fetch up to max_messages from a queue through the management API and show
them decoded. Messages are requeued, so the queue is left as it was (their
redelivered flag is set).`,
		Example: `  snoop messages orders_error
  snoop messages orders_error --filter type:OrderPlaced
  snoop -o json messages orders_error --copy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filterExpr)
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			msgs, err := svc.LoadMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs = f.apply(msgs)

			if err := a.printMessages(cmd.OutOrStdout(), msgs); err != nil {
				return err
			}
			if copyOut {
				return a.copyMessages(msgs)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "only show matching messages (rk:, ex:, type:, queue:, id:, hdr:, body:, re:)")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the shown messages to the clipboard as JSON")
	return cmd
}

func newPeekCmd(a *app) *cobra.Command {
	var (
		filterExpr string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "peek <queue>",
		Short: "Show decoded messages read over AMQP and requeued",
		Long: `Read messages from a queue over AMQP without acknowledging them, then requeue
them all. Useful when the management plugin is not reachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filterExpr)
			if err != nil {
				return err
			}
			if a.cfg.RabbitMQURL == "" {
				return errors.New("peek needs an AMQP URL: use --profile or set AMQP_URL")
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			p, err := a.newPeeker(a.cfg.RabbitMQURL, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := p.Close(); err != nil {
					a.logger.Warn("closing connection", "error", err)
				}
			}()

			msgs, err := svc.PeekMessages(cmd.Context(), p, args[0], limit)
			if err != nil {
				return err
			}
			return a.printMessages(cmd.OutOrStdout(), f.apply(msgs))
		},
	}

	cmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "only show matching messages")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum messages to read (default max_messages)")
	return cmd
}

func (a *app) printMessages(w io.Writer, msgs []decode.Message) error {
	if a.jsonOutput() {
		if msgs == nil {
			msgs = []decode.Message{}
		}
		return writeJSON(w, msgs)
	}
	renderMessages(w, msgs)
	return nil
}

func (a *app) copyMessages(msgs []decode.Message) error {
	var buf bytes.Buffer
	if err := writeJSON(&buf, msgs); err != nil {
		return err
	}
	if err := a.clipboard(buf.String()); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	fmt.Fprintln(a.stderr, successStyle.Render(fmt.Sprintf("Copied %d messages to clipboard", len(msgs))))
	return nil
}
