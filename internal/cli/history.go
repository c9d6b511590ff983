package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/epalmerini/snoop/internal/db"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		sessionID int64
		captureID int64
		limit     int64
		offset    int64
	)

	cmd := &cobra.Command{
		Use:   "history [query]",
		Short: "Browse and search messages captured by tail --capture",
		Long: `Without arguments, list recent capture sessions. With --session, list that
session's messages. With a query, full-text search message types, queues,
routing keys, bodies and error details (every word must match).`,
		Example: `  snoop history
  snoop history --session 3
  snoop history OrderPlaced timeout
  snoop history --id 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.NewStore(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening history database: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			query := strings.Join(args, " ")

			switch {
			case captureID > 0:
				m, err := store.GetMessage(ctx, captureID)
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("no captured message %d", captureID)
				}
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, m)
				}
				renderCaptures(out, []db.Message{*m})
				return nil

			case query == "" && sessionID == 0:
				sessions, err := store.ListRecentSessions(ctx, limit)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, nonNil(sessions))
				}
				renderSessions(out, sessions)
				return nil
			}

			var msgs []db.Message
			switch {
			case query == "":
				msgs, err = store.ListMessagesBySession(ctx, sessionID, limit, offset)
			case sessionID > 0:
				msgs, err = store.SearchMessagesInSession(ctx, query, sessionID, limit, offset)
			default:
				msgs, err = store.SearchMessages(ctx, query, limit, offset)
			}
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(out, nonNil(msgs))
			}
			renderCaptures(out, msgs)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int64VarP(&sessionID, "session", "s", 0, "restrict to one capture session")
	flags.Int64Var(&captureID, "id", 0, "show one captured message")
	flags.Int64VarP(&limit, "limit", "n", 50, "maximum rows")
	flags.Int64Var(&offset, "offset", 0, "rows to skip")
	return cmd
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
