package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/epalmerini/snoop/internal/db"
	"github.com/epalmerini/snoop/internal/decode"
	"github.com/epalmerini/snoop/internal/metrics"
	"github.com/epalmerini/snoop/internal/rabbitmq"
)

type tailOptions struct {
	exchange    string
	routingKey  string
	queue       string
	durable     bool
	filter      string
	capture     bool
	metricsAddr string
	count       int
}

func newTailCmd(a *app) *cobra.Command {
	var opts tailOptions

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow messages live as they are published",
		Long: `Subscribe over AMQP and print each message as it arrives. Without --queue a
temporary exclusive queue is bound to --exchange with --routing-key, so other
consumers are not affected. With --capture every shown message is saved to the
local history database (see "snoop history").`,
		Example: `  snoop tail --exchange RebusTopics --routing-key '#'
  snoop tail --queue audit --capture
  snoop tail --exchange RebusTopics --metrics-addr :9090 --filter type:Invoice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTail(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.exchange, "exchange", "e", "amq.topic", "exchange to bind the temporary queue to")
	flags.StringVarP(&opts.routingKey, "routing-key", "k", "#", "binding key for the temporary queue")
	flags.StringVarP(&opts.queue, "queue", "q", "", "consume from this queue instead of a temporary one")
	flags.BoolVar(&opts.durable, "durable", false, "declare --queue as durable if it does not exist")
	flags.StringVarP(&opts.filter, "filter", "f", "", "only show matching messages")
	flags.BoolVar(&opts.capture, "capture", false, "save shown messages to the history database")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.IntVarP(&opts.count, "count", "n", 0, "stop after this many shown messages (0 = until interrupted)")
	return cmd
}

func (a *app) runTail(cmd *cobra.Command, opts tailOptions) (err error) {
	f, err := parseFilter(opts.filter)
	if err != nil {
		return err
	}
	if a.cfg.RabbitMQURL == "" {
		return errors.New("tail needs an AMQP URL: use --profile or set AMQP_URL")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	obs := metrics.New(reg)
	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr, reg, a.logger); err != nil {
				a.logger.Error("metrics server stopped", "addr", opts.metricsAddr, "error", err)
			}
		}()
	}
	dec := a.decoder(decode.WithObserver(obs))

	rcfg := rabbitmq.Config{
		URL:        a.cfg.RabbitMQURL,
		Exchange:   opts.exchange,
		RoutingKey: opts.routingKey,
		QueueName:  opts.queue,
		Durable:    opts.durable,
	}
	t, err := a.newTailer(rcfg, a.logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, t.Close()) }()

	var writer *db.AsyncWriter
	if opts.capture {
		store, sessionID, openErr := a.openCapture(ctx, opts)
		if openErr != nil {
			return openErr
		}
		writer = db.NewAsyncWriter(store, sessionID, a.logger)
		defer func() {
			writer.Close()
			// The command context may already be cancelled here.
			if endErr := store.EndSession(context.Background(), sessionID); endErr != nil {
				a.logger.Warn("ending capture session", "session_id", sessionID, "error", endErr)
			}
			err = errors.Join(err, store.Close())
			fmt.Fprintln(a.stderr, mutedStyle.Render(fmt.Sprintf("Capture session %d saved", sessionID)))
		}()
	}

	deliveries, err := t.Consume(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("tailing", "exchange", opts.exchange, "routing_key", opts.routingKey, "queue", opts.queue)

	out := cmd.OutOrStdout()
	stats := &tailStats{}
	shown := 0
	defer func() {
		fmt.Fprintln(a.stderr, mutedStyle.Render(stats.summary(time.Now())))
	}()

	for {
		var d decode.Delivery
		select {
		case <-ctx.Done():
			return nil
		case dd, ok := <-deliveries:
			if !ok {
				return nil
			}
			d = dd
		}

		msg := dec.Decode(&d)
		if msg == nil {
			continue
		}
		stats.record(time.Now(), len(d.Body))
		if !f.match(*msg) {
			stats.filtered++
			continue
		}

		shown++
		if a.jsonOutput() {
			if err := writeJSON(out, msg); err != nil {
				return err
			}
		} else {
			renderMessage(out, shown, *msg)
		}
		if writer != nil {
			obs.Captured(writer.Save(*msg))
		}
		if opts.count > 0 && shown >= opts.count {
			return nil
		}
	}
}

func (a *app) openCapture(ctx context.Context, opts tailOptions) (db.Store, int64, error) {
	store, err := db.NewStore(a.cfg.DBPath)
	if err != nil {
		return nil, 0, fmt.Errorf("opening history database: %w", err)
	}
	params := db.SessionParams{QueueName: opts.queue}
	if opts.queue == "" {
		params.Exchange = opts.exchange
		params.RoutingKey = opts.routingKey
	}
	sessionID, err := store.CreateSession(ctx, params)
	if err != nil {
		return nil, 0, errors.Join(fmt.Errorf("creating capture session: %w", err), store.Close())
	}
	a.logger.Debug("capture session started", "session_id", sessionID)
	return store, sessionID, nil
}
