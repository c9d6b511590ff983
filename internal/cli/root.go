// Package cli is snoop's command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/epalmerini/snoop/internal/config"
	"github.com/epalmerini/snoop/internal/decode"
	"github.com/epalmerini/snoop/internal/inspect"
	"github.com/epalmerini/snoop/internal/logging"
	"github.com/epalmerini/snoop/internal/proto"
	"github.com/epalmerini/snoop/internal/rabbitmq"
	"github.com/epalmerini/snoop/internal/xdg"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// tailer is the AMQP side used by tail.
type tailer interface {
	Consume(ctx context.Context) (<-chan decode.Delivery, error)
	Close() error
}

// peeker is the AMQP side used by peek.
type peeker interface {
	inspect.Peeker
	Close() error
}

// app holds what every command needs once flags and config are resolved.
type app struct {
	version string

	// flags
	profile   string
	configDir string
	output    string
	logLevel  string

	cfg     config.Config
	fileCfg *config.FileConfig
	logger  *slog.Logger
	stderr  io.Writer

	newManagement func(amqpURL, managementURL string) (inspect.Management, error)
	newTailer     func(cfg rabbitmq.Config, logger *slog.Logger) (tailer, error)
	newPeeker     func(url string, logger *slog.Logger) (peeker, error)
	clipboard     func(text string) error
}

func newApp(version string) *app {
	return &app{
		version: version,
		stderr:  os.Stderr,
		newManagement: func(amqpURL, managementURL string) (inspect.Management, error) {
			return rabbitmq.NewManagementClient(amqpURL, managementURL)
		},
		newTailer: func(cfg rabbitmq.Config, logger *slog.Logger) (tailer, error) {
			return rabbitmq.NewConsumer(cfg, logger)
		},
		newPeeker: func(url string, logger *slog.Logger) (peeker, error) {
			return rabbitmq.NewConsumer(rabbitmq.Config{URL: url}, logger)
		},
		clipboard: clipboard.WriteAll,
	}
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(newApp(version)).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "snoop",
		Short: "Inspect Rebus messages in RabbitMQ",
		Long: `snoop reads messages from RabbitMQ queues that carry Rebus headers and shows
them decoded: message type, source queue, sent time, headers, error details and
a readable body (gunzipped, charset-decoded, JSON indented).`,
		Version:      a.version,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.profile, "profile", "p", "", "connection profile from config.toml")
	flags.StringVar(&a.configDir, "config-dir", "", "directory holding config.toml (default $XDG_CONFIG_HOME/snoop)")
	flags.StringVarP(&a.output, "output", "o", outputText, "output format: text, json")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")

	root.AddCommand(
		newQueuesCmd(a),
		newMessagesCmd(a),
		newPeekCmd(a),
		newTailCmd(a),
		newPurgeCmd(a),
		newReturnCmd(a),
		newHistoryCmd(a),
		newProfileCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup() error {
	if a.output != outputText && a.output != outputJSON {
		return fmt.Errorf("unknown output format %q (want text or json)", a.output)
	}

	if err := config.LoadDotEnv(""); err != nil {
		return err
	}

	if a.configDir == "" {
		dir, err := xdg.ConfigDir()
		if err != nil {
			return fmt.Errorf("resolving config directory: %w", err)
		}
		a.configDir = dir
	}

	fileCfg, err := config.LoadFileConfig(a.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := fileCfg.Resolve(a.profile, a.configDir)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	a.fileCfg = fileCfg
	a.cfg = cfg
	a.logger = logging.Setup(a.stderr, cfg.LogLevel, cfg.LogFormat)
	a.logger.Debug("config resolved",
		"profile", cfg.Profile,
		"url", rabbitmq.RedactURL(cfg.RabbitMQURL),
		"management_url", cfg.ManagementURL,
		"vhost", cfg.VHost,
	)
	return nil
}

func (a *app) requireURL() error {
	if a.cfg.RabbitMQURL == "" && a.cfg.ManagementURL == "" {
		return errors.New("no RabbitMQ connection configured: use --profile or set AMQP_URL / RABBITMQ_URL")
	}
	return nil
}

// decoder builds a message decoder, with protobuf rendering when a proto
// path is configured.
func (a *app) decoder(opts ...decode.Option) *decode.Decoder {
	opts = append([]decode.Option{decode.WithLogger(a.logger)}, opts...)
	if a.cfg.ProtoPath != "" {
		pd, err := proto.NewDecoder(a.cfg.ProtoPath)
		if err != nil {
			a.logger.Warn("protobuf rendering disabled", "path", a.cfg.ProtoPath, "error", err)
		} else {
			for _, w := range pd.Warnings() {
				a.logger.Warn("skipped proto file", "detail", w)
			}
			opts = append(opts, decode.WithProtoDecoder(pd))
		}
	}
	return decode.NewDecoder(opts...)
}

func (a *app) service() (*inspect.Service, error) {
	if err := a.requireURL(); err != nil {
		return nil, err
	}
	mgmt, err := a.newManagement(a.cfg.RabbitMQURL, a.cfg.ManagementURL)
	if err != nil {
		return nil, err
	}
	return inspect.New(mgmt, a.decoder(),
		inspect.WithLogger(a.logger),
		inspect.WithVHost(a.cfg.VHost),
		inspect.WithMaxMessages(a.cfg.MaxMessages),
	), nil
}

func (a *app) jsonOutput() bool {
	return a.output == outputJSON
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": a.version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snoop %s\n", a.version)
			return nil
		},
	}
}
