package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/wsrpc/logging"
	"github.com/vinayprograms/wsrpc/telemetry"
	"github.com/vinayprograms/wsrpc/transport"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "0.1.0"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath   string
	endpoint     string
	headers      []string
	logLevel     string
	otlpEndpoint string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "wsrpc",
		Short: "Send and receive JSON-RPC messages over a websocket",
		Long: `wsrpc connects to a JSON-RPC endpoint over a websocket, retrying the
handshake and each write up to the configured attempt limit.

Settings come from --config, or the first of ./wsrpc.toml,
$XDG_CONFIG_HOME/wsrpc/config.toml and ~/.wsrpc.toml. Flags override the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (TOML)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "endpoint URL (http, https, ws or wss)")
	flags.StringArrayVar(&opts.headers, "header", nil, "handshake header as key=value (repeatable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "export traces to this OTLP collector")

	root.AddCommand(newSendCmd(opts), newPipeCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the wsrpc version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "wsrpc version %s\n", version)
			return nil
		},
	}
}

// config resolves the effective configuration: file first, then flags.
func (o *globalOptions) config() (transport.Config, error) {
	var (
		cfg transport.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = transport.LoadConfig(o.configPath)
	} else {
		cfg, _, err = transport.FindConfig()
	}
	if err != nil {
		return transport.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if len(o.headers) > 0 && cfg.Headers == nil {
		cfg.Headers = make(map[string]string, len(o.headers))
	}
	for _, h := range o.headers {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return transport.Config{}, fmt.Errorf("invalid --header %q (want key=value)", h)
		}
		cfg.Headers[strings.TrimSpace(k)] = v
	}
	if cfg.Endpoint == "" {
		return transport.Config{}, fmt.Errorf("no endpoint configured (use --endpoint or set endpoint in the config file)")
	}
	return cfg, nil
}

// session is one connected client plus the resources that outlive it.
type session struct {
	client   *transport.Client
	logger   *logging.Logger
	provider *telemetry.Provider
}

func (o *globalOptions) openSession(ctx context.Context, cmd *cobra.Command, obs transport.Observer) (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}

	logger := logging.New()
	logger.SetOutput(cmd.ErrOrStderr())
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	s := &session{logger: logger.WithComponent("wsrpc")}
	if o.otlpEndpoint != "" {
		s.provider, err = telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceVersion: version,
			Endpoint:       o.otlpEndpoint,
			Insecure:       true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init telemetry: %w", err)
		}
	}

	s.client, err = transport.NewClientFromConfig(cfg,
		transport.WithLogger(logger),
		transport.WithObserver(obs))
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.provider.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry_shutdown_failed", map[string]interface{}{"error": err})
		}
	}
	_ = s.logger.Sync()
}

// lineWriter writes one JSON document per line from any goroutine.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err = fmt.Fprintf(lw.w, "%s\n", data)
	return err
}
