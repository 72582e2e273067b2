package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ashare/archive"
	"github.com/rustyeddy/ashare/config"
	"github.com/rustyeddy/ashare/eventstore"
	"github.com/rustyeddy/ashare/pkg/logging"
	"github.com/rustyeddy/ashare/provider"
	"github.com/rustyeddy/ashare/recommend"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootConfig holds the global flags and what PersistentPreRunE builds
// from them.
type RootConfig struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	Provider   string

	Config *config.Config
	Log    *slog.Logger
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:           "ashare",
		Short:         "A-share daily recommendations, backtests and chat archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&rc.EnvFile, "env-file", ".env", "Dotenv file loaded before the config")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&rc.Provider, "provider", "", "Data provider, overrides the config")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rc.load(cmd.ErrOrStderr())
	}

	cmd.AddCommand(
		newRecommendCmd(rc),
		newBacktestCmd(rc),
		newChatCmd(rc),
		newConfigCmd(rc),
		newProviderCmd(rc),
		newServeCmd(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ashare %s\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (rc *RootConfig) load(stderr io.Writer) error {
	rc.Log = logging.New(rc.LogLevel, stderr)
	slog.SetDefault(rc.Log)
	if err := config.LoadEnv(rc.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return err
	}
	if rc.Provider != "" {
		cfg.DataProvider = rc.Provider
	}
	rc.Config = cfg
	return nil
}

// dataProvider builds the configured provider. With redis configured its
// snapshot goes through the cache.
func (rc *RootConfig) dataProvider() (provider.Provider, error) {
	opts := rc.Config.ProviderOptions(rc.Log)
	p, err := provider.New(rc.Config.DataProvider, opts)
	if err != nil {
		return nil, err
	}
	if r := rc.Config.Redis; r.Addr != "" {
		p = provider.NewSnapshotCache(p, provider.NewRedis(r.Addr, r.Password, r.DB), opts)
	}
	return p, nil
}

// engine wires the orchestrator. The returned func releases the archive.
func (rc *RootConfig) engine(outDir string) (*recommend.Engine, func(), error) {
	p, err := rc.dataProvider()
	if err != nil {
		return nil, nil, err
	}
	opts := rc.Config.RecommendOptions(p, rc.Log)
	if outDir != "" {
		opts.OutDir = outDir
	}

	release := func() {}
	if dsn := rc.Config.Archive.DSN; dsn != "" {
		a, err := archive.Open(dsn, rc.Log)
		if err != nil {
			return nil, nil, err
		}
		opts.Archive = a
		release = func() { a.Close() }
	}

	e, err := recommend.New(opts)
	if err != nil {
		release()
		return nil, nil, err
	}
	return e, release, nil
}

func (rc *RootConfig) store() (*eventstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(rc.Config.ChatDB), 0o755); err != nil {
		return nil, err
	}
	return eventstore.Open(rc.Config.ChatDB, eventstore.Options{
		Location: rc.Config.Location(),
		Logger:   rc.Log,
	})
}

func (rc *RootConfig) providerHealth(ctx context.Context) []provider.Health {
	return provider.CheckAll(ctx, rc.Config.ProviderOptions(rc.Log))
}
