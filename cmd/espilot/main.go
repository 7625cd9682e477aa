package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/hooks"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/status"
	"github.com/srand/espilot/pkg/utils"
	"golang.org/x/sync/errgroup"
)

var rootCmd = &cobra.Command{
	Use:   "espilot",
	Short: "Feeds the event ranges of a job to an event service payload",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetConfigName("espilot.yaml")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/espilot/")
		viper.AddConfigPath("$HOME/.config/espilot")
		viper.AddConfigPath(".")
		viper.SetEnvPrefix("espilot")
		viper.AutomaticEnv()

		if err := viper.ReadInConfig(); err != nil {
			log.Debug(err)
		}

		switch verbosity := viper.GetInt("verbosity"); {
		case verbosity >= 2:
			log.SetLevel(log.TraceLevel)
		case verbosity >= 1:
			log.SetLevel(log.DebugLevel)
		}
		log.Debug("Log verbosity:", log.GetLevel())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		if err := config.Validate(); err != nil {
			return err
		}
		config.Log()

		ctx, cancel := utils.SignalContext(cmd.Context())
		defer cancel()

		return run(ctx, afero.NewOsFs(), config)
	},
	SilenceUsage: true,
}

func run(ctx context.Context, fs utils.Fs, config *Config) error {
	fileHook, err := hooks.NewFileHook(fs, config.JobFile, config.StatusDump)
	if err != nil {
		return err
	}

	stats := hooks.NewStats(fileHook)
	health := status.NewHealthService()
	stats.OnStateChange(health.ObserveState)
	config.OnStateChange = stats.ObserveState

	node := utils.NodeID()
	log.Info("Node:", node)

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	for _, uri := range config.ListenHttp {
		uri := uri
		g.Go(func() error {
			return status.ServeHttp(serveCtx, stats, node, uri)
		})
	}

	for _, uri := range config.ListenGrpc {
		uri := uri
		g.Go(func() error {
			return status.ServeGrpc(serveCtx, health, uri, config.Grpc)
		})
	}

	var runErr error
	g.Go(func() error {
		defer stopServing()
		runErr = eventservice.NewManager(stats, &config.Config).Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(err)
		if runErr == nil {
			runErr = err
		}
	}

	if err := fileHook.Close(); err != nil {
		log.Error("Failed to write event status:", err)
	}

	s := stats.Statistics()
	log.Infof("Event ranges: injected=%d finished=%d failed=%d pending=%d unrecognized=%d",
		s.Injected, s.Finished, s.Failed, s.Pending, s.Unrecognized)

	if runErr != nil {
		if details := utils.Details(runErr); details != "" {
			log.Error(details)
		}
	}

	return runErr
}

func init() {
	rootCmd.Flags().StringP("job-file", "f", "", "Job description file (.json, .json.gz or .json.zst)")
	rootCmd.Flags().StringP("status-dump", "o", "", "Event status report file")
	rootCmd.Flags().StringP("socket-name", "s", "", "Name of the payload control socket (default generated)")
	rootCmd.Flags().String("socket-context", "local", "Control socket context: local or network")
	rootCmd.Flags().IntP("ranges-per-request", "n", 1, "Event ranges handed out per payload request")
	rootCmd.Flags().Duration("poll-interval", 0, "Driver poll interval (default 1s)")
	rootCmd.Flags().Duration("grace-period", 0, "Time between SIGTERM and SIGKILL of the payload (default 3s)")
	rootCmd.Flags().StringP("workdir", "w", "", "Payload working directory")
	rootCmd.Flags().String("max-line-size", "1MiB", "Longest message accepted from the payload")
	rootCmd.Flags().StringSliceP("listen-http", "l", nil, "Address and port to serve status on, e.g. tcp://:8080")
	rootCmd.Flags().StringSliceP("listen-grpc", "g", nil, "Address and port to serve health checks on, e.g. tcp://:9090")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")

	viper.BindPFlag("job_file", rootCmd.Flags().Lookup("job-file"))
	viper.BindPFlag("status_dump", rootCmd.Flags().Lookup("status-dump"))
	viper.BindPFlag("socket_name", rootCmd.Flags().Lookup("socket-name"))
	viper.BindPFlag("socket_context", rootCmd.Flags().Lookup("socket-context"))
	viper.BindPFlag("ranges_per_request", rootCmd.Flags().Lookup("ranges-per-request"))
	viper.BindPFlag("poll_interval", rootCmd.Flags().Lookup("poll-interval"))
	viper.BindPFlag("grace_period", rootCmd.Flags().Lookup("grace-period"))
	viper.BindPFlag("workdir", rootCmd.Flags().Lookup("workdir"))
	viper.BindPFlag("max_line_size", rootCmd.Flags().Lookup("max-line-size"))
	viper.BindPFlag("listen_http", rootCmd.Flags().Lookup("listen-http"))
	viper.BindPFlag("listen_grpc", rootCmd.Flags().Lookup("listen-grpc"))
	viper.BindPFlag("verbosity", rootCmd.Flags().Lookup("verbose"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
