// Aegis is a webcam perimeter sentry with voice-gated commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/aegis/internal/config"
	"github.com/teslashibe/aegis/internal/log"
	"github.com/teslashibe/aegis/pkg/sentry"
	"github.com/teslashibe/aegis/pkg/threat"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	debug      bool
	mute       bool
	noWeb      bool
	addr       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "aegis",
		Short:         "Webcam perimeter sentry with voice commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "config file (missing file uses defaults)")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&opts.mute, "mute", false, "disable spoken announcements")
	pf.BoolVar(&opts.noWeb, "no-web", false, "disable the dashboard")
	pf.StringVar(&opts.addr, "addr", "", "dashboard listen address (overrides config)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newConsoleCmd(opts))
	root.AddCommand(newClassifyCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig applies file, environment and flags, in that order.
func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if opts.mute {
		cfg.Audio.Enabled = false
	}
	if opts.noWeb {
		cfg.Web.Enabled = false
	}
	if opts.addr != "" {
		cfg.Web.Addr = opts.addr
	}
	return cfg, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		device   int
		model    string
		noWindow bool
		sttURL   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the webcam and listen for voice commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("camera") {
				cfg.Camera.Device = device
			}
			if model != "" {
				cfg.Detector.ModelPath = model
			}
			if noWindow {
				cfg.Display = false
			}
			if sttURL != "" {
				cfg.Listen.Source = config.ListenWS
				cfg.Listen.WS.URL = sttURL
			}
			return runApp(cmd.Context(), cfg, sentry.WithMode(sentry.ModeLive))
		},
	}
	cmd.Flags().IntVar(&device, "camera", 0, "capture device index")
	cmd.Flags().StringVar(&model, "model", "", "YOLOv8 ONNX model path")
	cmd.Flags().BoolVar(&noWindow, "no-window", false, "do not open the HUD window")
	cmd.Flags().StringVar(&sttURL, "stt-url", "", "streaming transcription websocket URL")
	return cmd
}

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Type commands on stdin against a scripted detection replay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.Display = false
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Say %q followed by a command, e.g. %q. Ctrl+D to exit.\n",
				cfg.Command.WakeWord, cfg.Command.WakeWord+" status")
			return runApp(cmd.Context(), cfg,
				sentry.WithMode(sentry.ModeConsole),
				sentry.WithInput(cmd.InOrStdin()),
			)
		},
	}
}

func runApp(parent context.Context, cfg config.Config, opts ...sentry.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	log.InitWithOptions(cfg.Log)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := sentry.New(cfg, append(opts, sentry.WithLogger(logger))...)
	if err != nil {
		return err
	}
	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer func() {
		if err := app.Shutdown(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	return app.Run(ctx)
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var lockdown bool
	cmd := &cobra.Command{
		Use:   "classify <speed>",
		Short: "Print the threat tier for a speed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("speed must be an integer: %w", err)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cfg.Threat.Tier(speed, lockdown))
			return nil
		},
	}
	cmd.Flags().BoolVar(&lockdown, "lockdown", false, "classify as if lockdown were active")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "aegis %s (thresholds %d/%d)\n",
				version, threat.DefaultThresholds().Caution, threat.DefaultThresholds().Danger)
		},
	}
}
