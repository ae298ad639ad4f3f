package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
)

const version = "1.0.0"

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "mpd2cdspvolume v%s\n", version)
	fmt.Fprintln(w, "Synchronize MPD volume to CamillaDSP")
}

// cliOptions are the parsed command-line flags.
type cliOptions struct {
	configPath  string
	verbose     bool
	showVersion bool
	overrides   FlagOverrides
}

// parseFlags parses args (without the program name).
func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions

	fs := flag.NewFlagSet("mpd2cdspvolume", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default: none)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Show debug output.")
	fs.BoolVarP(&opts.showVersion, "version", "V", false, "Print version and exit")

	mpdHost := fs.String("mpd_host", defaultMPDHost, "Host running MPD.")
	mpdPort := fs.Int("mpd_port", defaultMPDPort, "Port used by MPD.")
	cdspHost := fs.String("cdsp_host", defaultCamillaDSPHost, "Host running CamillaDSP.")
	cdspPort := fs.Int("cdsp_port", defaultCamillaDSPPort, "Port used by CamillaDSP.")
	dynamicRange := fs.Int("dynamic_range", defaultDynamicRangeDB, "Dynamic range of the volume curve in dB.")
	volumeOffset := fs.Float64("volume_offset", defaultVolumeOffsetDB, "Attenuation in dB applied to every volume.")
	stateFile := fs.StringP("volume_state_file", "s", "", "File where to store the volume state. (default: none)")
	pidFile := fs.StringP("pid_file", "p", "", "Write PID of process to this file. (default: none)")
	ipcSocket := fs.String("ipc_socket", "", "Unix socket for status queries. (default: none)")
	logLevel := fs.String("log_level", "info", "Log level: error, warn, info, debug")

	fs.Usage = func() {
		printVersion(stderr)
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "USAGE:")
		fmt.Fprintln(stderr, "  mpd2cdspvolume [OPTIONS]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "OPTIONS:")
		fmt.Fprint(stderr, fs.FlagUsages())
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags override values from the config file. SIGHUP is accepted but ignored.")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	o := &opts.overrides
	if fs.Changed("mpd_host") {
		o.MPDHost = mpdHost
	}
	if fs.Changed("mpd_port") {
		o.MPDPort = mpdPort
	}
	if fs.Changed("cdsp_host") {
		o.CamillaHost = cdspHost
	}
	if fs.Changed("cdsp_port") {
		o.CamillaPort = cdspPort
	}
	if fs.Changed("dynamic_range") {
		o.DynamicRange = dynamicRange
	}
	if fs.Changed("volume_offset") {
		o.VolumeOffset = volumeOffset
	}
	if fs.Changed("volume_state_file") {
		o.VolumeStateFile = stateFile
	}
	if fs.Changed("pid_file") {
		o.PIDFile = pidFile
	}
	if fs.Changed("ipc_socket") {
		o.IPCSocketPath = ipcSocket
	}
	if fs.Changed("log_level") {
		o.LogLevel = logLevel
	}
	if opts.verbose {
		debug := string(LogLevelDebug)
		o.LogLevel = &debug
	}

	return opts, nil
}

// loadConfig builds the effective config from defaults, file and flags.
func loadConfig(opts cliOptions) (Config, error) {
	cfg := DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = LoadConfigFile(opts.configPath)
		if err != nil {
			return Config{}, err
		}
	}
	opts.overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// notifySignals routes SIGINT/SIGTERM to the returned context and SIGHUP to
// the channel. It runs before any start-up I/O so an early signal never
// kills the process before the PID file is released.
func notifySignals() (context.Context, <-chan os.Signal, func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	return ctx, hup, func() {
		signal.Stop(hup)
		stop()
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
	if opts.showVersion {
		printVersion(os.Stdout)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	ctx, hup, stopSignals := notifySignals()
	defer stopSignals()

	level, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stdout, level)
	logger.Info("start-up mpd2cdspvolume", "version", version)
	logger.Debug("configuration",
		"mpd", cfg.MPDAddr(),
		"camilladsp", cfg.CamillaDSPURL(),
		"dynamic_range", cfg.DynamicRange,
		"volume_offset", cfg.VolumeOffset,
		"volume_state_file", cfg.VolumeStateFile,
		"pid_file", cfg.PIDFile,
		"ipc_socket", cfg.IPC.SocketPath)

	if cfg.PIDFile != "" {
		pf, err := acquirePIDFile(cfg.PIDFile)
		if err != nil {
			logger.Error("failed to write pid file", "path", cfg.PIDFile, "error", err)
			return 1
		}
		logger.Info("pid file", "path", cfg.PIDFile)
		defer func() {
			if err := pf.Release(); err != nil {
				logger.Warn("failed to remove pid file", "path", cfg.PIDFile, "error", err)
			}
		}()
	}

	client, err := NewCamillaDSPClient(cfg.CamillaDSPURL(), logger, cfg.CamillaDSPTimeout())
	if err != nil {
		logger.Error("invalid CamillaDSP address", "error", err)
		return 1
	}
	defer client.Close()

	sink := NewVolumeSink(client, cfg.VolumeStateFile, logger)
	if !sink.EnsureStateFile() {
		logger.Error("cannot use volume state file; exiting", "path", cfg.VolumeStateFile)
		return 1
	}

	if err := probeCamillaDSP(client, logger); err != nil {
		logger.Error("unsupported CamillaDSP", "url", cfg.CamillaDSPURL(), "error", err)
		return 1
	}

	status := &SyncStatus{}
	player := newMPDClient(cfg.MPDAddr(), cfg.MPD.Password, logger, mixerSubsystem)
	monitor := NewMixerMonitor(player, sink, float64(cfg.DynamicRange), cfg.VolumeOffset, status, logger)

	if err := runDaemon(ctx, monitor, sink, hup, cfg.IPC.SocketPath, status, logger); err != nil {
		logger.Error("daemon stopped with error", "error", err)
		return 1
	}

	logger.Info("shutting down")
	return 0
}
