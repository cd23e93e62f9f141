package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("argbd v%s\n", version)
	fmt.Println("Control daemon for Arduino ARGB fan controllers")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  argbd [OPTIONS]")
	fmt.Println("  argbd ports")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Talks to the controller over a serial link, keeps per-channel telemetry")
	fmt.Println("  history for live charts, and exposes control over a Unix socket, an HTTP")
	fmt.Println("  API and a WebSocket state stream.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file")
	fmt.Println()
	fmt.Println("  -port string")
	fmt.Println("        Serial port (e.g. /dev/ttyUSB0)")
	fmt.Println()
	fmt.Println("  -baud int")
	fmt.Printf("        Serial baud rate: 9600 or 115200 (default %d)\n", defaultBaud)
	fmt.Println()
	fmt.Println("  -connect")
	fmt.Println("        Connect to -port on startup")
	fmt.Println()
	fmt.Println("  -bind-tipsy")
	fmt.Println("        Drive tipsy from measured speed telemetry")
	fmt.Println()
	fmt.Println("  -history-size int")
	fmt.Printf("        Samples kept per chart channel (default %d)\n", defaultHistorySize)
	fmt.Println()
	fmt.Println("  -redraw-ms int")
	fmt.Printf("        Chart frame interval in ms (default %d)\n", defaultRedrawIntervalMS)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/argbd.sock\")")
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Println("        HTTP API listen address; empty disables it (default \"127.0.0.1:8080\")")
	fmt.Println()
	fmt.Println("  -store-dir string")
	fmt.Println("        Directory for presets, macros, history and board config (default \"~/.config/argbd\")")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input device for key/rotary bindings (repeatable)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  ports")
	fmt.Println("        List serial ports and exit")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start and connect to an Arduino on ttyUSB0")
	fmt.Println("  argbd -port /dev/ttyUSB0 -connect")
	fmt.Println()
	fmt.Println("  # Use a config file, override the log level")
	fmt.Println("  argbd -config ~/.config/argbd/argbd.yaml -log-level debug")
	fmt.Println()
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "ports" {
		if err := printPorts(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	// Check for version flag early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		port         = flag.String("port", "", "Serial port")
		baud         = flag.Int("baud", defaultBaud, "Serial baud rate (9600 or 115200)")
		autoConnect  = flag.Bool("connect", false, "Connect to -port on startup")
		bindTipsy    = flag.Bool("bind-tipsy", false, "Drive tipsy from measured speed telemetry")
		historySize  = flag.Int("history-size", defaultHistorySize, "Samples kept per chart channel")
		redrawMS     = flag.Int("redraw-ms", defaultRedrawIntervalMS, "Chart frame interval in ms")
		ipcSocket    = flag.String("ipc-socket", "/tmp/argbd.sock", "Unix domain socket path for IPC")
		httpAddr     = flag.String("http-addr", "127.0.0.1:8080", "HTTP API listen address; empty disables it")
		storeDir     = flag.String("store-dir", "~/.config/argbd", "Directory for persisted data")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		inputDevices stringList
		_            = flag.Bool("version", false, "Print version and exit")
		_            = flag.Bool("help", false, "Print help message")
	)
	flag.Var(&inputDevices, "input-device", "Linux input device (repeatable)")

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			o.SerialPort = port
		case "baud":
			o.SerialBaud = baud
		case "connect":
			o.AutoConnect = autoConnect
		case "bind-tipsy":
			o.TipsyBind = bindTipsy
		case "history-size":
			o.HistorySize = historySize
		case "redraw-ms":
			o.RedrawIntervalMS = redrawMS
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "store-dir":
			o.StoreDir = storeDir
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.InputDevices = inputDevices
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("argbd stopped", "error", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until shutdown.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := NewStore(ExpandPath(cfg.Store.Dir))
	history := NewHistory(store.HistoryPath(), historyMaxEntries)
	if err := history.Load(); err != nil {
		logger.Warn("history not loaded", "error", err)
	}

	state := newControllerState(cfg.Telemetry.HistorySize, cfg.Channels, cfg.Telemetry.AutoRedraw, cfg.Tipsy.Bind, cfg.Serial.Baud)
	if m, err := store.LoadMacros(); err != nil {
		logger.Warn("macros not loaded", "error", err)
	} else {
		state.Macros = m
	}
	if p, err := store.LoadPresets(); err != nil {
		logger.Warn("presets not loaded", "error", err)
	} else {
		state.Presets = p
	}
	if b, err := store.LoadBoard(); err != nil {
		logger.Warn("board config not loaded", "error", err)
	} else {
		state.Board = b
	}

	// Central event bus
	events := make(chan Event, 256)
	broadcasts := make(chan StateBroadcast, 256)

	env := &effectsEnv{
		open:    openSerialPort,
		store:   store,
		history: history,
		ingest:  events,
	}
	dcfg := daemonConfig{
		Rotary:         cfg.ToRotaryConfig(),
		RedrawInterval: time.Duration(cfg.Telemetry.RedrawIntervalMS) * time.Millisecond,
	}
	timeout := time.Duration(cfg.IPC.TimeoutMS) * time.Millisecond

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, env, dcfg, state, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, timeout, logger)
	})

	if cfg.HTTP.Enabled {
		ws := NewServer(logger, events, history, ServerConfig{})
		api := NewAPIServer(events, history, timeout, logger)
		ws.Register(api.Router(), "/ws")

		g.Go(func() error {
			ws.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, ws.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Addr, api, logger)
		})
	} else {
		// Nobody streams state; keep the queue drained.
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-broadcasts:
				}
			}
		})
	}

	if len(cfg.Input.Devices) > 0 {
		startInput(gctx, g, cfg, events, logger)
	}

	logger.Info("listening",
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Addr,
		"http_enabled", cfg.HTTP.Enabled,
		"store", ExpandPath(cfg.Store.Dir),
		"input_devices", len(cfg.Input.Devices))

	if cfg.Serial.AutoConnect {
		go func() {
			err := dispatch(gctx, events, Connect{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud}, timeout)
			if err != nil {
				logger.Warn("auto-connect failed", "port", cfg.Serial.Port, "error", err)
			}
		}()
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("shutting down")
	return err
}

// startInput opens the configured input devices and translates their events
// into actions. Input failures are logged; the daemon keeps running.
func startInput(ctx context.Context, g *errgroup.Group, cfg Config, events chan<- Event, logger *slog.Logger) {
	files := openInputDevices(cfg.Input.Devices, logger)
	if len(files) == 0 {
		return
	}

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go readInputDevices(files, raw, readErr)

	g.Go(func() error {
		runInputPump(ctx, raw, events, cfg.ToInputBindings(), logger)
		return nil
	})
	g.Go(func() error {
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()
		select {
		case <-ctx.Done():
		case err := <-readErr:
			logger.Error("input reader stopped", "error", err)
		}
		return nil
	})
}

// printPorts writes the host's serial ports as JSON.
func printPorts() error {
	ports, err := listPorts()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ports)
}
