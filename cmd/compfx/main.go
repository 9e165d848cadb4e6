package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/1broseidon/compfx/internal/config"
	"github.com/1broseidon/compfx/internal/daemon"
	"github.com/1broseidon/compfx/internal/ipc"
	"github.com/1broseidon/compfx/internal/logging"
	"github.com/1broseidon/compfx/internal/platform"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "timelines":
		os.Exit(runTimelines(os.Args[2:]))
	case "timers":
		os.Exit(runTimers(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: compfx <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the compfx daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon and scheduler status")
	fmt.Fprintln(w, "  timelines           List running effect timelines")
	fmt.Fprintln(w, "  timers              List timer pool entries")
	fmt.Fprintln(w, "  reload              Reload the daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'compfx <command> --help' for command-specific options.")
}

// parseNoArgs parses a subcommand that only takes flags. It returns -1 when
// the caller should continue.
func parseNoArgs(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s takes no arguments\n", fs.Name())
		fs.Usage()
		return 2
	}
	return -1
}

func newFlagSet(name, usage, help string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: "+usage)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, help)
		fs.PrintDefaults()
	}
	return fs
}

func runStatus(args []string) int {
	fs := newFlagSet("status", "compfx status [--json]", "Show daemon and scheduler status via IPC.")
	asJSON := fs.Bool("json", false, "Print raw JSON")
	if code := parseNoArgs(fs, args); code >= 0 {
		return code
	}

	client := ipc.NewClient()
	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(status)
	}
	fmt.Printf("daemon_running:    %v\n", status.DaemonRunning)
	fmt.Printf("uptime_seconds:    %d\n", status.UptimeSeconds)
	fmt.Printf("frame_rate:        %d\n", status.FrameRate)
	fmt.Printf("composite_version: %s\n", status.CompositeVersion)
	fmt.Printf("effects:           %s\n", strings.Join(status.Effects, ", "))
	fmt.Printf("timers:            %d (%d ready)\n", status.Pool.Entries, status.Pool.Ready)
	fmt.Printf("dispatches:        %d\n", status.Pool.Dispatches)
	fmt.Printf("resyncs:           %d\n", status.Pool.Resyncs)
	return 0
}

func runTimelines(args []string) int {
	fs := newFlagSet("timelines", "compfx timelines [--json]", "List the timelines effects are running, one per animated window.")
	asJSON := fs.Bool("json", false, "Print raw JSON")
	if code := parseNoArgs(fs, args); code >= 0 {
		return code
	}

	timelines, err := ipc.NewClient().ListTimelines()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(timelines)
	}
	if len(timelines) == 0 {
		fmt.Println("no running timelines")
		return 0
	}
	fmt.Printf("%-12s %-8s %-9s %-8s %s\n", "WINDOW", "EFFECT", "DIRECTION", "STATE", "FRAME")
	for _, tl := range timelines {
		fmt.Printf("0x%-10x %-8s %-9s %-8s %d/%d (%.0f%%)\n",
			uint32(tl.Window), tl.Effect, tl.Direction, tl.State, tl.Frame, tl.TotalFrames, tl.Progress*100)
	}
	return 0
}

func runTimers(args []string) int {
	fs := newFlagSet("timers", "compfx timers [--json]", "List timer pool entries in dispatch order.")
	asJSON := fs.Bool("json", false, "Print raw JSON")
	if code := parseNoArgs(fs, args); code >= 0 {
		return code
	}

	timers, err := ipc.NewClient().ListTimers()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(timers)
	}
	fmt.Printf("%-6s %-10s %-8s %s\n", "ID", "PERIOD", "FRAMES", "FLAGS")
	for _, e := range timers {
		var flags []string
		if e.Master {
			flags = append(flags, "master")
		}
		if e.Ready {
			flags = append(flags, "ready")
		}
		fmt.Printf("%-6d %-10s %-8d %s\n", e.ID, e.Period, e.Frames, strings.Join(flags, ","))
	}
	return 0
}

func runReload(args []string) int {
	fs := newFlagSet("reload", "compfx reload", "Ask the daemon to re-read its configuration.")
	if code := parseNoArgs(fs, args); code >= 0 {
		return code
	}

	if err := ipc.NewClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("config reloaded")
	return 0
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  compfx config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  compfx config print [--path PATH] [--effective|--defaults]")
		fmt.Fprintln(os.Stderr, "  compfx config explain [--path PATH] <yaml.path>")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/compfx/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/compfx/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		printEffective := fs.Bool("effective", false, "Print effective config (default)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			_ = printEffective // default
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			for _, f := range res.Files {
				fmt.Printf("# loaded: %s\n", f)
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := flag.NewFlagSet("explain", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/compfx/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return string(src.Kind)
	}
}

func runDaemon(args []string) int {
	fs := newFlagSet("daemon", "compfx daemon [--config PATH]", "Start the compfx daemon in the foreground.")
	configPath := fs.String("config", "", "Config file path (default: ~/.config/compfx/config.yaml)")
	if code := parseNoArgs(fs, args); code >= 0 {
		return code
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			log.Printf("Failed to resolve config path: %v", err)
			return 1
		}
	}

	res, err := config.LoadFromPath(path)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	cfg := res.Config
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	logger.Info("configuration loaded", "files", res.Files, "frame_rate", cfg.FrameRate)

	if cfg.Display != "" {
		os.Setenv("DISPLAY", cfg.Display)
	}

	backend, err := platform.NewLinuxBackendFromDisplay()
	if err != nil {
		log.Printf("Failed to connect to display: %v", err)
		return 1
	}
	defer backend.Disconnect()

	d, err := daemon.New(cfg, backend, daemon.Config{
		ConfigPath: path,
		Logger:     logger,
	})
	if err != nil {
		log.Printf("Failed to start daemon: %v", err)
		return 1
	}

	ipcServer, err := ipc.NewServer(d, logger.With("component", "ipc"))
	if err != nil {
		log.Printf("Failed to create IPC server: %v", err)
		return 1
	}
	if err := ipcServer.Start(); err != nil {
		log.Printf("Failed to start IPC server: %v", err)
		return 1
	}
	defer ipcServer.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, reloading config")
				if err := d.Reload(); err != nil {
					logger.Error("config reload failed", "error", err)
				}
			}
		}
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon stopped", "error", err)
		return 1
	}
	logger.Info("shutting down compfx daemon")
	return 0
}
