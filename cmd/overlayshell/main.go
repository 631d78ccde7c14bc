package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
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
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "helper":
		os.Exit(runHelper(os.Args[2:]))
	case "surface":
		os.Exit(runSurface(os.Args[2:]))
	case "overlays":
		os.Exit(runOverlays(os.Args[2:]))
	case "broadcast":
		os.Exit(runBroadcast(os.Args[2:]))
	case "media":
		os.Exit(runMedia(os.Args[2:]))
	case "taskbar":
		os.Exit(runTaskbar(os.Args[2:]))
	case "attach":
		os.Exit(runAttach(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "top":
		os.Exit(runTop(os.Args[2:]))
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
	fmt.Fprintln(w, "Usage: overlayshell <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the overlayshell daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  reload              Reload the daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  helper list         List running native helpers")
	fmt.Fprintln(w, "  helper start        Start (or restart) a helper")
	fmt.Fprintln(w, "  helper stop         Stop a helper")
	fmt.Fprintln(w, "  helper restart      Restart every configured helper")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  surface list        List surfaces")
	fmt.Fprintln(w, "  surface create      Create an overlay surface on a display")
	fmt.Fprintln(w, "  surface destroy     Destroy an overlay surface")
	fmt.Fprintln(w, "  surface front       Raise a surface")
	fmt.Fprintln(w, "  surface transparent Set a surface's input transparency")
	fmt.Fprintln(w, "  overlays toggle     Show or hide every overlay")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  broadcast           Send a named broadcast to every surface")
	fmt.Fprintln(w, "  media               Show or control the media session")
	fmt.Fprintln(w, "  taskbar             Show or act on the taskbar inventory")
	fmt.Fprintln(w, "  attach              Drive a surface over stdin/stdout")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  top                 Open the live dashboard")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'overlayshell <command> --help' for command-specific options.")
}

// newFlagSet returns a flag set that prints usage followed by its flags.
func newFlagSet(name string, usage ...string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		for _, line := range usage {
			fmt.Fprintln(os.Stderr, line)
		}
		if fs.HasFlags() {
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Flags:")
			fs.PrintDefaults()
		}
	}
	return fs
}

// parse parses args into fs and checks the positional argument count. It
// returns -1 when the command should continue, or an exit code.
func parse(fs *pflag.FlagSet, args []string, minArgs, maxArgs int) int {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() < minArgs || (maxArgs >= 0 && fs.NArg() > maxArgs) {
		fmt.Fprintf(os.Stderr, "%s: wrong number of arguments\n\n", fs.Name())
		fs.Usage()
		return 2
	}
	return -1
}

func isHelp(arg string) bool {
	return arg == "help" || arg == "-h" || arg == "--help"
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}
