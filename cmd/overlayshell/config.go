package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/overlayshell/internal/config"
)

const configPathUsage = "Config file path (default: ~/.config/overlayshell/config.yaml)"

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  overlayshell config validate [--path PATH]")
	fmt.Fprintln(w, "  overlayshell config print [--path PATH] [--defaults]")
	fmt.Fprintln(w, "  overlayshell config explain [--path PATH] <yaml.path>")
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runConfig(args []string) int {
	if len(args) == 0 {
		printConfigUsage(os.Stderr)
		return 2
	}
	if isHelp(args[0]) {
		printConfigUsage(os.Stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		fs := newFlagSet("config validate", "Usage: overlayshell config validate [--path PATH]")
		path := fs.String("path", "", configPathUsage)
		if code := parse(fs, args[1:], 0, 0); code >= 0 {
			return code
		}
		res, err := loadConfig(*path)
		if err != nil {
			return fail(err)
		}
		for _, f := range res.Files {
			fmt.Printf("loaded: %s\n", f)
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := newFlagSet("config print",
			"Usage: overlayshell config print [--path PATH] [--defaults]",
			"",
			"Print the effective configuration as YAML.")
		path := fs.String("path", "", configPathUsage)
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if code := parse(fs, args[1:], 0, 0); code >= 0 {
			return code
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				return fail(err)
			}
			cfg = res.Config
		}
		fmt.Printf("# resolved_bins_dir: %s\n", cfg.ResolvedBinsDir())
		data, err := cfg.Marshal()
		if err != nil {
			return fail(err)
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := newFlagSet("config explain",
			"Usage: overlayshell config explain [--path PATH] <yaml.path>",
			"",
			"Show a config value and the file line that set it.")
		path := fs.String("path", "", configPathUsage)
		if code := parse(fs, args[1:], 1, 1); code >= 0 {
			return code
		}
		queryPath := fs.Arg(0)

		res, err := loadConfig(*path)
		if err != nil {
			return fail(err)
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			return fail(err)
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			return fail(err)
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n\n", args[0])
		printConfigUsage(os.Stderr)
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
