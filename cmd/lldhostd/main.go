// lldhostd is a standalone runner for the LLD host reconciliation engine.
// It exposes an interactive REPL for replaying discovery payloads and
// inspecting prior runs against a SQLite-backed store.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/lldhost/reconciler/internal/cli"
	"github.com/lldhost/reconciler/internal/core"
)

const version = "0.1.0"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version")
		dbPath      = flag.String("db", "", "Database path (default: auto-generated in .lldhost/)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		configFile  = flag.String("config-file", "", "Path to a JSON file overriding hostname_charset/default_lifetime_days; hot-reloaded on write")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `lldhostd v%s - LLD host reconciliation engine

Usage: lldhostd [options]

Options:
`, version)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  lldhostd                         Start interactive REPL
  lldhostd --debug                 Start with debug logging
  lldhostd --db ./lld.db           Use a specific database
  lldhostd --config-file ops.json  Apply and hot-reload config overrides
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("lldhostd v%s\n", version)
		return
	}

	engine, err := core.NewEngine(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		engine.SetConfig("debug_mode", "true")
	}

	if *configFile != "" {
		if err := engine.WatchOverrideFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	repl, err := cli.New(engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := repl.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
