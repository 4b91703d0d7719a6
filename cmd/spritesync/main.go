package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/spritesync/internal/config"
	"github.com/TheMichaelB/spritesync/internal/events"
)

var (
	// Global flags
	cfgFile    string
	jsonOutput bool

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *events.Logger
	plain  bool
)

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"base":      "paths.base_dir",
	"source":    "paths.source_dir",
	"output":    "paths.output_dir",
	"ledger":    "paths.ledger_file",
	"preview":   "preview",
	"plain":     "plain",
	"strict":    "strict",
	"watch":     "watch.enabled",
	"log-level": "log.level",
}

var rootCmd = &cobra.Command{
	Use:   "spritesync",
	Short: "Incrementally export Aseprite sprites",
	Long: `spritesync keeps a tree of exported sprite sheets in step with a tree
of Aseprite sources.

Each run fingerprints the sources, compares them with the ledger written by
the previous run, deletes artifacts whose source is gone and exports only
new or changed sprites. Running spritesync without a command is the same
as "spritesync sync".`,
	Example: `  spritesync --base ./assets
  spritesync --preview
  spritesync --watch`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runSync,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./spritesync.yaml or ~/.config/spritesync/)")
	flags.String("base", "", "Base directory the default paths derive from")
	flags.String("source", "", "Source tree (default: <base>/sprites/ase)")
	flags.String("output", "", "Output tree (default: <base>/sprites/png)")
	flags.String("ledger", "", "Ledger file (default: <base>/sprites/.hashes)")
	flags.Bool("preview", false, "Show what would change without writing anything")
	flags.Bool("plain", false, "Disable colors and decoration")
	flags.Bool("strict", false, "Exit non-zero when any export failed")
	flags.Bool("watch", false, "Keep running and re-sync on source changes")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
}

// setup loads configuration and creates the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	loader := config.NewLoader(cfgFile)
	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := loader.Viper().BindPFlag(key, flag); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	loaded, err := loader.Load()
	if err != nil {
		return err
	}

	for _, p := range []*string{&loaded.Paths.SourceDir, &loaded.Paths.OutputDir, &loaded.Paths.LedgerFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}

	plain = loaded.Plain || jsonOutput || !term.IsTerminal(int(os.Stdout.Fd()))
	if plain {
		color.NoColor = true
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		loaded.Log.Color = false
	}

	log, err := events.NewLogger(&loaded.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(log)

	if file := loader.ConfigFile(); file != "" {
		log.WithField("file", file).Debug("Loaded config file")
	}

	cfg = loaded
	logger = log
	return nil
}

// Output helpers

func printWarning(format string, args ...interface{}) {
	if jsonOutput {
		return
	}
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	if jsonOutput {
		return
	}
	fmt.Printf(format+"\n", args...)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("Error: %v", err)
		os.Exit(1)
	}
}
