package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dupdb/internal/app"
	"dupdb/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	configPathFlag string
	verboseFlag    bool
)

// configPath returns --config if given, else the default location.
func configPath() (string, error) {
	if configPathFlag != "" {
		return configPathFlag, nil
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", fmt.Errorf("getting defaults: %w", err)
	}
	return defaults.ConfigPath, nil
}

func readConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config (run 'dupdb config init' first?): %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a DupApp. root overrides watch.root
// when non-empty. The caller must defer app.Close().
func newApp(root string) (*app.DupApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg, root)
}

func newAppFromConfig(cfg *config.Config, root string) (*app.DupApp, error) {
	a, err := app.NewDupApp(cfg, app.Options{Root: root, Verbose: verboseFlag})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:          "dupdb",
	Short:        "Watch a directory and report duplicate files",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path, err := configPath()
		if err != nil {
			return err
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)
		cfg.Watch.Root = root

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Host ID:  %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		if root == "" {
			fmt.Println("Set watch.root, or pass a directory to 'dupdb watch'.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Watch Root:  %s\n", cfg.Watch.Root)
		fmt.Printf("Watch Mode:  %s (debounce %s, max wait %s)\n", cfg.Watch.Mode, cfg.Watch.Debounce, cfg.Watch.MaxWait)
		fmt.Printf("Ignore:      %s\n", strings.Join(cfg.Watch.Ignore, ", "))
		fmt.Printf("Index:       %s (%s)\n", cfg.Index.Type, cfg.Index.DataDir)
		fmt.Printf("Notify:      %s\n", cfg.Notify.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}

		pub, err := app.InitKeys(cfg, passphrase)
		if err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Keys generated.")
		if pub != "" {
			fmt.Printf("Public key: %s\n", pub)
		}
		fmt.Println("Keep the passphrase safe: snapshots cannot be pulled without it.")
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch [DIR]",
	Short: "Keep the index in sync with a directory and alert on duplicates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rescan, _ := cmd.Flags().GetBool("rescan")

		a, err := newApp(optionalArg(args))
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Watch(ctx, rescan)
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [DIR]",
	Short: "Rebuild the index from a full scan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(optionalArg(args))
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var progress *os.File
		if term.IsTerminal(int(os.Stderr.Fd())) && !verboseFlag {
			progress = os.Stderr
		}
		run, err := a.Scan(ctx, writerOrNil(progress))
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Indexed %d file(s) in %s: %d skipped, %d failed, %d duplicate(s)\n",
			run.Updated, run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond),
			run.Skipped, run.Failed, run.Duplicates)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.Close()

		sets, err := a.DuplicateSets()
		if err != nil {
			return err
		}
		if len(sets) == 0 {
			fmt.Println("No duplicates.")
			return nil
		}

		hashColor := color.New(color.FgYellow).SprintFunc()
		firstColor := color.New(color.Bold).SprintFunc()
		redundant := 0
		for _, set := range sets {
			fmt.Printf("%s  (%d copies)\n", hashColor(set.Hash.Hex()), len(set.Paths))
			for i, p := range set.Paths {
				if i == 0 {
					fmt.Printf("  %s\n", firstColor(p))
					continue
				}
				fmt.Printf("  %s\n", p)
			}
			redundant += len(set.Paths) - 1
		}
		color.New(color.FgCyan).Printf("\n%d set(s), %d redundant file(s)\n", len(sets), redundant)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status()
		if err != nil {
			return err
		}
		fmt.Printf("Root:      %s\n", a.Root())
		fmt.Printf("Indexed:   %d file(s)\n", st.Indexed)
		fmt.Printf("Sets:      %d\n", st.Sets)
		fmt.Printf("Redundant: %d\n", st.Redundant)
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show PATH",
	Short: "Show the indexed hash of a path and its copies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Show(args[0])
		if err != nil {
			return err
		}
		if !info.Indexed {
			fmt.Printf("%s is not indexed.\n", info.Path)
			return nil
		}

		fmt.Printf("Path: %s\n", info.Path)
		fmt.Printf("Hash: %s\n", color.YellowString(info.Hash.Hex()))
		if len(info.Copies) == 0 {
			fmt.Println("No other copies.")
			return nil
		}
		fmt.Printf("Copies (%d):\n", len(info.Copies))
		for _, p := range info.Copies {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

// forget command
var forgetCmd = &cobra.Command{
	Use:   "forget PATH",
	Short: "Delete a file and drop it from the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keepFile, _ := cmd.Flags().GetBool("keep-file")
		yes, _ := cmd.Flags().GetBool("yes")

		if !keepFile && !yes {
			ok, err := confirm(fmt.Sprintf("Delete %s from disk?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Forget(args[0], keepFile)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d index entr%s\n", n, pluralY(n))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent index runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("%s  %-5s  %8s  processed:%-5d updated:%-5d removed:%-4d failed:%-3d dups:%d\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Trigger,
				r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond),
				r.Processed, r.Updated, r.Removed, r.Failed, r.Duplicates,
			)
		}
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Back up the index to the configured vault",
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Store an encrypted copy of the index in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.PushSnapshot()
		if err != nil {
			return fmt.Errorf("snapshot push failed: %w", err)
		}
		fmt.Printf("Snapshot version %d stored.\n", version)
		return nil
	},
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull FILE",
	Short: "Fetch the latest index snapshot into FILE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		var passphrase string
		if cfg.Encryption.Type == "" || cfg.Encryption.Type == "age" {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		a, err := newAppFromConfig(cfg, "")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.PullSnapshot(args[0], passphrase)
		if err != nil {
			return fmt.Errorf("snapshot pull failed: %w", err)
		}
		fmt.Printf("Snapshot version %d written to %s\n", version, args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Config file (default $DUPDB_CONFIG_PATH or ~/.config/dupdb.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("root", "", "Directory to watch")
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	snapshotCmd.AddCommand(snapshotPushCmd)
	snapshotCmd.AddCommand(snapshotPullCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("rescan", false, "Rebuild the index before watching")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(forgetCmd)
	forgetCmd.Flags().Bool("keep-file", false, "Only drop the path from the index")
	forgetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(snapshotCmd)
}
