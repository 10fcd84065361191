package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vishnu-kyatannawar/sync-bot/internal/app"
	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newProvider returns the config provider for the default config location.
func newProvider() (*config.Provider, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	return config.NewProvider(defaults["config_path"], defaults["base_dir"]), nil
}

// newApp creates a SyncApp. The caller must defer app.Close().
func newApp(ctx context.Context, opts app.Options) (*app.SyncApp, error) {
	provider, err := newProvider()
	if err != nil {
		return nil, err
	}
	a, err := app.NewSyncApp(ctx, provider, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var rootCmd = &cobra.Command{
	Use:          "syncbot",
	Short:        "Back up tracked files to a remote folder",
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
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := newProvider()
		if err != nil {
			return err
		}
		cfg, err := provider.Load()
		if err != nil {
			return err
		}
		if cfg.Remote.ClientSecret != "" {
			cfg.Remote.ClientSecret = "********"
		}
		if cfg.Remote.S3SecretAccessKey != "" {
			cfg.Remote.S3SecretAccessKey = "********"
		}

		fmt.Printf("# %s\n\n", provider.Path())
		return (&config.Manager{}).Write(os.Stdout, cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := newProvider()
		if err != nil {
			return err
		}
		if _, err := provider.Update(func(c *config.Config) error {
			return c.Set(args[0], args[1])
		}); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

// track command
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage tracked files and folders",
}

var trackAddCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Start tracking files or folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		for _, raw := range args {
			p, err := a.Track(raw)
			if err != nil {
				return fmt.Errorf("tracking %s: %w", raw, err)
			}
			kind := "file"
			if p.IsDir() {
				kind = "folder"
			}
			fmt.Printf("Tracking %s: %s\n", kind, p.String())
		}
		return nil
	},
}

var trackRemoveCmd = &cobra.Command{
	Use:   "remove PATH...",
	Short: "Stop tracking files or folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		for _, raw := range args {
			if err := a.Untrack(raw); err != nil {
				return err
			}
			fmt.Printf("Stopped tracking %s\n", raw)
		}
		return nil
	},
}

var trackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked files and folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		tracked, err := a.ListTracked()
		if err != nil {
			return err
		}
		if len(tracked) == 0 {
			fmt.Println("Nothing tracked.")
			return nil
		}
		for _, tp := range tracked {
			kind := "F"
			if tp.IsDirectory {
				kind = "D"
			}
			fmt.Printf("%s  %s\n", kind, tp.Path)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.SyncNow(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Synced: %d  Skipped: %d\n", result.FilesSynced, result.FilesSkipped)
		if len(result.Errors) > 0 {
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "error: %s\n", e)
			}
			return fmt.Errorf("sync finished with %d error(s)", len(result.Errors))
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show last and next sync times",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status()
		if err != nil {
			return err
		}
		fmt.Printf("Last sync:    %s\n", formatTime(st.LastSync))
		fmt.Printf("Last checked: %s\n", formatTime(st.LastChecked))
		if st.NextSync != nil {
			fmt.Printf("Next sync:    %s\n", formatTime(st.NextSync))
		} else {
			fmt.Println("Next sync:    auto-sync disabled")
		}
		if st.IsSyncing {
			fmt.Println("A sync is in progress.")
		}
		return nil
	},
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Drive",
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the authorization URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Drive()
		if err != nil {
			return err
		}
		url, err := d.AuthURL()
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize in the browser and store the tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := a.Login(ctx, os.Stdout); err != nil {
			return err
		}
		fmt.Println("Authorization complete.")
		return nil
	},
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange CODE",
	Short: "Exchange an authorization code for tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Drive()
		if err != nil {
			return err
		}
		if err := d.ExchangeCode(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Println("Authorization complete.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether stored credentials work",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Drive()
		if err != nil {
			return err
		}
		if !d.IsAuthenticated() {
			fmt.Println("Not authenticated. Run `syncbot auth login`.")
			return nil
		}
		if err := d.EnsureAuthenticated(cmd.Context()); err != nil {
			if errors.Is(err, syncbot.ErrNotAuthenticated) {
				fmt.Println("Stored credentials are no longer valid. Run `syncbot auth login`.")
				return nil
			}
			return err
		}
		fmt.Println("Authenticated.")
		return nil
	},
}

// daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled syncs until interrupted",
	Long: `Run scheduled syncs until interrupted.

The config file is re-read while the daemon runs: interval and auto_sync are
checked every minute, and the [remote] section before every upload. Database,
logging and encryption settings need a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, app.Options{Console: os.Stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RunDaemon(ctx)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-9s  %-7s  %-9s  %d/%d  %s  %s\n",
				shortID(r.RunID),
				r.Trigger,
				r.Status,
				duration,
				r.FilesSynced,
				r.FilesSkipped,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Error,
			)
		}
		return nil
	},
}

// archives command
var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "List retained archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		archives, err := a.ListArchives()
		if err != nil {
			return err
		}
		if len(archives) == 0 {
			fmt.Println("No archives.")
			return nil
		}
		for _, info := range archives {
			fmt.Printf("%s  %10d  %s\n", info.ModTime.Local().Format("2006-01-02 15:04:05"), info.Size, info.Path)
		}
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage encryption keys",
}

var encryptionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.EncryptionConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.InitEncryption(pass); err != nil {
			return err
		}
		fmt.Println("Keys created. Enable with `syncbot config set encryption.enabled true`.")
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt SRC [DST]",
	Short: "Decrypt a downloaded backup",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		dst := strings.TrimSuffix(src, ".age")
		if len(args) == 2 {
			dst = args[1]
		}
		if dst == src {
			return fmt.Errorf("destination must differ from source")
		}

		a, err := newApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if err := a.Decrypt(src, dst, pass); err != nil {
			return err
		}
		fmt.Printf("Decrypted to %s\n", dst)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)

	// track subcommands
	trackCmd.AddCommand(trackAddCmd)
	trackCmd.AddCommand(trackRemoveCmd)
	trackCmd.AddCommand(trackListCmd)

	// auth subcommands
	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authLoginCmd)
	authLoginCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the browser redirect")
	authCmd.AddCommand(authExchangeCmd)
	authCmd.AddCommand(authStatusCmd)

	encryptionCmd.AddCommand(encryptionInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(archivesCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(decryptCmd)
}
