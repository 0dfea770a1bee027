package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alertsync/internal/alerts"
	"alertsync/internal/app"
	"alertsync/internal/config"
	"alertsync/internal/remote"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an AlertApp. The caller must defer a.Close().
// command identifies the CLI command being run (e.g. "watch", "login").
func newApp(ctx context.Context, command string) (*app.AlertApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	a, err := app.NewAlertApp(ctx, cfg, command, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printAlert(a alerts.Alert) {
	fmt.Printf("%-13s  %-14s  %s  %s  (%s)\n",
		a.Priority,
		a.Category,
		a.Timestamp.Local().Format("2006-01-02 15:04"),
		a.Title,
		a.ID,
	)
}

func printSnapshot(s alerts.Snapshot) {
	if s.LoggedOut {
		fmt.Println("Logged out. Run 'alertsync login' to sign in again.")
		return
	}
	if len(s.Alerts) == 0 {
		fmt.Println("No active alerts nearby.")
		return
	}
	for _, a := range s.Alerts {
		printAlert(a)
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "alertsync",
	Short:        "Location-based alert synchronization",
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

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Server:    %s\n", cfg.Server.BaseURL)
		fmt.Printf("Session:   %s\n", cfg.Session.Type)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Location:  %s\n", cfg.Location.Type)
		fmt.Printf("Notifier:  %s\n", cfg.Notifier.Type)
		fmt.Printf("Radius:    %gm\n", cfg.Sync.RadiusMeters)
		if cfg.Sync.Schedule != "" {
			fmt.Printf("Schedule:  %s\n", cfg.Sync.Schedule)
		} else {
			fmt.Printf("Interval:  %s\n", cfg.Sync.Interval)
		}
		for _, a := range cfg.Archives {
			fmt.Printf("Archive:   %s (%s)\n", a.Name, a.Type)
		}
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that configured archives are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "config-check")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateArchives(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Archives OK.")
		return nil
	},
}

// login command
var loginCmd = &cobra.Command{
	Use:   "login EMAIL",
	Short: "Sign in to the alert service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "login")
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Login(cmd.Context(), args[0], password)
		if err != nil {
			if errors.Is(err, alerts.ErrInvalidCredentials) {
				return fmt.Errorf("login failed: incorrect email or password")
			}
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Printf("Logged in as %s\n", sess.UserID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register EMAIL",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")

		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		a, err := newApp(cmd.Context(), "register")
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Register(cmd.Context(), remote.Registration{
			Email:       args[0],
			Password:    password,
			FullName:    name,
			PhoneNumber: phone,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		fmt.Printf("Registered and logged in as %s\n", sess.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "logout")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// alert commands
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch alerts for the current location once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "refresh")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Refresh(cmd.Context())
		if err != nil && !snap.LoggedOut {
			return fmt.Errorf("refresh failed: %w", err)
		}
		printSnapshot(snap)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Fetch alerts periodically until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx, "watch")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Watch(ctx, func(s alerts.Snapshot) {
			fmt.Printf("--- %s\n", time.Now().Format("15:04:05"))
			printSnapshot(s)
			if st := a.Status(); st.LastError != nil && !s.LoggedOut {
				fmt.Printf("last refresh failed: %v\n", st.LastError)
			}
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report TITLE",
	Short: "Report a new alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		category, _ := cmd.Flags().GetString("category")
		priority, _ := cmd.Flags().GetString("priority")
		source, _ := cmd.Flags().GetString("source")
		radius, _ := cmd.Flags().GetFloat64("radius")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")

		na := remote.NewAlert{
			Title:        args[0],
			Description:  description,
			Category:     alerts.Category(category),
			Priority:     alerts.Priority(priority),
			RadiusMeters: radius,
			Source:       source,
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			na.Location = alerts.Location{Latitude: lat, Longitude: lon}
		}

		a, err := newApp(cmd.Context(), "report")
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.Report(cmd.Context(), na)
		if err != nil {
			return fmt.Errorf("report failed: %w", err)
		}
		fmt.Printf("Reported alert %s (%s)\n", created.ID, created.VerificationStatus)
		return nil
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List emergency resources near the current location",
	RunE: func(cmd *cobra.Command, args []string) error {
		radius, _ := cmd.Flags().GetFloat64("radius")

		a, err := newApp(cmd.Context(), "resources")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Resources(cmd.Context(), radius)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No resources found.")
			return nil
		}
		for _, r := range list {
			fmt.Printf("%-16s  %s", r.Type, r.Name)
			if r.ContactInfo != "" {
				fmt.Printf("  %s", r.ContactInfo)
			}
			fmt.Println()
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View and archive the local alert history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No alerts recorded.")
			return nil
		}

		for _, r := range records {
			fmt.Printf("#%d  %s  %-13s  %-14s  %s\n",
				r.Seq,
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.Priority,
				r.Category,
				r.Title,
			)
		}
		return nil
	},
}

var historyArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload a snapshot of the history database to the archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "history-archive")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.ArchiveHistory(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Archived history at version %d\n", version)
		return nil
	},
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local history database with an archived snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("archive")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		version, err := app.RestoreHistory(cmd.Context(), cfg, name)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored history at version %d\n", version)
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change local settings",
}

func printSettings(s alerts.UserSettingsRecord) {
	fmt.Printf("User:          %s\n", s.UserID)
	fmt.Printf("Color scheme:  %s\n", s.ColorScheme)
	fmt.Printf("Notifications: %t\n", s.NotificationsEnabled)
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd.Context(), "settings")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Settings(cmd.Context(), user)
		if err != nil {
			return err
		}
		printSettings(s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		scheme, _ := cmd.Flags().GetString("color-scheme")

		change := alerts.SettingsChange{ColorScheme: scheme}
		if cmd.Flags().Changed("notifications") {
			enabled, _ := cmd.Flags().GetBool("notifications")
			change.NotificationsEnabled = &enabled
		}

		a, err := newApp(cmd.Context(), "settings")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.UpdateSettings(cmd.Context(), user, change)
		if err != nil {
			return err
		}
		printSettings(s)
		return nil
	},
}

// prefs command
var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "View and change account preferences on the server",
}

func printPreferences(p *remote.Preferences) {
	fmt.Printf("Alert radius:      %gm\n", p.AlertRadius)
	fmt.Printf("Sound:             %t\n", p.NotificationSettings.SoundEnabled)
	fmt.Printf("Vibration:         %t\n", p.NotificationSettings.VibrationEnabled)
	fmt.Printf("Critical alerts:   %t\n", p.NotificationSettings.CriticalAlertsEnabled)
	fmt.Printf("Community alerts:  %t\n", p.NotificationSettings.CommunityAlertsEnabled)
}

var prefsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "prefs")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Preferences(cmd.Context())
		if err != nil {
			return err
		}
		printPreferences(p)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "prefs")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Preferences(cmd.Context())
		var remoteErr *alerts.RemoteError
		switch {
		case errors.As(err, &remoteErr) && remoteErr.Status == 404:
			p = &remote.Preferences{
				AlertRadius: alerts.DefaultRadiusMeters,
				NotificationSettings: remote.NotificationSettings{
					SoundEnabled:           true,
					VibrationEnabled:       true,
					CriticalAlertsEnabled:  true,
					CommunityAlertsEnabled: true,
				},
			}
		case err != nil:
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("radius") {
			p.AlertRadius, _ = flags.GetFloat64("radius")
		}
		if flags.Changed("sound") {
			p.NotificationSettings.SoundEnabled, _ = flags.GetBool("sound")
		}
		if flags.Changed("vibration") {
			p.NotificationSettings.VibrationEnabled, _ = flags.GetBool("vibration")
		}
		if flags.Changed("critical") {
			p.NotificationSettings.CriticalAlertsEnabled, _ = flags.GetBool("critical")
		}
		if flags.Changed("community") {
			p.NotificationSettings.CommunityAlertsEnabled, _ = flags.GetBool("community")
		}

		updated, err := a.UpdatePreferences(cmd.Context(), *p)
		if err != nil {
			return err
		}
		printPreferences(updated)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local alert API and refresh periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log progress to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configCheckCmd)

	// account
	registerCmd.Flags().String("name", "", "Full name")
	registerCmd.Flags().String("phone", "", "Phone number")

	// report
	reportCmd.Flags().StringP("description", "d", "", "Alert description")
	reportCmd.Flags().StringP("category", "c", string(alerts.CategoryCommunity), "Weather, Traffic, Crime, Community, Public Safety or Infrastructure")
	reportCmd.Flags().StringP("priority", "p", string(alerts.PriorityInformational), "Immediate, Important or Informational")
	reportCmd.Flags().String("source", "alertsync", "Reporting source")
	reportCmd.Flags().Float64("radius", 0, "Affected radius in meters (default: sync radius)")
	reportCmd.Flags().Float64("lat", 0, "Latitude (default: current location)")
	reportCmd.Flags().Float64("lon", 0, "Longitude (default: current location)")

	resourcesCmd.Flags().Float64("radius", 0, "Search radius in meters (default: sync radius)")

	// history subcommands
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyArchiveCmd)
	historyCmd.AddCommand(historyRestoreCmd)
	historyListCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show (0 for all)")
	historyRestoreCmd.Flags().String("archive", "", "Archive name (default: first configured)")

	// settings subcommands
	settingsCmd.PersistentFlags().String("user", "", "User ID (default: logged-in user)")
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsSetCmd.Flags().String("color-scheme", "", "light or dark")
	settingsSetCmd.Flags().Bool("notifications", true, "Enable alert notifications")

	// prefs subcommands
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsSetCmd.Flags().Float64("radius", 0, "Alert radius in meters")
	prefsSetCmd.Flags().Bool("sound", true, "Play notification sounds")
	prefsSetCmd.Flags().Bool("vibration", true, "Vibrate on notification")
	prefsSetCmd.Flags().Bool("critical", true, "Receive critical alerts")
	prefsSetCmd.Flags().Bool("community", true, "Receive community alerts")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(serveCmd)
}
