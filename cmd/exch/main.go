package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/exchtools/exch/internal/dateparse"
	"github.com/exchtools/exch/internal/output"
	"github.com/exchtools/exch/internal/plugin"
	"github.com/exchtools/exch/internal/service"
	"github.com/exchtools/exch/libexch"
)

var (
	cfg    *libexch.Config
	cfgDir string

	rootCmd = &cobra.Command{
		Use:   "exch",
		Short: "Microsoft Exchange CLI",
		Long: `exch is a command-line client for Microsoft Exchange: calendar,
mail, contacts and free-slot search over EWS, with natural-language
date expressions like "next friday 2pm-4pm Workshop with anna".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	var err error
	cfgDir, err = libexch.ConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving config directory: %v\n", err)
		os.Exit(1)
	}
	cfg, err = libexch.LoadConfig(cfgDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("yaml", false, "Output as YAML")
	rootCmd.PersistentFlags().String("format", "", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().String("account", "", "Act as this mailbox instead of the configured account")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(calCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(freeCmd)
	rootCmd.AddCommand(pplCmd)
	rootCmd.AddCommand(serveCmd)
}

// chosenFormat maps the global output flags to a format. The boolean
// shorthands win over --format.
func chosenFormat(cmd *cobra.Command) output.Format {
	if v, _ := cmd.Flags().GetBool("json"); v {
		return output.JSON
	}
	if v, _ := cmd.Flags().GetBool("yaml"); v {
		return output.YAML
	}
	if v, _ := cmd.Flags().GetString("format"); v != "" {
		if f, err := output.ParseFormat(v); err == nil {
			return f
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown format %q, using text\n", v)
	}
	return output.Text
}

// account returns the mailbox commands act on.
func account(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("account"); v != "" {
		return v
	}
	return cfg.Account
}

func newAuthenticator() (*libexch.Authenticator, error) {
	return libexch.NewAuthenticator(cfg, cfgDir)
}

// ewsClient builds a direct EWS client backed by the cached login.
func ewsClient() (*libexch.Client, error) {
	auth, err := newAuthenticator()
	if err != nil {
		return nil, err
	}
	return libexch.NewClient(cfg.EWSEndpoint, auth.Token, nil), nil
}

// reachableRemote returns the companion daemon when it answers its
// health check, nil otherwise. Commands fall back to direct EWS.
func reachableRemote(ctx context.Context) *service.Remote {
	r := service.NewRemote(cfg.ServiceURL())
	if r.Reachable(ctx) {
		return r
	}
	return nil
}

// parserOpts carries the configured morning/afternoon hours and people
// aliases into the date parser.
func parserOpts() []dateparse.Option {
	return []dateparse.Option{
		dateparse.WithMorningHour(cfg.Hours.Morning, 0),
		dateparse.WithAfternoonHour(cfg.Hours.Afternoon, 0),
		dateparse.WithAliasResolver(cfg.ResolveAlias),
	}
}

// resolvePerson maps an alias or address to a mailbox. An unknown
// alias lists the configured ones.
func resolvePerson(name string) (string, error) {
	if email, ok := cfg.ResolveAlias(name); ok {
		return email, nil
	}
	aliases := make([]string, 0, len(cfg.People))
	for alias := range cfg.People {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	if len(aliases) == 0 {
		return "", fmt.Errorf("unknown person %q (no aliases configured; use an email address)", name)
	}
	return "", fmt.Errorf("unknown person %q (known: %s)", name, strings.Join(aliases, ", "))
}

func resolvePeople(names []string) ([]string, error) {
	emails := make([]string, 0, len(names))
	for _, name := range names {
		email, err := resolvePerson(name)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Exchange",
	Long:  `Authenticate against Azure AD using the device code flow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := newAuthenticator()
		if err != nil {
			return err
		}
		if err := auth.Login(cmd.Context(), os.Stdout); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		fmt.Println("Successfully authenticated!")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	Long:  `Remove the cached login and token cache`,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := newAuthenticator()
		if err != nil {
			return err
		}
		if err := auth.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Println("Successfully logged out!")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication and service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := newAuthenticator()
		if err != nil {
			return err
		}

		user := auth.Account(cmd.Context())
		if user == "" {
			fmt.Println("Status: Not authenticated")
		} else {
			fmt.Println("Status: Authenticated")
			fmt.Printf("Account: %s\n", user)
		}

		if reachableRemote(cmd.Context()) != nil {
			fmt.Printf("Service: running at %s\n", cfg.ServiceURL())
		} else {
			fmt.Println("Service: not running")
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, cfg)
		}

		fmt.Printf("Account:          %s\n", cfg.Account)
		fmt.Printf("Timezone:         %s\n", cfg.Timezone)
		fmt.Printf("Default duration: %s\n", cfg.DefaultDuration())
		fmt.Printf("EWS endpoint:     %s\n", cfg.EWSEndpoint)
		fmt.Printf("Tenant ID:        %s\n", cfg.TenantID)
		fmt.Printf("Client ID:        %s\n", cfg.ClientID)
		fmt.Printf("Working hours:    %02d:00 - %02d:00 (exclude weekends: %v)\n",
			cfg.FreeSlots.StartHour, cfg.FreeSlots.EndHour, cfg.FreeSlots.ExcludeWeekends)
		fmt.Printf("Service:          %s\n", cfg.ServiceURL())
		if len(cfg.People) > 0 {
			fmt.Println("People:")
			aliases := make([]string, 0, len(cfg.People))
			for alias := range cfg.People {
				aliases = append(aliases, alias)
			}
			sort.Strings(aliases)
			for _, alias := range aliases {
				fmt.Printf("  %-12s %s\n", alias, cfg.People[alias])
			}
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in config.toml, e.g.

  exch config set client_id 00000000-0000-0000-0000-000000000000
  exch config set people.anna anna@example.com`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(cfgDir, "config.toml")

		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		}
		v.Set(args[0], args[1])
		if err := v.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Set %s in %s\n", args[0], path)
		return nil
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List available plugins",
	Long:  `List all exch-* plugins found in PATH`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plugins := plugin.List()
		if len(plugins) == 0 {
			fmt.Println("No plugins found in PATH")
			return nil
		}
		fmt.Println("Available plugins:")
		for _, p := range plugins {
			fmt.Printf("  - %s\n", p)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func main() {
	// An unknown first argument may name an exch-* plugin.
	if len(os.Args) > 1 {
		name := os.Args[1]
		known := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name || cmd.HasAlias(name) {
				known = true
				break
			}
		}
		if !known && name != "" && !strings.HasPrefix(name, "-") {
			if err := plugin.Run(name, os.Args[2:]); err == nil {
				return
			}
			// Fall through to cobra's unknown-command error.
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
