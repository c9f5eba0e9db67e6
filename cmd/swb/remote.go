package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// RemotesConfig is the on-disk set of server profiles.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is one switchboard deployment the CLI can talk to.
type Remote struct {
	URL         string `toml:"url"`
	Server      string `toml:"server,omitempty"`
	Transport   string `toml:"transport,omitempty"`
	Token       string `toml:"token,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
	Description string `toml:"description,omitempty"`
}

func (r Remote) validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q: want http(s)://host[:port]", r.URL)
	}
	switch r.Transport {
	case "", "http":
	case "grpc":
		if r.Server == "" {
			return errors.New("--transport grpc requires --server")
		}
	default:
		return fmt.Errorf("unknown transport %q (must be http or grpc)", r.Transport)
	}
	return nil
}

func remoteConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "switchboard", "remotes.toml"), nil
}

func loadRemotesConfig() (RemotesConfig, error) {
	cfg := RemotesConfig{}
	path, err := remoteConfigPath()
	if err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// saveRemotesConfig writes the profile file owner-only, replacing it
// atomically since it holds tokens.
func saveRemotesConfig(cfg RemotesConfig) error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "remotes-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// updateRemotes loads the profiles, applies fn and saves the result.
func updateRemotes(fn func(*RemotesConfig) error) error {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return saveRemotesConfig(cfg)
}

func lookupRemote(cfg RemotesConfig, name string) (Remote, error) {
	r, ok := cfg.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return r, nil
}

var (
	remoteOnce   sync.Once
	cachedRemote Remote
)

// activeRemote is read once per process; errors leave it empty.
func activeRemote() Remote {
	remoteOnce.Do(func() {
		if cfg, err := loadRemotesConfig(); err == nil && cfg.Active != "" {
			cachedRemote = cfg.Remotes[cfg.Active]
		}
	})
	return cachedRemote
}

func activeRemoteURL() string       { return activeRemote().URL }
func activeRemoteServer() string    { return activeRemote().Server }
func activeRemoteTransport() string { return activeRemote().Transport }
func activeRemoteToken() string     { return activeRemote().Token }
func activeRemoteNATSURL() string   { return activeRemote().NATSURL }

// maskToken keeps the first eight characters of a token.
func maskToken(token string) string {
	const keep = 8
	if len(token) <= keep {
		return token
	}
	return token[:keep] + strings.Repeat("*", len(token)-keep)
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named switchboard deployments",
	GroupID: "system",
	// Remote subcommands only touch the local profile file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or replace a remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		r := Remote{URL: strings.TrimRight(args[1], "/")}
		r.Server, _ = f.GetString("server")
		r.Transport, _ = f.GetString("transport")
		r.Token, _ = f.GetString("token")
		r.NATSURL, _ = f.GetString("nats")
		r.Description, _ = f.GetString("description")
		if err := r.validate(); err != nil {
			return err
		}
		err := updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[args[0]] = r
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, err := lookupRemote(*cfg, name); err != nil {
				return err
			}
			delete(cfg.Remotes, name)
			if cfg.Active == name {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes; the active one is starred",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		return printRemoteList(cmd.OutOrStdout(), cfg)
	},
}

func printRemoteList(out io.Writer, cfg RemotesConfig) error {
	if len(cfg.Remotes) == 0 {
		fmt.Fprintln(out, "no remotes configured")
		return nil
	}
	names := make([]string, 0, len(cfg.Remotes))
	for name := range cfg.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tURL\tTRANSPORT\tTOKEN\tDESCRIPTION")
	for _, name := range names {
		r := cfg.Remotes[name]
		marker := "  "
		if name == cfg.Active {
			marker = "* "
		}
		tr := r.Transport
		if tr == "" {
			tr = "http"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n", marker, name, r.URL, tr, shortToken(r.Token), r.Description)
	}
	return w.Flush()
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Make a remote the default target (no name clears it)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if name != "" {
				if _, err := lookupRemote(*cfg, name); err != nil {
					return err
				}
			}
			cfg.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		}
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show one remote (default: the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return errors.New("no active remote; name one or run 'swb remote use <name>'")
		}
		r, err := lookupRemote(cfg, name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if name == cfg.Active {
			name += " (active)"
		}
		for _, row := range [][2]string{
			{"name", name},
			{"description", r.Description},
			{"url", r.URL},
			{"server", r.Server},
			{"transport", r.Transport},
			{"token", maskToken(r.Token)},
			{"nats_url", r.NATSURL},
		} {
			if row[1] != "" {
				fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
			}
		}
		return w.Flush()
	},
}

func init() {
	f := remoteAddCmd.Flags()
	f.String("server", "", "gRPC address (host:port)")
	f.String("transport", "", "preferred transport for this remote (http or grpc)")
	f.String("token", "", "bearer token")
	f.String("nats", "", "NATS URL used by 'swb watch'")
	f.String("description", "", "free-form note")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
