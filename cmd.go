package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 5 * time.Second

// app carries what PersistentPreRunE prepares for every subcommand
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *Config
	log     *zap.Logger
}

// NewRootCmd builds the seekers command tree
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "seekers",
		Short:         "Host and play seekers matches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = InitializeLogger(cfg.Logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./seekers.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newPlayCmd(a),
		newHashPasswordCmd(),
		newConfigCmd(a),
		newReplayCmd(),
	)
	return root
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a match and accept remote players",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runServe(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), res.Table())
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("addr", ":7777", "HTTP listen address")
	f.StringSlice("bot", nil, fmt.Sprintf("built-in bot to add as a local player, repeatable (one of %v)", BotNames()))
	f.Int("players", 2, "players needed to start the match, bots included")
	f.Int("playtime", 20000, "match length in ticks, 0 for unlimited")
	f.String("client-dir", "", "directory with the spectator client")
	_ = a.v.BindPFlag("server.addr", f.Lookup("addr"))
	_ = a.v.BindPFlag("agent.bots", f.Lookup("bot"))
	_ = a.v.BindPFlag("game.global.players", f.Lookup("players"))
	_ = a.v.BindPFlag("game.global.playtime", f.Lookup("playtime"))
	_ = a.v.BindPFlag("server.client_dir", f.Lookup("client-dir"))
	return cmd
}

// runServe wires storage, transport and the game together and blocks until
// the match ends or ctx is cancelled
func runServe(ctx context.Context, cfg *Config, log *zap.Logger) (*MatchResult, error) {
	deps := GameDeps{Logger: log}
	var store SettingStore
	var db *DB

	if cfg.Database.Path != "" {
		var err error
		if db, err = OpenDB(cfg.Database.Path); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		store = db
		deps.Results = db
		deps.Analytics = NewAnalytics(db, log)
		defer deps.Analytics.Stop()
	}
	if cfg.Replay.Dir != "" {
		deps.Recorder = NewRecorder(cfg.Replay.Dir, log)
		defer deps.Recorder.Close()
	}

	auth := NewAuth(cfg.Server.JWTSecret, cfg.Server.TokenTTL, store, log)
	hub := NewHub(nil, auth, cfg, log)
	deps.Broadcaster = hub
	game := NewGame(cfg, deps)
	hub.SetGame(game)

	for i, name := range cfg.Agent.Bots {
		decide, err := LookupBot(name)
		if err != nil {
			return nil, err
		}
		if _, err := game.AddLocalPlayer(fmt.Sprintf("%s-%d", name, i+1), decide); err != nil {
			return nil, fmt.Errorf("add bot %s: %w", name, err)
		}
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{Handler: SetupRoutes(hub, db, deps.Analytics, cfg.Server, log)}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", ln.Addr().String()), zap.String("match_id", game.MatchID()))
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	gameCtx, cancelGame := context.WithCancel(ctx)
	defer cancelGame()
	go func() {
		// a dead listener ends the match
		if err, ok := <-serveErr; ok && err != nil {
			log.Error("Server failed", zap.Error(err))
			cancelGame()
		}
	}()

	res, runErr := game.Run(gameCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("Shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown", zap.Error(err))
	}
	if errors.Is(runErr, context.Canceled) {
		// interrupted in the lobby
		return nil, nil
	}
	return res, runErr
}

func newPlayCmd(a *app) *cobra.Command {
	var addr, name, bot, password string
	var retries int
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a remote match with a built-in bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			decide, err := LookupBot(bot)
			if err != nil {
				return err
			}
			if name == "" {
				name = bot
			}
			ctx := cmd.Context()
			client, err := dialWithRetry(ctx, addr, retries, a.log)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Join(ctx, name, password); err != nil {
				return fmt.Errorf("join: %w", err)
			}
			if err := client.Play(ctx, decide); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if res := client.Result(); res != nil {
				fmt.Fprint(cmd.OutOrStdout(), res.Table())
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "ws://localhost:7777/ws", "websocket address of the host")
	f.StringVar(&name, "name", "", "display name (defaults to the bot name)")
	f.StringVar(&bot, "bot", "nearest-goal", fmt.Sprintf("decision function, one of %v", BotNames()))
	f.StringVar(&password, "password", "", "join password")
	f.IntVar(&retries, "retries", 10, "connection attempts before giving up")
	return cmd
}

// dialWithRetry keeps dialing while the host is not up yet
func dialWithRetry(ctx context.Context, addr string, attempts int, log *zap.Logger) (*RemoteClient, error) {
	backoff := 250 * time.Millisecond
	var lastErr error
	for i := 0; i < max(1, attempts); i++ {
		client, err := DialRemote(ctx, addr, log)
		if err == nil {
			return client, nil
		}
		lastErr = err
		log.Info("Host not reachable, retrying", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, 4*time.Second)
	}
	return nil, lastErr
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash for server.join_password_hash",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Summarize a recorded match",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ticks := 0
			var result *MatchResult
			err := ReadReplay(args[0], func(e ReplayEntry) error {
				switch e.Kind {
				case "start":
					fmt.Fprintf(out, "match %s\n", e.MatchID)
				case "tick":
					ticks++
				case "result":
					result = e.Result
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d ticks recorded\n", ticks)
			if result != nil {
				fmt.Fprint(out, result.Table())
			}
			return nil
		},
	}
}
