package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/chatkit/internal/profile"
	chatagent "github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/command"
	"github.com/hrygo/chatkit/plugin/chat/variable"
	"github.com/hrygo/chatkit/internal/observability"
	apiv1 "github.com/hrygo/chatkit/server/router/api/v1"
	"github.com/hrygo/chatkit/server/service/chat"
	"github.com/hrygo/chatkit/store"
	"github.com/hrygo/chatkit/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "chatkit",
	Short: "A chat session orchestration server",
	RunE: func(_ *cobra.Command, _ []string) error {
		p := &profile.Profile{
			Mode:      viper.GetString("mode"),
			Addr:      viper.GetString("addr"),
			Port:      viper.GetInt("port"),
			Data:      viper.GetString("data"),
			DSN:       viper.GetString("dsn"),
			Driver:    viper.GetString("driver"),
			Workspace: viper.GetString("workspace"),
			Version:   version,
		}
		p.FromEnv()
		if err := p.Validate(); err != nil {
			return err
		}
		return run(p)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "", `mode of the server: "prod", "dev" or "demo"`)
	flags.String("addr", "", "binding address for the server")
	flags.Int("port", 0, "binding port for the server")
	flags.String("data", "", "data directory")
	flags.String("dsn", "", "database connection string")
	flags.String("driver", "", `storage driver: "sqlite", "postgres" or "memory"`)
	flags.String("workspace", "", "workspace identifier for history scoping")

	for _, name := range []string{"mode", "addr", "port", "data", "dsn", "driver", "workspace"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("chatkit")
	viper.AutomaticEnv()
}

func run(p *profile.Profile) error {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	driver, err := db.NewDriver(p)
	if err != nil {
		return err
	}
	defer driver.Close()
	st := store.New(driver, p.Workspace)

	agents := chatagent.NewRegistry()
	if err := registerDefaultAgent(agents, p); err != nil {
		return err
	}

	commands := command.NewRegistry()
	variables := variable.NewRegistry()
	registerBuiltins(commands, variables, agents)

	metrics := observability.NewMetrics(1000)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatService := chat.NewService(ctx, chat.Config{
		Agents:    agents,
		Commands:  commands,
		Variables: variables,
		Store:     st,
		Recorder:  metrics,
		Logger:    logger,
	})
	if id, _, ok := chatService.TransferredSession(); ok {
		logger.Info("a transferred session is waiting", "session_id", id)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	apiv1.NewAPIV1Service(p, chatService, metrics).RegisterRoutes(e)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", "addr", addr, "mode", p.Mode, "version", p.Version)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := chatService.SaveState(shutdownCtx); err != nil {
			logger.Error("failed to save session state", "error", err)
		}
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// registerDefaultAgent wires the LLM-backed agent when configured, or
// a local fallback so the server works out of the box.
func registerDefaultAgent(agents *chatagent.Registry, p *profile.Profile) error {
	md := chatagent.Metadata{
		ID:          "chatkit.assistant",
		Name:        "assistant",
		Description: "General purpose chat assistant",
		IsDefault:   true,
		Locations: []chatagent.Location{
			chatagent.LocationPanel,
			chatagent.LocationEditor,
			chatagent.LocationTerminal,
		},
	}

	if p.IsLLMEnabled() {
		llm, err := chatagent.NewLLMAgent(chatagent.LLMConfig{
			APIKey:       p.LLMAPIKey,
			BaseURL:      p.LLMBaseURL,
			Model:        p.LLMModel,
			SystemPrompt: p.LLMSystemPrompt,
			Metadata:     md,
		})
		if err != nil {
			return err
		}
		return agents.Register(llm)
	}

	slog.Warn("no LLM configured, using the echo fallback agent")
	return agents.Register(&chatagent.MockAgent{
		MD: md,
		InvokeFunc: func(_ context.Context, req *chatagent.Request, progress chatagent.ProgressFunc, _ []chatagent.HistoryEntry) (*chatagent.Result, error) {
			progress(chatagent.MarkdownPart("You said: " + req.PromptText))
			return &chatagent.Result{}, nil
		},
	})
}

func registerBuiltins(commands *command.Registry, variables *variable.Registry, agents *chatagent.Registry) {
	_ = commands.Register(command.Command{
		Name:        "help",
		Description: "List available commands and agents",
		Handler: func(_ context.Context, _ string, progress chatagent.ProgressFunc, _ []chatagent.HistoryEntry) (*command.Outcome, error) {
			var b strings.Builder
			b.WriteString("## Commands\n")
			for _, c := range commands.Commands() {
				fmt.Fprintf(&b, "- `/%s` %s\n", c.Name, c.Description)
			}
			b.WriteString("\n## Agents\n")
			if a, ok := agents.DefaultAgent(chatagent.LocationPanel); ok {
				md := a.Metadata()
				fmt.Fprintf(&b, "- `@%s` %s\n", md.Name, md.Description)
			}
			progress(chatagent.MarkdownPart(b.String()))
			return &command.Outcome{}, nil
		},
	})

	_ = variables.Register(variable.Variable{
		ID:          "chatkit.date",
		Name:        "date",
		Description: "Today's date",
		Resolver: func(context.Context, string, string, chatagent.ProgressFunc) (string, error) {
			return time.Now().Format("2006-01-02"), nil
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
