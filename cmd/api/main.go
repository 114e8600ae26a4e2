package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chargate/internal/config"
	"github.com/zhouzirui/chargate/internal/handler"
	"github.com/zhouzirui/chargate/internal/model/persona"
	"github.com/zhouzirui/chargate/internal/service/ai"
	"github.com/zhouzirui/chargate/internal/service/chat"
	"github.com/zhouzirui/chargate/internal/service/upstream"
	"github.com/zhouzirui/chargate/internal/service/upstream/characterai"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chargate",
		Short:         "HTTP and SSE gateway for character chat sessions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to a TOML config file")
	cmd.Flags().String("addr", "", "listen address, overrides PORT")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	configPath, _ := cmd.Flags().GetString("config")
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		if err := os.Setenv("PORT", addr); err != nil {
			return err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	transport, personas, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	log.Printf("upstream backend: %s (default character %s)", cfg.Upstream.Backend, cfg.Upstream.DefaultCharacterID)

	chatService := chat.NewService(transport, chat.NewMemoryStore(), chat.Options{
		Token:              cfg.Upstream.Token,
		DefaultCharacterID: cfg.Upstream.DefaultCharacterID,
	})
	defer chatService.Shutdown()

	router := handler.NewRouter(chatService, personas)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chargate listening on %s", srv.Addr)
	return runServer(ctx, srv)
}

// newTransport builds the configured backend. The persona store is only
// returned for the local backend.
func newTransport(ctx context.Context, cfg *config.Config) (upstream.Transport, persona.Store, error) {
	switch cfg.Upstream.Backend {
	case config.BackendArk:
		personas := persona.NewMemoryStore(persona.Seed())
		svc, err := ai.NewService(ctx, personas, cfg.AI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize AI backend: %w", err)
		}
		return svc, personas, nil
	default:
		return characterai.NewTransport(cfg.CharacterAI), nil, nil
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
