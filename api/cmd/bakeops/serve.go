package bakeops

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/headless"
	"github.com/bakeops/bakeops/api/pkg/pubsub"
	"github.com/bakeops/bakeops/api/pkg/scheduler"
	"github.com/bakeops/bakeops/api/pkg/server"
	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
)

func NewServeConfig() (*config.ServerConfig, error) {
	serverConfig, err := config.LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %v", err)
	}
	if err := serverConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %v", err)
	}
	return &serverConfig, nil
}

func newServeCmd() *cobra.Command {
	serveConfig, err := NewServeConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create serve options")
	}

	envHelpText := generateEnvHelpText(serveConfig, "")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bakeops api server.",
		Long:  "Start the bakeops api server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := serve(cmd, serveConfig)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to run server")
			}
			return nil
		},
	}

	serveCmd.Long += "\n\nEnvironment Variables:\n\n" + envHelpText

	return serveCmd
}

func serve(cmd *cobra.Command, cfg *config.ServerConfig) error {
	system.SetupLogging()

	// Context ensures main goroutine waits until killed with ctrl+c:
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	db, err := store.NewPostgresStore(cfg.Store)
	if err != nil {
		return err
	}

	ps, err := pubsub.New(pubsub.Provider(cfg.PubSub.Provider), pubsub.ServerOptions{
		Host:       cfg.PubSub.Server.Host,
		Port:       cfg.PubSub.Server.Port,
		Token:      cfg.PubSub.Server.Token,
		MaxPayload: cfg.PubSub.Server.MaxPayload,
	})
	if err != nil {
		return err
	}

	planner, err := scheduler.NewPlanner(cfg, &scheduler.PlannerParams{Store: db})
	if err != nil {
		return err
	}

	manager, err := simulation.NewManager(cfg, &simulation.ManagerParams{
		Store:     db,
		Publisher: ps,
		Planner:   planner,
	})
	if err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop simulation manager")
		}
	}()

	runner := headless.NewRunner(cfg, manager)

	apiServer, err := server.NewServer(cfg, db, ps, planner, manager, runner)
	if err != nil {
		return err
	}

	log.Info().Msgf("BakeOps server listening on %s:%d", cfg.WebServer.Host, cfg.WebServer.Port)

	go func() {
		err := apiServer.ListenAndServe(ctx)
		if err != nil {
			panic(err)
		}
	}()

	<-ctx.Done()
	return nil
}
