package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ChiranjibKoch/ArchFairFight/cmd/fairfight/shared"
	"github.com/ChiranjibKoch/ArchFairFight/internal/agentpool"
	"github.com/ChiranjibKoch/ArchFairFight/internal/arbiter"
	"github.com/ChiranjibKoch/ArchFairFight/internal/config"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/recording"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
	"github.com/ChiranjibKoch/ArchFairFight/internal/gateway"
	recmanager "github.com/ChiranjibKoch/ArchFairFight/internal/recording"
	"github.com/ChiranjibKoch/ArchFairFight/internal/storage/memory"
	"github.com/ChiranjibKoch/ArchFairFight/internal/storage/postgres"
	"github.com/ChiranjibKoch/ArchFairFight/internal/verdict"
)

// ServeCmd runs the orchestration service
type ServeCmd struct {
	Config string `kong:"default='fairfight.hcl',help='Path to HCL configuration file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
}

// repositories bundles the persistence collaborators behind one backend
// selection.
type repositories struct {
	challenges challenge.Repository
	fights     fight.Repository
	users      user.Repository
	recordings recording.Repository
}

func (c *ServeCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	clock := quartz.NewReal()
	ctx := shared.SetupSignalHandlerWithLogger(logger)

	repos, err := openStorage(ctx, cfg, clock)
	if err != nil {
		return err
	}

	judge := verdict.NewJudge(verdict.Config{
		TimingDrawSeconds:     cfg.Fight.TimingDrawThreshold,
		ActivityDrawThreshold: cfg.Fight.ActivityDrawThreshold,
		AmplitudeScale:        cfg.Fight.ActivityAmplitudeScale,
	}, logger)

	recorder := recmanager.NewManager(logger, clock, repos.recordings)

	agents, err := dialAgents(ctx, cfg.Pool.AgentURLs, logger)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		logger.Warn().Msg("No session agents configured, fights cannot start")
	}
	pool := agentpool.NewPool(logger, agents)

	arb := arbiter.New(arbiter.Config{
		AcceptanceTimeout:  cfg.Fight.AcceptanceTimeout(),
		MaxFightDuration:   cfg.Fight.MaxFightDuration(),
		MonitoringInterval: cfg.Fight.MonitoringInterval(),
		SweepInterval:      cfg.Fight.SweepInterval(),
	}, logger, clock, repos.challenges, repos.fights, repos.users, pool, recorder, judge)

	service := gateway.NewService(arb, repos.challenges, repos.fights, repos.users, judge)

	gwLogger := charmlog.New(os.Stderr)
	if c.Debug {
		gwLogger.SetLevel(charmlog.DebugLevel)
	}
	server := gateway.NewServer(cfg.ListenAddress(), gwLogger, service)

	logger.Info().
		Str("address", cfg.ListenAddress()).
		Int("agents", pool.Size()).
		Dur("acceptance_timeout", cfg.Fight.AcceptanceTimeout()).
		Dur("max_fight_duration", cfg.Fight.MaxFightDuration()).
		Dur("monitoring_interval", cfg.Fight.MonitoringInterval()).
		Msg("Starting fight orchestration service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		err := arb.RunSweeper(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down...")
		_ = server.Stop()
		arb.Wait()
		for _, agent := range agents {
			if remote, ok := agent.(*agentpool.RemoteAgent); ok {
				_ = remote.Close()
			}
		}
		return nil
	})

	return g.Wait()
}

// openStorage selects the persistence backend: PostgreSQL when a database
// URL is configured, the in-memory store otherwise.
func openStorage(ctx context.Context, cfg *config.Config, clock quartz.Clock) (repositories, error) {
	if cfg.Database.URL == "" {
		store := memory.NewStore(clock)
		return repositories{
			challenges: store.Challenges,
			fights:     store.Fights,
			users:      store.Users,
			recordings: store.Recordings,
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return repositories{}, fmt.Errorf("connecting to database: %w", err)
	}
	return repositories{
		challenges: postgres.NewChallengeRepository(pool),
		fights:     postgres.NewFightRepository(pool),
		users:      postgres.NewUserRepository(pool),
		recordings: postgres.NewRecordingRepository(pool),
	}, nil
}

// dialAgents connects to every configured session-agent daemon.
func dialAgents(ctx context.Context, urls []string, logger zerolog.Logger) ([]agentpool.Agent, error) {
	agents := make([]agentpool.Agent, 0, len(urls))
	for _, url := range urls {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		agent, err := agentpool.DialRemoteAgent(dialCtx, url, logger)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("dialing session agent %s: %w", url, err)
		}
		agents = append(agents, agent)
	}
	return agents, nil
}
