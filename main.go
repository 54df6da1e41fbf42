package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/frontdesk-ai/frontdesk/agent/agents/orchestrator"
	auditx "github.com/frontdesk-ai/frontdesk/agent/audit"
	dispatchx "github.com/frontdesk-ai/frontdesk/agent/dispatch"
	retentionx "github.com/frontdesk-ai/frontdesk/agent/retention"
	statex "github.com/frontdesk-ai/frontdesk/agent/state"
	tenantx "github.com/frontdesk-ai/frontdesk/agent/tenant"
	configx "github.com/frontdesk-ai/frontdesk/pkg/config"
	_ "github.com/frontdesk-ai/frontdesk/pkg/logger/autoload"
	openrouterx "github.com/frontdesk-ai/frontdesk/pkg/openrouter"
)

type AppConfig struct {
	// VaultSecret derives the key that decrypts tenant credentials at rest.
	VaultSecret string        `envconfig:"VAULT_SECRET" required:"true"`
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"60s"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"30s"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	openRouterClient := openrouterx.NewClient(*openRouterCfg)
	if openRouterClient == nil {
		log.Fatal().Msg("failed to initialize openrouter client")
	}

	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}

	pgCfg := configx.MustNew[tenantx.PostgresConfig]("POSTGRES")
	db, err := tenantx.NewDB(*pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres")
	}
	defer db.Close()

	vault, err := tenantx.NewVault(appCfg.VaultSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential vault")
	}
	registry, err := tenantx.NewPostgresRegistry(db, vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tenant registry")
	}
	recorder, err := auditx.NewRecorder(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audit recorder")
	}

	loop, err := dispatchx.NewLoop(
		&openRouterClient.Chat.Completions,
		openRouterCfg.Model,
		openRouterCfg.Temperature,
		recorder,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dispatch loop")
	}

	orchestrator, err := orchestratorx.New(store, registry, loop, recorder, orchestratorx.Config{
		TurnTimeout: appCfg.TurnTimeout,
		LockTTL:     appCfg.LockTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}
	// Ingress transports register against the orchestrator from their own
	// processes; this binary owns orchestration and retention only.
	_ = orchestrator

	retentionCfg := configx.MustNew[retentionx.Config]("RETENTION")
	sweeper, err := retentionx.NewSweeper(registry, recorder, *retentionCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize retention sweeper")
	}
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start retention sweeper")
	}

	log.Info().Msg("frontdesk ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	if err := sweeper.Stop(); err != nil {
		log.Warn().Err(err).Msg("retention sweeper shutdown failed")
	}
}
