package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/uptrace/opentelemetry-go-extra/otelsql"

	"github.com/gafferhq/brain/internal/config"
	"github.com/gafferhq/brain/internal/infrastructure/repository/postgres"
	"github.com/gafferhq/brain/internal/interfaces/httpapi"
	"github.com/gafferhq/brain/internal/platform/cache"
	idgen "github.com/gafferhq/brain/internal/platform/id"
	"github.com/gafferhq/brain/internal/platform/logging"
	"github.com/gafferhq/brain/internal/usecase"
)

// NewHTTPServer wires the full service: postgres, repositories,
// services, HTTP surface. The returned cleanup closes the database
// connection.
func NewHTTPServer(cfg config.Config, logger *logging.Logger) (*http.Server, func() error, error) {
	db, err := postgres.Connect(context.Background(),
		normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	careerRepo := postgres.NewCareerRepository(db)
	sweepRepo := postgres.NewSweepRepository(db)
	seasonRepo := postgres.NewSeasonRepository(db)
	squadRepo := postgres.NewSquadRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	leaderboardRepo := postgres.NewLeaderboardRepository(db)

	var cacheStore *cache.Store
	if cfg.CacheEnabled {
		cacheStore = cache.NewStore(cfg.CacheTTL)
	}

	slogger := logger.Slog()

	careerSvc := usecase.NewCareerService(careerRepo, slogger)
	sweepSvc := usecase.NewSweepService(sweepRepo, careerRepo, slogger)
	matchdaySvc := usecase.NewMatchdayService(seasonRepo, usecase.MatchdayConfig{
		Model:         cfg.MatchModel,
		WriteRetries:  cfg.SimWriteRetries,
		WriteBackoff:  cfg.SimWriteBackoff,
		WriteThrottle: cfg.SimWriteThrottle,
	}, slogger)
	squadSvc := usecase.NewSquadService(squadRepo, cacheStore, slogger)
	groupSvc := usecase.NewGroupService(groupRepo, leaderboardRepo, idgen.NewRandomGenerator(), slogger)
	leaderboardSvc := usecase.NewLeaderboardService(leaderboardRepo, cacheStore, slogger)

	handler := httpapi.NewHandler(
		careerSvc,
		sweepSvc,
		matchdaySvc,
		squadSvc,
		groupSvc,
		leaderboardSvc,
		httpapi.HealthInfo{
			Service: cfg.ServiceName,
			Version: cfg.ServiceVersion,
			Modules: []string{"career", "sweep", "seasons", "squads", "groups", "leaderboard"},
			Auth: map[string]bool{
				"jwt":  cfg.AuthJWTSecret != "",
				"hmac": cfg.BrainHMACSecret != "",
				"cron": cfg.CronSecret != "",
			},
			PingDB: db.PingContext,
		},
		slogger,
	)

	router := httpapi.NewRouter(
		handler,
		httpapi.AuthConfig{
			JWTSecret:  cfg.AuthJWTSecret,
			HMACSecret: cfg.BrainHMACSecret,
			CronSecret: cfg.CronSecret,
			DevBypass:  !cfg.IsProduction(),
		},
		slogger,
		cfg.CORSAllowedOrigins,
	)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, db.Close, nil
}
