// Package rest provides functionality for initializing a server.
package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/api/rest/client"
	"github.com/danilovkiri/dk-go-fastcore/internal/api/rest/v1/handlers"
	"github.com/danilovkiri/dk-go-fastcore/internal/api/rest/v1/middleware"
	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/bonus/v1/bonus"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/broker/v1/broker"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/commission/v1/commission"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/ledger/v1/ledger"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/processor/v1/processor"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/secretary/v1/secretary"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/verifier/v1/verifier"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/inpsql"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// InitServer returns a http.Server object ready to be listening and serving .
func InitServer(ctx context.Context, cfg *config.Config, log *zerolog.Logger, wg *sync.WaitGroup) (server *http.Server, err error) {
	//initialize secretary
	secretaryService, err := secretary.NewSecretaryService(cfg.SecretConfig)
	if err != nil {
		return nil, err
	}

	// initialize token handler
	tokenHandler, err := middleware.NewTokenHandler(secretaryService)
	if err != nil {
		return nil, err
	}

	// initialize storage and release the pool on shutdown
	storage, err := inpsql.InitStorage(ctx, cfg.StorageConfig, log)
	if err != nil {
		return nil, err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := storage.DB.Close(); err != nil {
			log.Error().Err(err).Msg("closing PSQL connection pool failed")
			return
		}
		log.Info().Msg("PSQL DB connection was closed")
	}()

	// initialize payeer client and verifier
	payeerClient := client.InitClient(cfg.PayeerConfig, log)
	transactionVerifier := verifier.NewVerifier(payeerClient, log)

	// initialize crediting pipeline
	bonusResolver := bonus.NewResolver(storage, log)
	distributor := commission.NewDistributor(storage, cfg.CommissionConfig, log)
	brokerService := broker.InitBroker(ctx, distributor, storage, cfg.QueueConfig, cfg.StorageConfig.StorageTimeout, log, wg)
	brokerService.ListenAndProcess()
	ledgerService := ledger.NewLedger(storage, bonusResolver, distributor, brokerService, cfg.StorageConfig, log)

	// initialize main service
	mainService, err := processor.InitService(storage, transactionVerifier, bonusResolver, ledgerService, cfg, log)
	if err != nil {
		return nil, err
	}

	// initialize handlers
	urlHandler, err := handlers.InitHandlers(mainService, cfg, log)
	if err != nil {
		return nil, err
	}

	// initialize server and set routing
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Compress(5))
	publicGroup := r.Group(nil)
	mainGroup := r.Group(nil)
	mainGroup.Use(tokenHandler.TokenHandle) // provider callbacks, health checks and metrics carry no user token
	publicGroup.Get("/ping", urlHandler.HandlePing())
	publicGroup.Method(http.MethodGet, "/metrics", promhttp.Handler())
	publicGroup.Get("/api/callbacks/freekassa", urlHandler.HandleFreeKassaCallback())
	publicGroup.Post("/api/callbacks/freekassa", urlHandler.HandleFreeKassaCallback())
	mainGroup.Post("/api/deposits/payeer", urlHandler.HandlePayeerDeposit())
	mainGroup.Post("/api/deposits/freekassa", urlHandler.HandleFreeKassaDeposit())
	mainGroup.Get("/api/bonus/preview", urlHandler.HandleBonusPreview())
	mainGroup.Get("/api/user/deposits", urlHandler.HandleGetDeposits())
	mainGroup.Post("/api/user/wallets", urlHandler.HandleBindWallet())
	mainGroup.Get("/api/user/wallets", urlHandler.HandleGetWallets())

	srv := &http.Server{
		Addr:         cfg.ServerConfig.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, nil
}
