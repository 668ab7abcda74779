package sigengine

import (
	"context"
	"log"
	"net/http"
	"time"

	"signal-enginev1/internal/api"
	"signal-enginev1/internal/model"

	"github.com/gin-gonic/gin"
)

// Router builds the REST API over the service's collaborators. Latest
// signals come from Redis when it is enabled, otherwise from the SQLite
// journal.
func (svc *Service) Router() *gin.Engine {
	var store model.SignalReader
	switch {
	case svc.redisReader != nil:
		store = svc.redisReader
	case svc.sqlReader != nil:
		store = svc.sqlReader
	default:
		store = emptyStore{}
	}

	d := api.Deps{
		Store:   store,
		Scanner: svc.scanner,
		Symbols: svc.Symbols,
		Health:  svc.health,
		Metrics: svc.prom,
		OnScan:  svc.publish,
		Stream:  svc.push,
	}
	if svc.journal != nil {
		d.Orders = svc.journal
	}
	if svc.gateway != nil && svc.gateway.Client().HasCredentials() {
		d.Balances = svc.gateway
	}

	return api.NewRouter(d, api.Options{
		RateLimit:  svc.cfg.API.RateLimit,
		Burst:      svc.cfg.API.Burst,
		TOTPSecret: svc.cfg.API.TOTPSecret,
	})
}

// startAPI launches the REST server.
func (svc *Service) startAPI() {
	svc.apiSrv = &http.Server{
		Addr:              svc.cfg.Service.HTTPAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[sigengine] API server on %s (/api/v1)", svc.cfg.Service.HTTPAddr)
		if err := svc.apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[sigengine] API server error: %v", err)
		}
	}()
}

type emptyStore struct{}

func (emptyStore) LatestSignal(context.Context, string) (*model.TradingSignal, error) {
	return nil, nil
}
