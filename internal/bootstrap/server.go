package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skyfare/ticketing/api"
	"github.com/skyfare/ticketing/config"
	"github.com/skyfare/ticketing/internal/repository"
	"github.com/skyfare/ticketing/internal/service/orchestrator"
	"github.com/skyfare/ticketing/internal/service/search"
)

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func Run(
	ctx context.Context,
	cfg *config.Config,
	orchestratorSvc *orchestrator.Orchestrator,
	searchSvc *search.Service,
	ledger repository.LedgerRepository,
	audit repository.AuditRepository,
) error {
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	api.NewBookingHandler(orchestratorSvc).Register(v1.Group("/bookings"))
	api.NewTicketHandler(orchestratorSvc).Register(v1.Group("/tickets"))
	api.NewSearchHandler(searchSvc, orchestratorSvc).Register(v1.Group("/search"))
	api.NewReportHandler(ledger, audit).Register(v1.Group("/reports"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
