// Package api is the HTTP/JSON boundary used by the banking web client.
package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/accounts"
	"github.com/andrenbrandao/bnb-transfers/pkg/domain"
	"github.com/andrenbrandao/bnb-transfers/pkg/recipients"
	"github.com/andrenbrandao/bnb-transfers/pkg/transfers"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Transfers interface {
	Transfer(ctx context.Context, req transfers.Request) (transfers.Result, error)
	AutomatedTransfer(ctx context.Context, req transfers.AutomatedRequest) (transfers.AutomatedResult, error)
	PayBill(ctx context.Context, req transfers.BillRequest) (transfers.BillResult, error)
}

type Recipients interface {
	Validate(ctx context.Context, customerID domain.CustomerID, accountNo string) (recipients.Recipient, error)
	Search(ctx context.Context, identifier string) (recipients.SearchResult, error)
}

type Accounts interface {
	Summary(ctx context.Context, id domain.CustomerID) (accounts.Summary, error)
	History(ctx context.Context, id domain.CustomerID) ([]accounts.Entry, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	transfers  Transfers
	recipients Recipients
	accounts   Accounts
	store      Pinger
	logger     *zap.Logger
}

func NewServer(logger *zap.Logger, t Transfers, r Recipients, a Accounts, store Pinger) *Server {
	return &Server{
		transfers:  t,
		recipients: r,
		accounts:   a,
		store:      store,
		logger:     logger,
	}
}

// Handler returns the routes wrapped with tracing. allowedOrigins may
// contain "*" to allow any origin.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	r := gin.New()
	r.Use(
		requestLogger(s.logger),
		gin.CustomRecovery(recoverWithMessage),
		cors.New(corsConfig(allowedOrigins)),
	)

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)

	api := r.Group("/api")
	api.GET("/user/summary/:userId", s.summary)
	api.GET("/transactions/all/:userId", s.history)
	api.GET("/customers/search/:identifier", s.searchCustomer)
	api.POST("/customers/validate", s.validateRecipient)
	api.POST("/transfer", s.transfer)
	api.POST("/transfer/automated", s.automatedTransfer)
	api.POST("/bills/pay", s.payBill)

	return otelhttp.NewHandler(r, "bnb-transfers")
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "Server is running!")
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		logError(c, err, "store is not reachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Ledger store is not reachable."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
