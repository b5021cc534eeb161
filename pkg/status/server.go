package status

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/constants"
)

// Provider produces a fresh Info per request.
type Provider func(ctx context.Context) (Info, error)

// ServerOptions configures the status HTTP API.
type ServerOptions struct {
	// BasePath prefixes every route; defaults to "/upgrade".
	BasePath string
	// JWT protects the status route when non-nil.
	JWT      *VerifyConfig
	Provider Provider
}

func normalizeBase(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = constants.DefaultStatusBasePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// NewHandler builds the gin engine serving:
//
//	GET <base>/healthz  liveness, never authenticated
//	GET <base>/status   Info as JSON
func NewHandler(opts ServerOptions) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	g := engine.Group(normalizeBase(opts.BasePath))
	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	handlers := []gin.HandlerFunc{}
	if opts.JWT != nil {
		handlers = append(handlers, JWTMiddleware(*opts.JWT))
	}
	handlers = append(handlers, func(c *gin.Context) {
		if opts.Provider == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status provider not configured"})
			return
		}
		info, err := opts.Provider(c.Request.Context())
		if err != nil {
			common.GetLogger().WithComponent("status").Error("failed to collect status", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})
	g.GET("/status", handlers...)
	return engine
}

// Serve runs h on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	if addr == "" {
		addr = constants.DefaultStatusAddr
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	logger := common.GetLogger().WithComponent("status")

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

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
			return err
		}
		logger.Info("status server stopped")
		return nil
	}
}
