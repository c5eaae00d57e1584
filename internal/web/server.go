package web

// HTTP surface of the portal: the HTML page, the JSON API and the swagger UI.
//
// @title        Wave Portal API
// @version      1.0
// @description  Send and read wave messages on the Starknet wave portal contract.
// @BasePath     /

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wave-portal/internal/clients_api/clerk"
	"wave-portal/internal/features/poller"
	"wave-portal/internal/features/portal"
	"wave-portal/internal/features/waves"
	"wave-portal/internal/features/writer"
	"wave-portal/internal/infra/log"
	_ "wave-portal/internal/web/docs"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Portal - the state object the handlers drive
type Portal interface {
	State() portal.State
	Refresh(ctx context.Context) waves.Snapshot
	SendWave(ctx context.Context, req writer.WaveRequest) (writer.TxHandle, error)
	TxStatus(hash string) (poller.Result, bool)
	Message(hash string) string
}

// Authenticator - identity provider operations used at the auth boundary
type Authenticator interface {
	Authenticate(ctx context.Context, sessionJWT string) (*clerk.Identity, error)
	BearerToken(ctx context.Context, sessionID string) (string, error)
}

type Options struct {
	Addr          string
	SignInURL     string
	OnboardingURL string
	ExplorerTxURL string
	// Auth is nil for the direct strategy: no sign-in, no wallet gate
	Auth Authenticator
}

type Server struct {
	portal Portal
	opts   Options
	page   *pageRenderer
}

func NewServer(p Portal, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	return &Server{portal: p, opts: opts, page: newPageRenderer()}
}

// Handler - all routes behind the request logger
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	mux.HandleFunc("GET /{$}", s.Index)
	mux.HandleFunc("POST /{$}", s.SubmitForm)

	mux.HandleFunc("GET /api/waves", s.ListWaves)
	mux.HandleFunc("POST /api/waves", s.SendWave)
	mux.HandleFunc("POST /api/refresh", s.Refresh)
	mux.HandleFunc("GET /api/tx/{hash}", s.TxStatus)
	mux.HandleFunc("GET /api/celebrate/{file}", s.Celebrate)
	mux.HandleFunc("GET /healthz", s.Health)

	return requestLogger(mux)
}

// Run serves until ctx ends, then shuts down with a 10s grace period
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.LogSuccess("HTTP server listening", zap.String("addr", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogWarn("HTTP server shutdown timeout", zap.Error(err))
		return err
	}
	log.LogInfo("HTTP server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := log.GenerateRequestID()
		start := time.Now()
		log.LogRequest(requestID, r.Method, r.URL.Path, zap.String("remote", r.RemoteAddr))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.LogResponse(requestID, rec.status, time.Since(start).Milliseconds(), zap.String("endpoint", r.URL.Path))
	})
}
