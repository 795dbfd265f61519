package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/weeklyvote/internal/auth"
	"github.com/abrezinsky/weeklyvote/internal/handlers"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
	"github.com/abrezinsky/weeklyvote/internal/services"
	"github.com/abrezinsky/weeklyvote/internal/websocket"
	"github.com/abrezinsky/weeklyvote/pkg/riskscore"
)

// systemActor runs startup tasks such as demo seeding
var systemActor = models.Actor{ID: "system", IsAdmin: true}

// Options configures a new App
type Options struct {
	DBPath          string
	Addr            string
	BaseURL         string
	Scorer          riskscore.Client
	ScorerTimeout   time.Duration
	ShutdownTimeout time.Duration
	Auth            *auth.Auth
}

// App holds all application dependencies
type App struct {
	log             logger.Logger
	handlers        *handlers.Handlers
	repo            *repository.Repository
	seed            *services.SeedService
	addr            string
	baseURL         string
	shutdownTimeout time.Duration
	stopHub         context.CancelFunc
}

// New creates and initializes a new application instance
func New(log logger.Logger, opts Options) (*App, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("admin auth is required")
	}
	repo, err := repository.New(opts.DBPath)
	if err != nil {
		return nil, err
	}

	scorer := opts.Scorer
	if scorer == nil {
		scorer = riskscore.AllowAll{}
	}
	baseURL := resolveBaseURL(opts.BaseURL, opts.Addr, realNetworkProvider{})
	clock := services.SystemClock{}

	votingService := services.NewVotingService(log, repo, services.NewRepositoryTierResolver(repo), scorer, clock)
	if opts.ScorerTimeout > 0 {
		votingService.SetScorerTimeout(opts.ScorerTimeout)
	}
	fraudService := services.NewFraudService(log, repo, clock)
	resultsService := services.NewResultsService(log, repo, clock)
	submissionService := services.NewSubmissionService(log, repo, baseURL)
	seedService := services.NewSeedService(log, repo, clock)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.New(log)
	hub.Start(hubCtx)
	votingService.SetBroadcaster(hub)
	fraudService.SetBroadcaster(hub)
	resultsService.SetBroadcaster(hub)

	h := handlers.New(
		votingService,
		fraudService,
		resultsService,
		submissionService,
		seedService,
		opts.Auth,
		hub,
		log,
	)

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &App{
		log:             log,
		handlers:        h,
		repo:            repo,
		seed:            seedService,
		addr:            opts.Addr,
		baseURL:         baseURL,
		shutdownTimeout: shutdownTimeout,
		stopHub:         stopHub,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// BaseURL returns the public URL used in share links
func (a *App) BaseURL() string {
	return a.baseURL
}

// SeedDemo creates a demo period as the system actor
func (a *App) SeedDemo(ctx context.Context) error {
	result, err := a.seed.SeedDemo(ctx, systemActor)
	if err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	a.log.Info("Demo data ready", "period_id", result.PeriodID, "submissions", result.Submissions)
	return nil
}

// Close performs graceful shutdown of app resources
func (a *App) Close() error {
	if a.stopHub != nil {
		a.stopHub()
	}
	return a.repo.Close()
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("Server starting", "addr", a.addr, "url", a.baseURL)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down", "timeout", a.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if a.stopHub != nil {
		a.stopHub()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// resolveBaseURL returns the configured base URL, or one built from the
// preferred LAN address when none is configured.
func resolveBaseURL(configured, addr string, provider networkProvider) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	return fmt.Sprintf("http://%s%s", getPreferredIP(provider), addr)
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

// realInterface wraps a real net.Interface
type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

// realNetworkProvider implements networkProvider using actual net package
type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IPv4 address for share links, preferring
// private ranges. Falls back to localhost.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			candidates = append(candidates, ip)
		}
	}

	for _, ip := range candidates {
		if ip.IsPrivate() {
			return ip.String()
		}
	}
	if len(candidates) > 0 {
		return candidates[0].String()
	}
	return "localhost"
}
