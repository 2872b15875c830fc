package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/healthtracker/internal/auth"
	cfg "github.com/example/healthtracker/internal/config"
	"github.com/example/healthtracker/internal/identity"
	"github.com/example/healthtracker/internal/logging"
	"github.com/example/healthtracker/internal/revocation"
	"github.com/example/healthtracker/internal/store"
	"github.com/gorilla/mux"
)

type App struct {
	Store    store.Store
	Identity *identity.Manager
	Auth     *auth.Service
	Denylist revocation.Denylist
	Log      logging.Logger

	cfg         *cfg.Config
	rateLimiter *RateLimiter
}

// NewApp wires the identity provider and auth service over s and deny.
func NewApp(c *cfg.Config, s store.Store, deny revocation.Denylist, log logging.Logger) (*App, error) {
	lifetime, err := c.AccessTokenLifetime()
	if err != nil {
		return nil, err
	}
	ids := identity.NewManager(s, identity.NewHasher(c.BcryptCost))
	authCfg := auth.Config{
		Secret:              c.JwtSecret,
		AccessTokenLifetime: lifetime,
		DefaultRole:         c.DefaultRole,
	}
	return &App{
		Store:       s,
		Identity:    ids,
		Auth:        auth.NewService(authCfg, ids, s, deny, log.With("component", "auth")),
		Denylist:    deny,
		Log:         log,
		cfg:         c,
		rateLimiter: NewRateLimiter(c.RateLimitPerMinute),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json: %v\n", err)
	}
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		a.Log.Warn(ctx, "readiness: store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "store unavailable")
		return
	}
	if err := a.Denylist.Ping(ctx); err != nil {
		a.Log.Warn(ctx, "readiness: denylist unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "denylist unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (a *App) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(a.Logging)

	r.HandleFunc("/health", a.HandleHealth).Methods("GET")
	r.HandleFunc("/ready", a.HandleReady).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(a.RateLimit)

	accounts := v1.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("/register", a.HandleRegister).Methods("POST")
	accounts.HandleFunc("/login", a.HandleLogin).Methods("POST")
	accounts.HandleFunc("/refreshtoken", a.HandleRefresh).Methods("POST")
	accounts.Handle("/logout", a.BearerAuth(http.HandlerFunc(a.HandleLogout))).Methods("POST")

	admin := RequireRole("Admin")

	setup := v1.PathPrefix("/setup").Subrouter()
	setup.Use(a.BearerAuth, admin)
	setup.HandleFunc("", a.HandleListRoles).Methods("GET")
	setup.HandleFunc("", a.HandleCreateRole).Methods("POST")
	setup.HandleFunc("/getallusers", a.HandleListIdentities).Methods("GET")
	setup.HandleFunc("/addusertorole", a.HandleAddUserToRole).Methods("POST")
	setup.HandleFunc("/getuserroles", a.HandleGetUserRoles).Methods("GET")
	setup.HandleFunc("/removeuserfromrole", a.HandleRemoveUserFromRole).Methods("DELETE")

	claims := v1.PathPrefix("/claimssetup").Subrouter()
	claims.Use(a.BearerAuth, admin)
	claims.HandleFunc("", a.HandleGetUserClaims).Methods("GET")
	claims.HandleFunc("/addclaimstouser", a.HandleAddClaimToUser).Methods("POST")

	profiles := v1.PathPrefix("/profiles").Subrouter()
	profiles.Use(a.BearerAuth)
	profiles.HandleFunc("", a.HandleGetProfile).Methods("GET")
	profiles.HandleFunc("", a.HandleUpdateProfile).Methods("PUT")

	users := v1.PathPrefix("/users").Subrouter()
	users.Use(a.BearerAuth, admin)
	users.HandleFunc("", a.HandleListProfiles).Methods("GET")
	users.Handle("", RequireClaim("Department")(http.HandlerFunc(a.HandleCreateProfile))).Methods("POST")
	users.HandleFunc("/getuser", a.HandleGetProfileByID).Methods("GET")

	health := v1.PathPrefix("/healthdata").Subrouter()
	health.Use(a.BearerAuth)
	health.HandleFunc("", a.HandleListHealthData).Methods("GET")
	health.HandleFunc("", a.HandleAddHealthData).Methods("POST")
	health.HandleFunc("/{id}", a.HandleUpdateHealthData).Methods("PUT")

	// Preflights have no matching route, so CORS wraps the router.
	return a.CORS(r)
}

func main() {
	c, err := cfg.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	ctx := context.Background()

	s, err := openStore(ctx, c, log)
	if err != nil {
		log.Error(ctx, "store init failed", "adapter", c.DBAdapter, "error", err)
		os.Exit(1)
	}
	deny, closeDeny, err := openDenylist(ctx, c, log)
	if err != nil {
		log.Error(ctx, "denylist init failed", "error", err)
		os.Exit(1)
	}

	app, err := NewApp(c, s, deny, log)
	if err != nil {
		log.Error(ctx, "app init failed", "error", err)
		os.Exit(1)
	}
	if err := seedRoles(ctx, app.Identity, c.Roles(), log); err != nil {
		log.Error(ctx, "seeding roles failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{Handler: app.Routes(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		log.Info(ctx, "starting server", "port", c.Port, "adapter", c.DBAdapter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown failed", "error", err)
	}
	closeDeny()
	if err := s.Close(); err != nil {
		log.Warn(shutdownCtx, "closing store", "error", err)
	}
	log.Info(shutdownCtx, "server exited properly")
}
