package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/authd/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

// App wires the credential store, token codec, and limiters into the HTTP
// surface. Every collaborator is injected so tests can assemble an App
// around the in-memory adapter.
type App struct {
	cfg         *cfg.Config
	DB          DB
	users       *Users
	codec       *TokenCodec
	logins      AttemptLimiter
	throttle    *IPThrottle
	stats       *Stats
	corsOrigins []string
	dev         bool
}

func NewApp(c *cfg.Config, db DB) *App {
	return &App{
		cfg:         c,
		DB:          db,
		users:       NewUsers(db, c.MinPasswordLength),
		codec:       NewTokenCodec([]byte(c.JWTSecret)),
		logins:      NewSlidingResetLimiter(),
		throttle:    NewIPThrottle(c.GlobalRatePerSecond, c.GlobalRateBurst),
		stats:       NewStats(),
		corsOrigins: c.CORSOrigins,
		dev:         !c.IsProduction(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// routes assembles the full router and middleware chain.
func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)
	r.Use(a.Throttle)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")
	r.HandleFunc("/metrics", a.HandleMetrics).Methods("GET")

	// Authentication endpoints
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", a.HandleRegister).Methods("POST")
	auth.HandleFunc("/login", a.HandleLogin).Methods("POST")
	auth.HandleFunc("/refresh", a.HandleRefresh).Methods("POST")
	auth.Handle("/logout", a.OptionalAuth(http.HandlerFunc(a.HandleLogout))).Methods("POST")
	auth.HandleFunc("/validate", a.HandleValidate).Methods("POST")
	auth.HandleFunc("/check-password-strength", a.HandleCheckPasswordStrength).Methods("POST")
	auth.Handle("/me", a.RequireAuth(http.HandlerFunc(a.HandleMe))).Methods("GET")

	// Profile endpoints, all behind mandatory auth
	user := r.PathPrefix("/api/user").Subrouter()
	user.Use(a.RequireAuth)
	user.HandleFunc("/profile", a.HandleProfile).Methods("GET")
	user.HandleFunc("/profile", a.HandleUpdateProfile).Methods("PUT")
	user.HandleFunc("/password", a.HandleChangePassword).Methods("PUT")
	user.HandleFunc("", a.HandleDeleteAccount).Methods("DELETE")

	// Per-id access, gated on ownership
	users := r.PathPrefix("/api/users").Subrouter()
	users.Use(a.RequireAuth)
	users.Use(a.RequireOwner)
	users.HandleFunc("/{id:[0-9]+}", a.HandleGetUser).Methods("GET")

	return r
}

// sweepLoop bounds limiter memory; correctness does not depend on it.
func (a *App) sweepLoop(done <-chan struct{}) {
	t := time.NewTicker(a.cfg.RateLimitWindow)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.logins.Sweep()
		case <-done:
			return
		}
	}
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		} else {
			log.Println("Migrations applied successfully")
		}

		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	app := NewApp(c, db)

	done := make(chan struct{})
	go app.sweepLoop(done)

	srv := &http.Server{
		Handler:      app.routes(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Println("Starting auth server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(done)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
