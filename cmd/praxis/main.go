// Entry point for the praxis HTTP service — chi router, JWT sessions,
// per-tenant SQLite shards, clinical state engine.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/praxis/auth"
	"github.com/hazyhaar/praxis/dbopen"
	"github.com/hazyhaar/praxis/idgen"
	"github.com/hazyhaar/praxis/observability"
	"github.com/hazyhaar/praxis/shield"
	"github.com/hazyhaar/praxis/suivi"
	"github.com/hazyhaar/praxis/tenantpool"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := LoadConfigFile(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	secretInput := os.Getenv("SESSION_SECRET")
	if secretInput == "" {
		slog.Error("SESSION_SECRET is required")
		os.Exit(1)
	}
	// Derive a 32-byte JWT secret via SHA-256 (satisfies auth.MinSecretLen).
	secretHash := sha256.Sum256([]byte(secretInput))
	jwtSecret := secretHash[:]

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB — outcome log lives outside the clinical shards.
	obsDB, err := dbopen.Open(cfg.ObservabilityDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	if err := observability.ApplySchema(obsDB); err != nil {
		slog.Error("observability schema", "error", err)
		os.Exit(1)
	}
	outcomes := observability.NewOutcomeLogger(obsDB)

	// Catalog DB.
	catalogDB, err := dbopen.Open(cfg.CatalogDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("catalog db", "error", err)
		os.Exit(1)
	}
	defer catalogDB.Close()

	if err := tenantpool.InitCatalog(ctx, catalogDB); err != nil {
		slog.Error("init catalog", "error", err)
		os.Exit(1)
	}
	if err := migrateUsers(catalogDB); err != nil {
		slog.Error("migrate users", "error", err)
		os.Exit(1)
	}
	if err := seedAdmin(ctx, catalogDB); err != nil {
		slog.Error("seed admin", "error", err)
		os.Exit(1)
	}

	// Tenant pool — one shard per clinic, provisioned with the engine schema.
	pool, err := tenantpool.New(cfg.DataDir, catalogDB,
		tenantpool.WithShardSchema(suivi.ApplySchema))
	if err != nil {
		slog.Error("tenant pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Engine service.
	svc := suivi.New(pool,
		suivi.WithOutcomeLogger(outcomes),
		suivi.WithLogger(logger))

	// Daily retention cleanup on the outcome log.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := observability.Cleanup(ctx, obsDB, observability.RetentionConfig{
					OutcomeLogsDays: cfg.Retention.OutcomeLogsDays,
					RunVacuumAfter:  cfg.Retention.VacuumAfter,
				})
				if err != nil {
					slog.Warn("retention cleanup", "error", err)
				}
			}
		}
	}()

	users := &userService{db: catalogDB}
	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}
	r.Use(auth.Middleware(jwtSecret)) // Soft parse: routes enforce via requireSession.

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		claims, err := users.authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeJSON(w, 401, map[string]string{"error": "identifiants invalides"})
			return
		}
		token, err := auth.GenerateToken(jwtSecret, claims, sessionTTL)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
		auth.SetTokenCookie(w, token, secure)
		writeJSON(w, 200, map[string]string{
			"id": claims.UserID, "name": claims.Username,
			"role": claims.Role, "tenant_id": claims.TenantID,
		})
	})

	r.Post("/api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		auth.ClearTokenCookie(w)
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			c := auth.GetClaims(r.Context())
			writeJSON(w, 200, map[string]string{
				"id": c.UserID, "name": c.Username,
				"role": c.Role, "tenant_id": c.TenantID,
			})
		})

		// Admin: tenant management.
		r.Route("/api/admin/tenants", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				ids, err := pool.ListActive(r.Context())
				if err != nil {
					writeError(w, 500, err)
					return
				}
				if ids == nil {
					ids = []string{}
				}
				writeJSON(w, 200, ids)
			})

			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Name string `json:"name"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				if req.Name == "" {
					writeError(w, 400, fmt.Errorf("name requis"))
					return
				}
				tenantID := idgen.New()
				ownerID := ""
				if c := auth.GetClaims(r.Context()); c != nil {
					ownerID = c.UserID
				}
				if err := pool.CreateTenant(r.Context(), tenantID, ownerID, req.Name); err != nil {
					writeError(w, 500, err)
					return
				}
				writeJSON(w, 201, map[string]string{"id": tenantID, "name": req.Name})
			})

			r.Delete("/{tenantID}", func(w http.ResponseWriter, r *http.Request) {
				tenantID := chi.URLParam(r, "tenantID")
				if err := pool.DeactivateTenant(r.Context(), tenantID); err != nil {
					writeError(w, 500, err)
					return
				}
				writeJSON(w, 200, map[string]string{"status": "deactivated"})
			})

			r.Post("/{tenantID}/users", func(w http.ResponseWriter, r *http.Request) {
				tenantID := chi.URLParam(r, "tenantID")
				var req struct {
					Email    string `json:"email"`
					Name     string `json:"name"`
					Password string `json:"password"`
					Role     string `json:"role"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				if req.Role == "" {
					req.Role = "praticien"
				}
				user, err := users.createUser(r.Context(), tenantID, req.Email, req.Name, req.Password, req.Role)
				if err != nil {
					writeError(w, 400, err)
					return
				}
				writeJSON(w, 201, user)
			})
		})

		// Clinical engine routes, scoped to one tenant and one patient.
		r.Route("/api/tenants/{tenantID}/patients/{patientID}", func(r chi.Router) {
			r.Use(requireTenantAccess)

			r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					EventType string         `json:"event_type"`
					Payload   map[string]any `json:"payload"`
					Source    string         `json:"source"`
					RelatedID string         `json:"related_id"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				ev := &suivi.Event{
					TenantID:  chi.URLParam(r, "tenantID"),
					PatientID: chi.URLParam(r, "patientID"),
					EventType: req.EventType,
					Payload:   req.Payload,
					Source:    req.Source,
					RelatedID: req.RelatedID,
				}
				res, err := svc.ProcessEvent(r.Context(), ev)
				if err != nil {
					switch {
					case errors.Is(err, suivi.ErrInvalidEvent):
						writeError(w, 400, err)
					case errors.Is(err, tenantpool.ErrUnknownTenant):
						writeError(w, 404, err)
					default:
						writeError(w, 500, err)
					}
					return
				}
				code := 200
				if res.Outcome == suivi.OutcomeAccepted {
					code = 201
				}
				writeJSON(w, code, res)
			})

			r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
				snap, err := svc.LatestState(r.Context(),
					chi.URLParam(r, "tenantID"), chi.URLParam(r, "patientID"))
				if err != nil {
					writeResolveError(w, err)
					return
				}
				if snap == nil {
					writeJSON(w, 404, map[string]string{"error": "aucun etat pour ce patient"})
					return
				}
				writeJSON(w, 200, snap)
			})

			r.Get("/state/history", func(w http.ResponseWriter, r *http.Request) {
				limit := queryInt(r, "limit", 50)
				hist, err := svc.History(r.Context(),
					chi.URLParam(r, "tenantID"), chi.URLParam(r, "patientID"), limit)
				if err != nil {
					writeResolveError(w, err)
					return
				}
				if hist == nil {
					hist = []*suivi.Snapshot{}
				}
				writeJSON(w, 200, hist)
			})

			r.Get("/suggestions", func(w http.ResponseWriter, r *http.Request) {
				limit := queryInt(r, "limit", 50)
				sugs, err := svc.Suggestions(r.Context(),
					chi.URLParam(r, "tenantID"), chi.URLParam(r, "patientID"), limit)
				if err != nil {
					writeResolveError(w, err)
					return
				}
				if sugs == nil {
					sugs = []*suivi.Suggestion{}
				}
				writeJSON(w, 200, sugs)
			})

			// Re-evaluate the rule catalogue against the current state without
			// persisting anything.
			r.Get("/suggestions/next", func(w http.ResponseWriter, r *http.Request) {
				sug, err := svc.GenerateSuggestions(r.Context(),
					chi.URLParam(r, "tenantID"), chi.URLParam(r, "patientID"))
				if err != nil {
					writeResolveError(w, err)
					return
				}
				if sug == nil {
					writeJSON(w, 200, map[string]any{"suggestion": nil})
					return
				}
				writeJSON(w, 200, map[string]any{"suggestion": sug})
			})
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// --- Auth middleware ---

// requireSession returns 401 JSON if no valid JWT claims in context.
// auth.Middleware (applied globally) does the soft parsing.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetClaims(r.Context()) == nil {
			writeJSON(w, 401, map[string]string{"error": "non authentifie"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := auth.GetClaims(r.Context())
		if c == nil || c.Role != "admin" {
			writeJSON(w, 403, map[string]string{"error": "admin requis"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireTenantAccess restricts clinical routes to users of that tenant.
// Admins cross tenants; everyone else is pinned to the tenant in their claims.
func requireTenantAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := auth.GetClaims(r.Context())
		tenantID := chi.URLParam(r, "tenantID")
		if c == nil {
			writeJSON(w, 401, map[string]string{"error": "non authentifie"})
			return
		}
		if c.Role != "admin" && c.TenantID != tenantID {
			writeJSON(w, 403, map[string]string{"error": "acces refuse pour ce cabinet"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- User DB operations ---

func migrateUsers(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'praticien',
			tenant_id     TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'active',
			created_at    INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email != '';
	`)
	return err
}

func seedAdmin(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin' AND status = 'active'`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123!!!"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id := idgen.New()
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, status, created_at) VALUES (?, ?, ?, ?, 'admin', 'active', ?)`,
		id, "admin", "admin", string(hash), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("admin user seeded", "email", "admin", "id", id)
	return nil
}

type userService struct {
	db *sql.DB
}

func (s *userService) authenticate(ctx context.Context, email, password string) (*auth.PraxisClaims, error) {
	var userID, name, role, tenantID, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, tenant_id, password_hash FROM users WHERE email = ? AND status = 'active'`, email).
		Scan(&userID, &name, &role, &tenantID, &hash)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("wrong password")
	}
	return &auth.PraxisClaims{
		UserID:   userID,
		Username: name,
		Role:     role,
		TenantID: tenantID,
		Email:    email,
	}, nil
}

func (s *userService) createUser(ctx context.Context, tenantID, email, name, password, role string) (map[string]string, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email et mot de passe requis")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	id := idgen.New()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, tenant_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?, 'active', ?)`,
		id, name, email, string(hash), role, tenantID, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("creation utilisateur: %w", err)
	}
	return map[string]string{"id": id, "name": name, "email": email, "role": role, "tenant_id": tenantID}, nil
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeResolveError(w http.ResponseWriter, err error) {
	if errors.Is(err, tenantpool.ErrUnknownTenant) {
		writeError(w, 404, err)
		return
	}
	writeError(w, 500, err)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
