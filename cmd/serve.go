package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetops/kpi-cli/internal/dimcache"
	"github.com/fleetops/kpi-cli/internal/fetch"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/retry"
	"github.com/fleetops/kpi-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the KPI HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, env.Collector.Snapshot())
		})

		r.Get("/api/dimensions/regions", func(w http.ResponseWriter, req *http.Request) {
			regions, err := dimcache.GetOrFetchAs(req.Context(), env.Cache, dimcache.KeyRegions, dimcache.TTLRegions,
				func(ctx context.Context) ([]string, error) { return env.Store.Regions(ctx) })
			if err != nil {
				writeJSON(w, http.StatusBadGateway, model.FetchResult{Error: &model.ErrorInfo{Message: "failed to load regions"}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
		})

		r.Get("/api/dimensions/weeks", func(w http.ResponseWriter, req *http.Request) {
			weeks, err := dimcache.GetOrFetchAs(req.Context(), env.Cache, dimcache.KeyWeeks, dimcache.TTLWeeks,
				func(ctx context.Context) ([]store.WeekYear, error) { return env.Store.WeeksYears(ctx) })
			if err != nil {
				writeJSON(w, http.StatusBadGateway, model.FetchResult{Error: &model.ErrorInfo{Message: "failed to load weeks"}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"weeks": weeks})
		})

		r.Get("/api/{family}", func(w http.ResponseWriter, req *http.Request) {
			handleFamily(w, req, env)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("kpi api listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// handleFamily runs one orchestrated fetch under the retry policy and maps
// the outcome to the consumer contract. Raw backend errors never reach the
// response body.
func handleFamily(w http.ResponseWriter, req *http.Request, env *pipelineEnv) {
	fam := model.Family(chi.URLParam(req, "family"))
	orch, ok := env.Orchestrators[fam]
	if !ok {
		writeJSON(w, http.StatusNotFound, model.FetchResult{Error: &model.ErrorInfo{Message: "unknown metric family", Code: "unknown-family"}})
		return
	}

	filter, err := parseFilter(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.FetchResult{Error: &model.ErrorInfo{Message: err.Error(), Code: "bad-filter"}})
		return
	}

	retryCfg := env.RetryCfg
	retryCfg.OnRetry = retry.Logger(string(fam))
	result, err := retry.DoVal(req.Context(), retryCfg, func(ctx context.Context) (*model.FamilyResult, error) {
		return orch.Fetch(ctx, filter)
	})
	if err != nil {
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.FetchResult{Data: result})
}

func writeFetchError(w http.ResponseWriter, err error) {
	var unavailable *fetch.UnavailableError
	switch {
	case errors.Is(err, fetch.ErrRetryRateLimited):
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusServiceUnavailable, model.FetchResult{Error: &model.ErrorInfo{Message: "too many requests, try again shortly", Code: "rate-limited"}})
	case errors.Is(err, fetch.ErrRetryServer):
		w.Header().Set("Retry-After", "10")
		writeJSON(w, http.StatusServiceUnavailable, model.FetchResult{Error: &model.ErrorInfo{Message: "metrics temporarily unavailable", Code: "server-error"}})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusBadGateway, model.FetchResult{Error: &model.ErrorInfo{Message: "this metric is currently unavailable", Code: "unavailable"}})
	default:
		zap.L().Error("fetch failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, model.FetchResult{Error: &model.ErrorInfo{Message: "failed to fetch metrics", Code: "fetch-failed"}})
	}
}

// parseFilter binds query parameters to the sparse filter payload.
// Repeatable params (region, sub_region, origin) accumulate into sets.
func parseFilter(req *http.Request) (*model.Filter, error) {
	q := req.URL.Query()
	f := &model.Filter{
		Regions:    q["region"],
		SubRegions: q["sub_region"],
		Origins:    q["origin"],
		Shift:      q.Get("shift"),
		OrgID:      q.Get("org_id"),
		Search:     q.Get("search"),
	}

	var err error
	if f.Year, err = intParam(q.Get("year")); err != nil {
		return nil, fmt.Errorf("invalid year")
	}
	if f.Week, err = intParam(q.Get("week")); err != nil {
		return nil, fmt.Errorf("invalid week")
	}
	if f.StartDate, err = dateParam(q.Get("start_date")); err != nil {
		return nil, fmt.Errorf("invalid start_date, want YYYY-MM-DD")
	}
	if f.EndDate, err = dateParam(q.Get("end_date")); err != nil {
		return nil, fmt.Errorf("invalid end_date, want YYYY-MM-DD")
	}
	if f.FirstActiveStart, err = dateParam(q.Get("first_active_start")); err != nil {
		return nil, fmt.Errorf("invalid first_active_start, want YYYY-MM-DD")
	}
	if f.FirstActiveEnd, err = dateParam(q.Get("first_active_end")); err != nil {
		return nil, fmt.Errorf("invalid first_active_end, want YYYY-MM-DD")
	}
	return f, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func dateParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
