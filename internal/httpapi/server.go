package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"modelhost/internal/infercache"
	"modelhost/internal/manager"
	"modelhost/internal/perfmon"
	"modelhost/internal/registry"
	"modelhost/internal/store"
	"modelhost/pkg/types"
)

// Deps collects the components the HTTP layer fronts.
type Deps struct {
	Registry  *registry.Registry
	Discovery *registry.Discovery
	Manager   *manager.Manager
	Optimizer *infercache.Optimizer
	Cache     *infercache.Cache
	Perf      *perfmon.Monitor
	Store     *store.Store
	Log       zerolog.Logger

	// ModelsDirs are the default discovery directories when a request names
	// none.
	ModelsDirs []string
	// FallbackModel serves /infer requests that omit the model id.
	FallbackModel string
}

type server struct {
	d Deps
}

// NewMux assembles the HTTP API router.
func NewMux(d Deps) http.Handler {
	s := &server{d: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(RequestLogger(d.Log))
	r.Use(MetricsMiddleware)

	r.Get("/models", s.handleListModels)
	r.Post("/models/discover", s.handleDiscover)
	r.Post("/models/{id}/load", s.handleLoad)
	r.Post("/models/{id}/unload", s.handleUnload)
	r.Get("/models/{id}/perf", s.handlePerf)
	r.Post("/switch", s.handleSwitch)
	r.Post("/infer", s.handleInfer)
	r.Get("/status", s.handleStatus)
	r.Get("/stats", s.handleStats)
	r.Get("/alerts", s.handleAlerts)
	r.Post("/alerts/{id}/resolve", s.handleResolveAlert)
	r.Post("/cache/clear", s.handleCacheClear)
	r.Post("/memory/optimize", s.handleOptimize)
	r.Get("/export", s.handleExport)
	r.Post("/import", s.handleImport)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// decodeJSON enforces the content type and body budget shared by all JSON
// endpoints.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"models": s.d.Registry.List()})
}

func (s *server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req types.DiscoverRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	dirs := req.Directories
	if len(dirs) == 0 {
		dirs = s.d.ModelsDirs
	}
	if _, err := s.d.Discovery.Discover(r.Context(), dirs); err != nil && s.d.Registry.Len() == 0 {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, types.DiscoverResponse{Discovered: s.d.Registry.Len()})
}

func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var opts types.LoadOptions
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &opts) {
			return
		}
	}
	if err := s.d.Manager.LoadModel(r.Context(), id, opts); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"model": id, "loaded": true})
}

func (s *server) handleUnload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.d.Manager.UnloadModel(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"model": id, "loaded": false})
}

func (s *server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeJSONError(w, http.StatusBadRequest, "to is required")
		return
	}
	if err := s.d.Manager.SwitchModel(r.Context(), req.From, req.To, req.KeepPrevious); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"active": req.To})
}

func (s *server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req types.InferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	model := req.Model
	if model == "" {
		model = s.d.FallbackModel
	}
	if model == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required and no fallback model is configured")
		return
	}

	if req.Stream {
		s.streamInfer(w, r, model, req)
		return
	}

	res, err := s.d.Optimizer.Generate(r.Context(), model, req.Prompt, req.Options)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

// streamInfer writes NDJSON: one {"token":...} line per produced token and
// a terminal line with the completion summary. Once the first token is on
// the wire failures can only be reported in-band.
func (s *server) streamInfer(w http.ResponseWriter, r *http.Request, model string, req types.InferRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	enc := json.NewEncoder(w)
	wrote := false
	res, err := s.d.Manager.GenerateTextStream(r.Context(), model, req.Prompt, req.Options, func(token string) error {
		wrote = true
		if err := enc.Encode(map[string]any{"token": token}); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	})
	if err != nil {
		if r.Context().Err() != nil || manager.IsCancelled(err) {
			return
		}
		if !wrote {
			writeServiceError(w, err)
			return
		}
		_ = enc.Encode(map[string]any{"error": err.Error()})
		return
	}

	_ = enc.Encode(map[string]any{
		"done":          true,
		"token_count":   res.TokenCount,
		"finish_reason": res.FinishReason,
	})
	if flush != nil {
		flush()
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.d.Manager.Status())
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.d.Manager.Stats()
	writeJSON(w, map[string]any{
		"loaded_models":     stats.LoadedCount,
		"memory_used_bytes": stats.TotalMemoryUsed,
		"cache_entries":     s.d.Cache.Len(),
		"cache_used_bytes":  s.d.Cache.UsedBytes(),
		"registered_models": s.d.Registry.Len(),
	})
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "1"
	writeJSON(w, map[string]any{"alerts": s.d.Perf.Alerts(includeResolved)})
}

func (s *server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.d.Perf.ResolveAlert(id) {
		writeJSONError(w, http.StatusNotFound, "unknown alert id")
		return
	}
	writeJSON(w, map[string]any{"resolved": id})
}

func (s *server) handlePerf(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, ok := s.d.Perf.Summary(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no samples recorded for model")
		return
	}
	writeJSON(w, map[string]any{
		"summary": summary,
		"trends": map[string]any{
			"inference": s.d.Perf.Trend(id, perfmon.MetricInference),
			"memory":    s.d.Perf.Trend(id, perfmon.MetricMemory),
			"error":     s.d.Perf.Trend(id, perfmon.MetricError),
		},
		"recommendations": s.d.Perf.Recommendations(id),
	})
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"cleared": s.d.Cache.Clear()})
}

func (s *server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	unloaded, freed, err := s.d.Manager.OptimizeMemory(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if unloaded == nil {
		unloaded = []string{}
	}
	writeJSON(w, map[string]any{"unloaded": unloaded, "bytes_freed": freed})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	blob, err := s.d.Store.ExportAll(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.Header().Set("Content-Disposition", `attachment; filename="modelhost-export.msgpack"`)
	_, _ = w.Write(blob)
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read import blob")
		return
	}
	if err := s.d.Store.ImportAll(r.Context(), blob); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"imported": true})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.d.Manager == nil || s.d.Registry == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
