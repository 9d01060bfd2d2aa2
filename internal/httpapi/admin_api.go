package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/johnrirwin/localtv/internal/auth"
	"github.com/johnrirwin/localtv/internal/ingest"
	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/metasearch"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/moderation"
)

type importRunner interface {
	Run(ctx context.Context, settings models.SiteSettings, src *models.Source) (*ingest.RunResult, error)
}

type sourceGetter interface {
	GetSource(ctx context.Context, id int64) (*models.Source, error)
}

type videoModerator interface {
	List(ctx context.Context, settings models.SiteSettings, status models.VideoStatus, limit, offset int) (*models.VideoListResponse, error)
	Approve(ctx context.Context, settings models.SiteSettings, id int64) (*models.Video, error)
	Reject(ctx context.Context, settings models.SiteSettings, id int64) (*models.Video, error)
	BulkDelete(ctx context.Context, settings models.SiteSettings, ids []int64) (*moderation.BulkDeleteResult, error)
}

type liveSearcher interface {
	LiveSearch(ctx context.Context, query string) ([]models.Entry, error)
}

// AdminAPI handles admin-only endpoints
type AdminAPI struct {
	settings       models.SiteSettings
	sources        sourceGetter
	importer       importRunner
	moderator      videoModerator
	searcher       liveSearcher
	authMiddleware *auth.Middleware
	logger         *logging.Logger
}

func NewAdminAPI(settings models.SiteSettings, sources sourceGetter, importer importRunner, moderator videoModerator, searcher liveSearcher, authMiddleware *auth.Middleware, logger *logging.Logger) *AdminAPI {
	return &AdminAPI{
		settings:       settings,
		sources:        sources,
		importer:       importer,
		moderator:      moderator,
		searcher:       searcher,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

// RegisterRoutes registers admin routes
func (api *AdminAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	if api.authMiddleware == nil {
		api.logger.Error("Admin API routes not registered: authMiddleware is nil")
		return
	}

	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(api.authMiddleware.RequireAuth(api.authMiddleware.RequireAdmin(api.settings.IsAdmin, h)))
	}

	mux.HandleFunc("/api/admin/sources/", guard(api.handleSourceAction))
	mux.HandleFunc("/api/admin/videos", guard(api.handleListVideos))
	mux.HandleFunc("/api/admin/videos/bulk-delete", guard(api.handleBulkDelete))
	mux.HandleFunc("/api/admin/videos/", guard(api.handleVideoAction))
	mux.HandleFunc("/api/admin/livesearch", guard(api.handleLiveSearch))
}

// handleSourceAction handles POST /api/admin/sources/{id}/import
func (api *AdminAPI) handleSourceAction(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/admin/sources/")
	if len(parts) != 2 || parts[1] != "import" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	src, err := api.sources.GetSource(r.Context(), id)
	if err != nil || src.SiteID != api.settings.Site.ID {
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			api.logger.Error("Failed to load source", logging.WithField("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to load source")
			return
		}
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	result, err := api.importer.Run(r.Context(), api.settings, src)
	switch {
	case errors.Is(err, ingest.ErrImportInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		api.logger.Error("Import failed", logging.WithFields(map[string]interface{}{
			"source": id,
			"error":  err.Error(),
		}))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  "import failed: " + err.Error(),
			"result": result,
		})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// handleListVideos handles GET /api/admin/videos?status=unapproved
func (api *AdminAPI) handleListVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	var status models.VideoStatus
	if raw := query.Get("status"); raw != "" {
		parsed, err := models.ParseVideoStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	response, err := api.moderator.List(r.Context(), api.settings, status,
		parseIntQuery(query.Get("limit"), 20),
		parseIntQuery(query.Get("offset"), 0),
	)
	if err != nil {
		api.logger.Error("Failed to list videos", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleVideoAction handles POST /api/admin/videos/{id}/approve|reject
func (api *AdminAPI) handleVideoAction(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/admin/videos/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}

	var video *models.Video
	switch parts[1] {
	case "approve":
		video, err = api.moderator.Approve(r.Context(), api.settings, id)
	case "reject":
		video, err = api.moderator.Reject(r.Context(), api.settings, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "video not found")
	case errors.Is(err, moderation.ErrInvalidTransition), errors.Is(err, models.ErrDuplicateVideo):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		api.logger.Error("Failed to moderate video", logging.WithFields(map[string]interface{}{
			"video":  id,
			"action": parts[1],
			"error":  err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "failed to update video")
	default:
		api.logger.Info("Admin moderated video", logging.WithFields(map[string]interface{}{
			"video":   id,
			"action":  parts[1],
			"adminId": auth.GetUserID(r.Context()),
		}))
		writeJSON(w, http.StatusOK, video)
	}
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// handleBulkDelete handles POST /api/admin/videos/bulk-delete
func (api *AdminAPI) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	result, err := api.moderator.BulkDelete(r.Context(), api.settings, req.IDs)
	if err != nil {
		api.logger.Error("Bulk delete failed", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete videos")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLiveSearch handles GET /api/admin/livesearch?q=
func (api *AdminAPI) handleLiveSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if api.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "live search is not configured")
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	entries, err := api.searcher.LiveSearch(r.Context(), q)
	switch {
	case errors.Is(err, metasearch.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "q is required")
	case err != nil:
		api.logger.Warn("Live search failed", logging.WithFields(map[string]interface{}{
			"query": q,
			"error": err.Error(),
		}))
		writeError(w, http.StatusBadGateway, "search providers unavailable")
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   q,
			"results": entries,
		})
	}
}
