package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/johnrirwin/localtv/internal/auth"
	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/submit"
)

type videoSubmitter interface {
	Submit(ctx context.Context, settings models.SiteSettings, userID string, sub submit.Submission) (*submit.Result, error)
}

// SubmitAPI takes video submissions from visitors. Signed-in admins get
// their submissions approved immediately.
type SubmitAPI struct {
	settings       models.SiteSettings
	submitter      videoSubmitter
	authMiddleware *auth.Middleware
	logger         *logging.Logger
}

func NewSubmitAPI(settings models.SiteSettings, submitter videoSubmitter, authMiddleware *auth.Middleware, logger *logging.Logger) *SubmitAPI {
	return &SubmitAPI{
		settings:       settings,
		submitter:      submitter,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

func (api *SubmitAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	handler := api.handleSubmit
	if api.authMiddleware != nil {
		handler = api.authMiddleware.OptionalAuth(handler)
	}
	mux.HandleFunc("/api/videos/submit", corsMiddleware(handler))
}

// handleSubmit handles POST /api/videos/submit
func (api *SubmitAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := submit.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.GetUserID(r.Context())
	settings := api.settings
	if claims := auth.GetClaims(r.Context()); claims != nil && claims.Admin && !settings.IsAdmin(userID) {
		settings.AdminUserIDs = append(append([]string(nil), settings.AdminUserIDs...), userID)
	}

	result, err := api.submitter.Submit(r.Context(), settings, userID, sub)
	var verr *submit.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Message,
			"field": verr.Field,
		})
	case errors.Is(err, submit.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		api.logger.Error("Submission failed", logging.WithFields(map[string]interface{}{
			"kind":  submit.Kind(sub),
			"error": err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "failed to submit video")
	default:
		writeJSON(w, http.StatusCreated, result)
	}
}
