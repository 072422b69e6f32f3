package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"plcwatch/internal/platform/metrics"
	"plcwatch/internal/platform/middleware"
	"plcwatch/internal/plc/chain"
	"plcwatch/internal/plc/ingest"
	"plcwatch/internal/plc/models"
	"plcwatch/internal/plc/timeline"
	dErrors "plcwatch/pkg/domain-errors"
	"plcwatch/pkg/platform/httputil"
	"plcwatch/pkg/platform/middleware/metadata"
)

// maxUploadBytes bounds a POST /operations body.
const maxUploadBytes = 64 << 20

// Service defines the read and write operations the handler exposes.
type Service interface {
	HandleTimeline(ctx context.Context, handle string) (*timeline.Timeline, error)
	IdentifierChains(ctx context.Context, did string) ([]chain.Chain, error)
	ListHandles(ctx context.Context) ([]*models.Handle, error)
	Ingest(ctx context.Context, rec *models.ExportedOperation) (*models.Operation, error)
}

// Handler serves handle timelines, identifier chains and operation uploads.
type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.HTTP
}

func New(service Service, logger *slog.Logger, m *metrics.HTTP) *Handler {
	return &Handler{service: service, logger: logger, metrics: m}
}

// Register registers the plc routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(metadata.ClientMetadata)
	router.Use(middleware.Logger(h.logger))
	router.Use(chimw.Timeout(30 * time.Second))
	router.Use(middleware.Latency(h.metrics))

	router.Get("/handles", h.handleListHandles)
	router.Get("/handles/{handle}", h.handleTimeline)
	router.Get("/dids/{did}/chains", h.handleChains)
	router.Post("/operations", h.handleUpload)

	r.Mount("/", router)
}

func (h *Handler) handleListHandles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handles, err := h.service.ListHandles(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list handles")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HandlesResponse{Handles: toHandleViews(handles)})
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tl, err := h.service.HandleTimeline(ctx, chi.URLParam(r, "handle"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to build handle timeline")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tl)
}

func (h *Handler) handleChains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := chi.URLParam(r, "did")
	chains, err := h.service.IdentifierChains(ctx, did)
	if err != nil {
		h.writeError(ctx, w, err, "failed to resolve chains")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NewChainsResponse(did, chains))
}

// handleUpload ingests a JSON Lines body in order and reports per-record outcomes.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer body.Close()

	stats, err := ingest.IngestStream(ctx, h.service, body, h.logger)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = dErrors.New(dErrors.CodeBadRequest, "request body too large")
		}
		h.writeError(ctx, w, err, "failed to ingest operations")
		return
	}
	h.logger.InfoContext(ctx, "operations uploaded",
		"request_id", middleware.GetRequestID(ctx),
		"ingested", stats.Ingested,
		"malformed", stats.Malformed,
		"rejected", stats.Rejected,
	)
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
