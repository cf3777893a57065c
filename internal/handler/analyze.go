package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferrostad/snaplist/internal/ai"
	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/metrics"
	"github.com/ferrostad/snaplist/internal/ratelimit"
	"github.com/ferrostad/snaplist/internal/service"
	"github.com/ferrostad/snaplist/internal/storage"
)

const (
	// maxUploadSize bounds the multipart body. Matches the vision provider's
	// 20MB image ceiling with headroom for the form envelope.
	maxUploadSize = 21 << 20

	// analyzeTimeout bounds the vision call including retries.
	analyzeTimeout = 90 * time.Second
)

// AnalyzeHandler turns an item photo into a listing draft. This is the
// quota- and rate-gated endpoint: admission is checked up front, but nothing
// is charged until the analysis has actually succeeded.
type AnalyzeHandler struct {
	gateway  *ratelimit.Gateway
	quota    service.QuotaService
	provider ai.Provider
	store    storage.Storage
	thumbs   service.ThumbnailProcessor
	logger   *slog.Logger
}

// NewAnalyzeHandler creates a new AnalyzeHandler.
func NewAnalyzeHandler(
	gateway *ratelimit.Gateway,
	quota service.QuotaService,
	provider ai.Provider,
	store storage.Storage,
	thumbs service.ThumbnailProcessor,
	logger *slog.Logger,
) *AnalyzeHandler {
	return &AnalyzeHandler{
		gateway:  gateway,
		quota:    quota,
		provider: provider,
		store:    store,
		thumbs:   thumbs,
		logger:   logger,
	}
}

// AnalyzeResponse is the success body for POST /api/analyze.
type AnalyzeResponse struct {
	Draft         domain.ListingDraft `json:"draft"`
	ImagePath     string              `json:"image_path,omitempty"`
	ThumbnailPath string              `json:"thumbnail_path,omitempty"`
	Quota         *QuotaBody          `json:"quota,omitempty"`
}

// Analyze handles POST /api/analyze.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analyze"

	user := auth.GetUser(r.Context())
	identifier := ratelimit.Identifier(r, user)
	authenticated := user != nil

	// Readonly admission first: nothing below runs for callers already over
	// a window, and nothing is recorded for callers who fail later.
	admission := h.gateway.CheckAnalyzeAdmission(r.Context(), identifier, authenticated)
	SetRateLimitHeaders(w, admission.Binding)
	if !admission.Allowed {
		metrics.RateLimitBlocks.WithLabelValues(ratelimit.AnalyzeEndpoint).Inc()
		SetRetryAfterHeader(w, admission.Binding)
		RateLimitErrorResponse(w, r, h.logger, admission.Denial, admission.Binding)
		return
	}

	// Authenticated callers also need creation allowance. This read is
	// advisory; the authoritative decrement happens after the analysis.
	var snapshot *domain.QuotaSnapshot
	if authenticated {
		var err error
		snapshot, err = h.quota.GetSnapshot(r.Context(), user)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		if !snapshot.IsPro && snapshot.CreationsRemainingToday+snapshot.BonusCreationsRemaining < 1 {
			metrics.QuotaDenials.WithLabelValues(domain.ReasonCreationQuotaExceeded).Inc()
			ErrorResponse(w, r, h.logger, domain.QuotaExceeded(op, domain.ReasonCreationQuotaExceeded,
				"You are out of creations for today. Buy a credit pack or come back tomorrow."))
			return
		}
	}

	imageData, contentType, filename, hint, err := readUpload(w, r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()

	result, err := h.provider.GenerateListing(ctx, ai.GenerateParams{
		ImageData:   imageData,
		ContentType: contentType,
		Hint:        hint,
	})
	if err != nil {
		metrics.ListingsGenerated.WithLabelValues("error").Inc()
		ErrorResponse(w, r, h.logger, mapProviderError(op, err))
		return
	}

	metrics.ListingsGenerated.WithLabelValues("ok").Inc()
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(result.Usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(result.Usage.OutputTokens))
	metrics.AICostCentsTotal.Add(float64(result.Usage.CostCents))

	// Charge only after success: the decrement is the authoritative check,
	// so a race between the advisory read and now still cannot overspend.
	if authenticated {
		if err := h.quota.ConsumeCreations(r.Context(), user, 1); err != nil {
			if domain.ErrorCode(err) == domain.EPAYMENT {
				metrics.QuotaDenials.WithLabelValues(domain.ReasonCreationQuotaExceeded).Inc()
			}
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}
	h.gateway.RecordAnalyze(r.Context(), identifier, authenticated)

	resp := AnalyzeResponse{Draft: result.Draft}
	h.storePhoto(r.Context(), imageData, contentType, filename, &resp)

	if authenticated {
		if snapshot, err := h.quota.GetSnapshot(r.Context(), user); err == nil {
			qb := NewQuotaBody(snapshot)
			resp.Quota = &qb
		}
	}

	RespondJSON(w, h.logger, http.StatusOK, resp)
}

// storePhoto persists the original and a thumbnail so the draft can be saved
// with its image later. Failures degrade the response rather than failing
// the analysis the caller already paid for.
func (h *AnalyzeHandler) storePhoto(ctx context.Context, imageData []byte, contentType, filename string, resp *AnalyzeResponse) {
	if h.store == nil {
		return
	}

	key := storage.PhotoKey(filename)
	err := h.store.Put(ctx, key, bytes.NewReader(imageData), storage.PutOptions{
		ContentType: contentType,
	})
	if err != nil {
		h.logger.Warn("failed to store listing photo", "key", key, "error", err)
		return
	}
	resp.ImagePath = key

	thumb, err := h.thumbs.GenerateThumbnail(bytes.NewReader(imageData))
	if err != nil {
		h.logger.Warn("failed to generate thumbnail", "key", key, "error", err)
		return
	}
	thumbKey := storage.ThumbnailKey(key)
	err = h.store.Put(ctx, thumbKey, bytes.NewReader(thumb), storage.PutOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		h.logger.Warn("failed to store thumbnail", "key", thumbKey, "error", err)
		return
	}
	resp.ThumbnailPath = thumbKey
}

// readUpload parses the multipart form and returns the photo bytes, its
// content type, the original filename and the optional hint field.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, string, string, error) {
	const op = "handler.read_upload"

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", "", "", domain.Errorf(domain.ETOOLARGE, op, "Image too large; the limit is 20MB")
		}
		return nil, "", "", "", domain.Invalid(op, "Expected a multipart form with an \"image\" field")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", "", "", domain.Invalid(op, "Missing \"image\" field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "", "", domain.Invalid(op, "Could not read uploaded image")
	}

	contentType := storage.DetectContentType(data, header.Filename)
	if !storage.IsAllowedImageType(contentType) {
		return nil, "", "", "", domain.Invalid(op, "Unsupported image type; use JPEG, PNG, GIF or WebP")
	}

	return data, contentType, header.Filename, r.FormValue("hint"), nil
}

// mapProviderError converts vision provider failures into domain errors.
// Upstream failures are 502s: the caller's request failed through no fault
// of their own and nothing was consumed.
func mapProviderError(op string, err error) error {
	switch {
	case errors.Is(err, ai.ErrInvalidImage):
		return domain.Invalid(op, "The image could not be analyzed; try a clearer photo")
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Upstream(err, op, "Analysis timed out; please try again")
	default:
		return domain.Upstream(err, op, "Analysis is temporarily unavailable; please try again")
	}
}
