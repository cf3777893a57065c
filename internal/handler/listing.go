package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/service"
)

// ListingHandler handles saved listing CRUD. All routes require an
// authenticated user; ownership is enforced in the service and repository.
type ListingHandler struct {
	listings service.ListingService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(listings service.ListingService, validate *validator.Validate, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, validate: validate, logger: logger}
}

// listingRequest is the write payload for creating and updating listings.
type listingRequest struct {
	Title         string `json:"title" validate:"required,max=120"`
	Description   string `json:"description" validate:"required,max=4000"`
	Condition     string `json:"condition" validate:"required,oneof=new like_new good fair for_parts"`
	PriceCents    *int   `json:"price_cents" validate:"omitempty,gte=0"`
	Location      string `json:"location" validate:"omitempty,max=120"`
	ImagePath     string `json:"image_path" validate:"omitempty,max=255"`
	ThumbnailPath string `json:"thumbnail_path" validate:"omitempty,max=255"`
}

// Create handles POST /api/listings.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.listing_create"

	user := auth.GetUser(r.Context())

	req, ok := h.decodeAndValidate(w, r, op)
	if !ok {
		return
	}

	l := &domain.Listing{
		Title:         req.Title,
		Description:   req.Description,
		Condition:     req.Condition,
		PriceCents:    req.PriceCents,
		Location:      req.Location,
		ImagePath:     req.ImagePath,
		ThumbnailPath: req.ThumbnailPath,
	}
	if err := h.listings.Save(r.Context(), user, l); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	RespondJSON(w, h.logger, http.StatusCreated, l)
}

// List handles GET /api/listings.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	listings, err := h.listings.List(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}

	RespondJSON(w, h.logger, http.StatusOK, map[string]any{"listings": listings})
}

// Get handles GET /api/listings/{id}.
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	l, err := h.listings.Get(r.Context(), user, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	RespondJSON(w, h.logger, http.StatusOK, l)
}

// Update handles PUT /api/listings/{id}.
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handler.listing_update"

	user := auth.GetUser(r.Context())

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeAndValidate(w, r, op)
	if !ok {
		return
	}

	l := &domain.Listing{
		ID:            id,
		Title:         req.Title,
		Description:   req.Description,
		Condition:     req.Condition,
		PriceCents:    req.PriceCents,
		Location:      req.Location,
		ImagePath:     req.ImagePath,
		ThumbnailPath: req.ThumbnailPath,
	}
	if err := h.listings.Update(r.Context(), user, l); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	RespondJSON(w, h.logger, http.StatusOK, l)
}

// Delete handles DELETE /api/listings/{id}. Deleting does not refund the
// save slot; slots measure lifetime saves, not current storage.
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.listings.Delete(r.Context(), user, id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ListingHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, op string) (*listingRequest, bool) {
	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid JSON payload"))
		return nil, false
	}

	if err := h.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = "failed " + fe.Tag() + " validation"
			}
			ValidationErrorResponse(w, r, h.logger, op, fields)
			return nil, false
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Validation failed"))
		return nil, false
	}
	return &req, true
}

func (h *ListingHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return uuid.Nil, false
	}
	return id, true
}
