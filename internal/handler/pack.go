package handler

import (
	"log/slog"
	"net/http"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/repository"
)

// PackHandler exposes the purchasable credit pack catalog.
type PackHandler struct {
	packs  repository.PackRepository
	logger *slog.Logger
}

// NewPackHandler creates a new PackHandler.
func NewPackHandler(packs repository.PackRepository, logger *slog.Logger) *PackHandler {
	return &PackHandler{packs: packs, logger: logger}
}

// List handles GET /api/packs. Only active offers are returned.
func (h *PackHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handler.pack_list"

	packs, err := h.packs.ListActive(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to load packs"))
		return
	}
	if packs == nil {
		packs = []domain.Pack{}
	}

	RespondJSON(w, h.logger, http.StatusOK, map[string]any{"packs": packs})
}
