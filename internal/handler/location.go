package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/store"
)

type LocationHandler struct {
	locations *store.LocationStore
	logger    *slog.Logger
}

func NewLocationHandler(locations *store.LocationStore, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{locations: locations, logger: logger}
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if p.HouseholdID == 0 {
		writeError(w, h.logger, apperr.New(apperr.Forbidden, "not a member of any household"))
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "name required"))
		return
	}

	loc, err := h.locations.Create(p.HouseholdID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	locs, err := h.locations.ListByHousehold(householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if locs == nil {
		locs = []model.Location{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs})
}
