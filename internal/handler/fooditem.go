package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/notify"
	"github.com/dorholt/larder/internal/store"
)

type FoodItemHandler struct {
	foodItems *store.FoodItemStore
	hub       *notify.Hub
	logger    *slog.Logger
}

func NewFoodItemHandler(foodItems *store.FoodItemStore, hub *notify.Hub, logger *slog.Logger) *FoodItemHandler {
	return &FoodItemHandler{foodItems: foodItems, hub: hub, logger: logger}
}

func (h *FoodItemHandler) require(r *http.Request, id int64) (*model.FoodItem, error) {
	item, err := h.foodItems.GetByID(id)
	if err != nil {
		return nil, err
	}
	p, _ := auth.FromContext(r.Context())
	if item == nil || item.HouseholdID != p.HouseholdID {
		return nil, apperr.New(apperr.NotFound, "food item not found")
	}
	return item, nil
}

func (h *FoodItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		Name       string `json:"name"`
		Type       string `json:"type"`
		Category   string `json:"category"`
		BaseUnitID int64  `json:"base_unit_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.BaseUnitID == 0 {
		writeError(w, h.logger, apperr.New(apperr.Validation, "name and base_unit_id required"))
		return
	}
	if p.HouseholdID == 0 {
		writeError(w, h.logger, apperr.New(apperr.Forbidden, "not a member of any household"))
		return
	}

	item, err := h.foodItems.Create(p.HouseholdID, req.Name, req.Type, req.Category, req.BaseUnitID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "food_item", Action: "created", ID: item.ID})
	writeJSON(w, http.StatusCreated, item)
}

func (h *FoodItemHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.foodItems.ListByHousehold(householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.FoodItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"food_items": items})
}

func (h *FoodItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	item, err := h.require(r, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Patch applies a sparse update. Archiving goes through here too; food
// items are never hard-deleted because ledger rows reference them.
func (h *FoodItemHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.require(r, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var patch model.FoodItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	item, err := h.foodItems.Patch(id, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "food_item", Action: "updated", ID: id})
	writeJSON(w, http.StatusOK, item)
}

func (h *FoodItemHandler) AddPackage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.require(r, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		Label          string  `json:"label"`
		BaseUnitAmount float64 `json:"base_unit_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "label required"))
		return
	}

	pkg, err := h.foodItems.AddPackage(id, req.Label, req.BaseUnitAmount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

func (h *FoodItemHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.require(r, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	pkgs, err := h.foodItems.ListPackages(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if pkgs == nil {
		pkgs = []model.Package{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": pkgs})
}

func (h *FoodItemHandler) AddPriceLog(w http.ResponseWriter, r *http.Request) {
	packageID, err := parseIDParam(r, "packageID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	pkg, err := h.foodItems.GetPackage(packageID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if pkg == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "package not found"))
		return
	}
	if _, err := h.require(r, pkg.FoodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		TotalPrice float64 `json:"total_price"`
		Store      string  `json:"store"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	if req.TotalPrice < 0 {
		writeError(w, h.logger, apperr.New(apperr.Validation, "total_price cannot be negative"))
		return
	}

	entry, err := h.foodItems.AddPriceLog(packageID, req.TotalPrice, req.Store)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *FoodItemHandler) LatestPrice(w http.ResponseWriter, r *http.Request) {
	packageID, err := parseIDParam(r, "packageID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	pkg, err := h.foodItems.GetPackage(packageID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if pkg == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "package not found"))
		return
	}
	if _, err := h.require(r, pkg.FoodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	price, err := h.foodItems.LatestPrice(packageID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if price == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "no price logged for package"))
		return
	}
	writeJSON(w, http.StatusOK, price)
}
