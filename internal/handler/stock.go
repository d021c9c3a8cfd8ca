package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/store"
)

// StockHandler serves target stock levels and the replenishment views
// derived from them.
type StockHandler struct {
	stockLevels *store.StockLevelStore
	foodItems   *store.FoodItemStore
	logger      *slog.Logger
}

func NewStockHandler(stockLevels *store.StockLevelStore, foodItems *store.FoodItemStore, logger *slog.Logger) *StockHandler {
	return &StockHandler{stockLevels: stockLevels, foodItems: foodItems, logger: logger}
}

func (h *StockHandler) requireItem(r *http.Request, foodItemID int64) error {
	item, err := h.foodItems.GetByID(foodItemID)
	if err != nil {
		return err
	}
	p, _ := auth.FromContext(r.Context())
	if item == nil || item.HouseholdID != p.HouseholdID {
		return apperr.New(apperr.NotFound, "food item not found")
	}
	return nil
}

func (h *StockHandler) SetTarget(w http.ResponseWriter, r *http.Request) {
	foodItemID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.requireItem(r, foodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		TargetQty float64 `json:"target_qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	level, err := h.stockLevels.SetTarget(foodItemID, req.TargetQty)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (h *StockHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	foodItemID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.requireItem(r, foodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	level, err := h.stockLevels.Get(foodItemID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if level == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "no target set for food item"))
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (h *StockHandler) BelowTarget(w http.ResponseWriter, r *http.Request) {
	h.replenishment(w, r, true)
}

func (h *StockHandler) AtOrAboveTarget(w http.ResponseWriter, r *http.Request) {
	h.replenishment(w, r, false)
}

func (h *StockHandler) replenishment(w http.ResponseWriter, r *http.Request, below bool) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var items []model.ReplenishmentItem
	if below {
		items, err = h.stockLevels.ItemsBelowTarget(householdID)
	} else {
		items, err = h.stockLevels.ItemsAtOrAboveTarget(householdID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.ReplenishmentItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
