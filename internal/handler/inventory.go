package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/notify"
	"github.com/dorholt/larder/internal/store"
	"github.com/dorholt/larder/internal/units"
)

type InventoryHandler struct {
	ledger    *store.LedgerStore
	foodItems *store.FoodItemStore
	hub       *notify.Hub
	logger    *slog.Logger
}

func NewInventoryHandler(ledger *store.LedgerStore, foodItems *store.FoodItemStore, hub *notify.Hub, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, foodItems: foodItems, hub: hub, logger: logger}
}

// parseDate accepts RFC 3339 or a bare YYYY-MM-DD date.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Validation, "invalid date %q", s)
	}
	return t, nil
}

// requireItemAccess loads the food item and checks it belongs to the
// caller's household. Items outside it read as not found.
func (h *InventoryHandler) requireItemAccess(r *http.Request, foodItemID int64) (*model.FoodItem, error) {
	item, err := h.foodItems.GetByID(foodItemID)
	if err != nil {
		return nil, err
	}
	p, _ := auth.FromContext(r.Context())
	if item == nil || item.HouseholdID != p.HouseholdID {
		return nil, apperr.New(apperr.NotFound, "food item not found")
	}
	return item, nil
}

func (h *InventoryHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		FoodItemID int64   `json:"food_item_id"`
		LocationID int64   `json:"location_id"`
		TxType     string  `json:"tx_type"`
		Quantity   float64 `json:"quantity"`
		ExpiresAt  string  `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	if req.TxType == model.TxTransferOut || req.TxType == model.TxTransferIn {
		writeError(w, h.logger, apperr.New(apperr.Validation, "transfers must use the transfer endpoint"))
		return
	}

	if _, err := h.requireItemAccess(r, req.FoodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	params := store.RecordParams{
		FoodItemID: req.FoodItemID,
		LocationID: req.LocationID,
		UserID:     p.UserID,
		TxType:     req.TxType,
		Quantity:   req.Quantity,
	}
	if req.ExpiresAt != "" {
		t, err := parseDate(req.ExpiresAt)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		params.ExpiresAt = &t
	}

	entry, err := h.ledger.Record(params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "inventory", Action: "recorded", ID: entry.ID})
	writeJSON(w, http.StatusCreated, entry)
}

func (h *InventoryHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		FoodItemID     int64   `json:"food_item_id"`
		FromLocationID int64   `json:"from_location_id"`
		ToLocationID   int64   `json:"to_location_id"`
		Quantity       float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	if _, err := h.requireItemAccess(r, req.FoodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	transferID, err := h.ledger.Transfer(req.FoodItemID, req.FromLocationID, req.ToLocationID, p.UserID, req.Quantity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "inventory", Action: "transferred", ID: req.FoodItemID})
	writeJSON(w, http.StatusCreated, map[string]string{"transfer_id": transferID})
}

func (h *InventoryHandler) StockTotals(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	totals, err := h.ledger.StockTotals(householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Items with a preferred package also get their quantity expressed as
	// whole packages plus a base-unit remainder.
	type stockEntry struct {
		model.StockTotal
		Breakdown *units.Breakdown `json:"breakdown,omitempty"`
	}
	entries := make([]stockEntry, 0, len(totals))
	for _, tot := range totals {
		e := stockEntry{StockTotal: tot}
		if tot.PackageAmount != nil {
			b := units.SplitPackages(tot.Quantity, *tot.PackageAmount)
			e.Breakdown = &b
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": entries})
}

func (h *InventoryHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	entries, total, err := h.ledger.ListByHousehold(householdID, page, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.TransactionView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"total":        total,
		"page":         page,
		"limit":        limit,
	})
}

func (h *InventoryHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 {
		days = 7
	}

	items, err := h.ledger.Expiring(householdID, time.Duration(days)*24*time.Hour)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.ExpiringItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"expiring": items, "days": days})
}

// CorrectExpiration rewrites the soonest upcoming expiration date for a
// food item, touching only the ledger rows that carried the old date.
func (h *InventoryHandler) CorrectExpiration(w http.ResponseWriter, r *http.Request) {
	foodItemID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.requireItemAccess(r, foodItemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExpiresAt == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "expires_at required"))
		return
	}
	newDate, err := parseDate(req.ExpiresAt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.ledger.CorrectLatestExpiration(foodItemID, newDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "inventory", Action: "expiration_corrected", ID: foodItemID})
	writeJSON(w, http.StatusOK, map[string]any{"updated_rows": updated})
}
