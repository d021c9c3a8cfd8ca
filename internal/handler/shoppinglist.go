package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/notify"
	"github.com/dorholt/larder/internal/store"
)

type ShoppingListHandler struct {
	lists     *store.ShoppingListStore
	foodItems *store.FoodItemStore
	hub       *notify.Hub
	logger    *slog.Logger
}

func NewShoppingListHandler(lists *store.ShoppingListStore, foodItems *store.FoodItemStore, hub *notify.Hub, logger *slog.Logger) *ShoppingListHandler {
	return &ShoppingListHandler{lists: lists, foodItems: foodItems, hub: hub, logger: logger}
}

// requireList loads a list and checks household scope. Lists outside the
// caller's household read as not found.
func (h *ShoppingListHandler) requireList(r *http.Request, listID int64) (*model.ShoppingList, error) {
	list, err := h.lists.GetByID(listID)
	if err != nil {
		return nil, err
	}
	p, _ := auth.FromContext(r.Context())
	if list == nil || list.HouseholdID != p.HouseholdID {
		return nil, apperr.New(apperr.NotFound, "shopping list not found")
	}
	return list, nil
}

func (h *ShoppingListHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if p.HouseholdID == 0 {
		writeError(w, h.logger, apperr.New(apperr.Forbidden, "not a member of any household"))
		return
	}

	list, err := h.lists.Create(p.HouseholdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "shopping_list", Action: "created", ID: list.ID})
	writeJSON(w, http.StatusCreated, list)
}

func (h *ShoppingListHandler) Active(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, err := h.lists.GetActive(householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "no active shopping list"))
		return
	}

	items, err := h.lists.ListItems(list.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.ShoppingListItemView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": list, "items": items})
}

func (h *ShoppingListHandler) Get(w http.ResponseWriter, r *http.Request) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list, err := h.requireList(r, listID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.lists.ListItems(list.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.ShoppingListItemView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": list, "items": items})
}

func (h *ShoppingListHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
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
		limit = 20
	}

	lists, total, err := h.lists.ListCompleted(householdID, page, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if lists == nil {
		lists = []model.ShoppingList{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lists": lists,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *ShoppingListHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list, err := h.requireList(r, listID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		Items []struct {
			FoodItemID int64   `json:"food_item_id"`
			LocationID *int64  `json:"location_id"`
			PackageID  *int64  `json:"package_id"`
			NeededQty  float64 `json:"needed_qty"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	items := make([]store.NewListItem, 0, len(req.Items))
	for _, it := range req.Items {
		// Lines may only reference food items in the list's household.
		item, err := h.foodItems.GetByID(it.FoodItemID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if item == nil || item.HouseholdID != list.HouseholdID {
			writeError(w, h.logger, apperr.New(apperr.NotFound, "food item not found"))
			return
		}
		items = append(items, store.NewListItem{
			FoodItemID: it.FoodItemID,
			LocationID: it.LocationID,
			PackageID:  it.PackageID,
			NeededQty:  it.NeededQty,
		})
	}

	if err := h.lists.AddItems(listID, items); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "shopping_list", Action: "items_added", ID: listID})
	writeJSON(w, http.StatusCreated, map[string]string{"message": "items added"})
}

func (h *ShoppingListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	itemID, err := parseIDParam(r, "itemID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.requireList(r, listID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		Status       *string  `json:"status"`
		PurchasedQty *float64 `json:"purchased_qty"`
		NeededQty    *float64 `json:"needed_qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	item, err := h.lists.UpdateItem(listID, itemID, store.ListItemPatch{
		Status:       req.Status,
		PurchasedQty: req.PurchasedQty,
		NeededQty:    req.NeededQty,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "shopping_list", Action: "item_updated", ID: listID})
	writeJSON(w, http.StatusOK, item)
}

func (h *ShoppingListHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	itemID, err := parseIDParam(r, "itemID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.requireList(r, listID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.lists.RemoveItem(listID, itemID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "shopping_list", Action: "item_removed", ID: listID})
	writeJSON(w, http.StatusOK, map[string]string{"message": "item removed"})
}

// CompleteActive finishes the household's active list, posts purchased
// lines to the inventory ledger, and opens the successor list, all in one
// store transaction.
func (h *ShoppingListHandler) CompleteActive(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	next, err := h.lists.CompleteActiveAndRotate(householdID, p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(notify.Event{Entity: "shopping_list", Action: "completed", ID: next.ID})
	h.hub.Broadcast(notify.Event{Entity: "inventory", Action: "recorded"})
	writeJSON(w, http.StatusCreated, map[string]any{"active_list": next})
}

// Export renders a list as plain text for sharing, pending lines only,
// one line per item.
func (h *ShoppingListHandler) Export(w http.ResponseWriter, r *http.Request) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.requireList(r, listID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.lists.ListItems(listID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var b strings.Builder
	b.WriteString("Shopping List\n\n")
	for _, it := range items {
		if it.Status != model.ListItemPending {
			continue
		}
		line := fmt.Sprintf("- %s x%g", it.FoodItemName, it.NeededQty)
		if it.PackageLabel != nil {
			line += fmt.Sprintf(" (%s)", *it.PackageLabel)
		}
		if it.LocationName != nil {
			line += fmt.Sprintf(" [%s]", *it.LocationName)
		}
		b.WriteString(line + "\n")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}
