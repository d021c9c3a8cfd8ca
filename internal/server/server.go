package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/handler"
	"github.com/dorholt/larder/internal/middleware"
	"github.com/dorholt/larder/internal/notify"
	"github.com/dorholt/larder/internal/store"
)

type Server struct {
	db          *sql.DB
	hub         *notify.Hub
	authH       *handler.AuthHandler
	foodItemH   *handler.FoodItemHandler
	locationH   *handler.LocationHandler
	inventoryH  *handler.InventoryHandler
	stockH      *handler.StockHandler
	listH       *handler.ShoppingListHandler
	userStore   *store.UserStore
	tokens      *auth.Tokens
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, sessionSecret string, logger *slog.Logger) *Server {
	hub := notify.NewHub(logger.With("component", "notify"))
	tokens := auth.NewTokens(sessionSecret)

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	foodItemStore := store.NewFoodItemStore(db)
	locationStore := store.NewLocationStore(db)
	ledgerStore := store.NewLedgerStore(db)
	stockLevelStore := store.NewStockLevelStore(db)
	listStore := store.NewShoppingListStore(db)

	return &Server{
		db:          db,
		hub:         hub,
		authH:       handler.NewAuthHandler(userStore, householdStore, tokens, logger.With("component", "auth")),
		foodItemH:   handler.NewFoodItemHandler(foodItemStore, hub, logger.With("component", "food_item")),
		locationH:   handler.NewLocationHandler(locationStore, logger.With("component", "location")),
		inventoryH:  handler.NewInventoryHandler(ledgerStore, foodItemStore, hub, logger.With("component", "inventory")),
		stockH:      handler.NewStockHandler(stockLevelStore, foodItemStore, logger.With("component", "stock")),
		listH:       handler.NewShoppingListHandler(listStore, foodItemStore, hub, logger.With("component", "shopping_list")),
		userStore:   userStore,
		tokens:      tokens,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session and account
	mux.HandleFunc("GET /api/auth/session", s.authH.Session)
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("PUT /api/auth/profile", s.authH.UpdateProfile)
	mux.HandleFunc("DELETE /api/auth/account/{id}", s.authH.DeleteAccount)

	// Household membership
	mux.HandleFunc("POST /api/households", s.authH.CreateHousehold)
	mux.HandleFunc("POST /api/households/join", s.authH.JoinHousehold)
	mux.HandleFunc("POST /api/households/members/remove", s.authH.RemoveMember)
	mux.HandleFunc("DELETE /api/households/active", s.authH.DissolveHousehold)
	mux.HandleFunc("GET /api/households/{householdID}", s.authH.HouseholdSummary)
	mux.HandleFunc("GET /api/households/{householdID}/members", s.authH.Members)

	// Food items, packages, prices
	mux.HandleFunc("POST /api/food-items", s.foodItemH.Create)
	mux.HandleFunc("GET /api/food-items/{id}", s.foodItemH.Get)
	mux.HandleFunc("PATCH /api/food-items/{id}", s.foodItemH.Patch)
	mux.HandleFunc("GET /api/households/{householdID}/food-items", s.foodItemH.List)
	mux.HandleFunc("POST /api/food-items/{id}/packages", s.foodItemH.AddPackage)
	mux.HandleFunc("GET /api/food-items/{id}/packages", s.foodItemH.ListPackages)
	mux.HandleFunc("POST /api/packages/{packageID}/prices", s.foodItemH.AddPriceLog)
	mux.HandleFunc("GET /api/packages/{packageID}/prices/latest", s.foodItemH.LatestPrice)

	// Locations
	mux.HandleFunc("POST /api/locations", s.locationH.Create)
	mux.HandleFunc("GET /api/households/{householdID}/locations", s.locationH.List)

	// Inventory ledger
	mux.HandleFunc("POST /api/inventory/transactions", s.inventoryH.RecordTransaction)
	mux.HandleFunc("POST /api/inventory/transfer", s.inventoryH.Transfer)
	mux.HandleFunc("GET /api/households/{householdID}/inventory", s.inventoryH.StockTotals)
	mux.HandleFunc("GET /api/households/{householdID}/inventory/transactions", s.inventoryH.ListTransactions)
	mux.HandleFunc("GET /api/households/{householdID}/inventory/expiring", s.inventoryH.Expiring)
	mux.HandleFunc("PUT /api/food-items/{id}/expiration", s.inventoryH.CorrectExpiration)

	// Stock targets and replenishment
	mux.HandleFunc("PUT /api/food-items/{id}/target", s.stockH.SetTarget)
	mux.HandleFunc("GET /api/food-items/{id}/target", s.stockH.GetTarget)
	mux.HandleFunc("GET /api/households/{householdID}/stock/below-target", s.stockH.BelowTarget)
	mux.HandleFunc("GET /api/households/{householdID}/stock/at-target", s.stockH.AtOrAboveTarget)

	// Shopping lists
	mux.HandleFunc("POST /api/shopping-lists", s.listH.Create)
	mux.HandleFunc("GET /api/shopping-lists/{id}", s.listH.Get)
	mux.HandleFunc("GET /api/shopping-lists/{id}/export", s.listH.Export)
	mux.HandleFunc("POST /api/shopping-lists/{id}/items", s.listH.AddItems)
	mux.HandleFunc("PATCH /api/shopping-lists/{id}/items/{itemID}", s.listH.UpdateItem)
	mux.HandleFunc("DELETE /api/shopping-lists/{id}/items/{itemID}", s.listH.RemoveItem)
	mux.HandleFunc("GET /api/households/{householdID}/shopping-lists/active", s.listH.Active)
	mux.HandleFunc("GET /api/households/{householdID}/shopping-lists/completed", s.listH.ListCompleted)
	mux.HandleFunc("POST /api/households/{householdID}/shopping-lists/complete", s.listH.CompleteActive)

	// Live updates
	mux.HandleFunc("GET /ws", notify.Handler(s.hub))
}
