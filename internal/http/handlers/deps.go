package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"ecocycle/internal/cache"
	"ecocycle/internal/config"
	"ecocycle/internal/domain"
	"ecocycle/internal/events"
	"ecocycle/internal/repos"
	"ecocycle/internal/services"
)

type Deps struct {
	Users *repos.UserRepo

	PickupHandler   *PickupHandler
	ListingHandler  *ListingHandler
	OrderHandler    *OrderHandler
	PointsHandler   *PointsHandler
	CategoryHandler *CategoryHandler
	AccountHandler  *AccountHandler
	AdminHandler    *AdminHandler
}

func NewDeps(db *sqlx.DB, c cache.Listings, pub events.Publisher, logger *zap.Logger) *Deps {
	if pub == nil {
		pub = events.Nop{}
	}
	store := repos.NewStore(db)

	catalogSvc := services.NewCatalogService(store.Categories)

	return &Deps{
		Users:           store.Users,
		PickupHandler:   &PickupHandler{Pickups: services.NewPickupService(store, pub, logger)},
		ListingHandler:  &ListingHandler{Listings: services.NewListingService(store, c)},
		OrderHandler:    &OrderHandler{Orders: services.NewOrderService(store, c, pub, logger)},
		PointsHandler:   &PointsHandler{Points: services.NewPointsService(store, pub, logger)},
		CategoryHandler: &CategoryHandler{Catalog: catalogSvc},
		AccountHandler:  &AccountHandler{Accounts: services.NewAccountService(store.Users)},
		AdminHandler:    &AdminHandler{Catalog: catalogSvc},
	}
}

// Register mounts the JSON API on r. Reads of categories and listings are
// public; everything else needs a bearer token.
func (d *Deps) Register(r fiber.Router, cfg config.Config) {
	auth := RequireUser([]byte(cfg.JWTSecret), d.Users)
	collector := RequireRole(domain.RoleCollector)

	r.Get("/categories", d.CategoryHandler.List)
	r.Get("/rewards", d.PointsHandler.Rewards)
	r.Get("/listings", d.ListingHandler.List)
	r.Get("/listings/:id", d.ListingHandler.Get)

	r.Get("/me", auth, d.AccountHandler.Me)
	r.Put("/me/location", auth, d.AccountHandler.SetLocation)

	r.Get("/pickups/available", auth, collector, d.PickupHandler.Available)
	r.Get("/pickups", auth, d.PickupHandler.List)
	r.Post("/pickups", auth, d.PickupHandler.Create)
	r.Get("/pickups/:id", auth, d.PickupHandler.Get)
	r.Post("/pickups/:id/accept", auth, collector, d.PickupHandler.Accept)
	r.Patch("/pickups/:id/status", auth, collector, d.PickupHandler.Advance)
	r.Post("/pickups/:id/confirm-weight", auth, collector, d.PickupHandler.ConfirmWeight)
	r.Post("/pickups/:id/cancel", auth, d.PickupHandler.Cancel)

	r.Post("/listings", auth, d.ListingHandler.Create)
	r.Patch("/listings/:id", auth, d.ListingHandler.Update)
	r.Delete("/listings/:id", auth, d.ListingHandler.Delete)

	r.Get("/orders", auth, d.OrderHandler.List)
	r.Post("/orders", auth, d.OrderHandler.Place)
	r.Get("/orders/:id", auth, d.OrderHandler.Get)
	r.Post("/orders/:id/confirm", auth, d.OrderHandler.Confirm())
	r.Post("/orders/:id/ship", auth, d.OrderHandler.Ship())
	r.Post("/orders/:id/complete", auth, d.OrderHandler.Complete())
	r.Post("/orders/:id/cancel", auth, d.OrderHandler.Cancel())
	r.Post("/orders/:id/review", auth, d.OrderHandler.Review)

	r.Get("/points/balance", auth, d.PointsHandler.Balance)
	r.Get("/points/history", auth, d.PointsHandler.History)
	r.Post("/rewards/:id/redeem", auth, d.PointsHandler.Redeem)

	admin := r.Group("/admin", auth, RequireRole(domain.RoleAdmin))
	admin.Get("/categories", d.AdminHandler.Categories)
	admin.Patch("/categories/:id", d.AdminHandler.UpdateCategory)
}
