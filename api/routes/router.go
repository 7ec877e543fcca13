package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockroom-backend/api/controllers"
	"github.com/angelmondragon/stockroom-backend/api/middleware"
	"github.com/angelmondragon/stockroom-backend/internal/auth"
	"github.com/angelmondragon/stockroom-backend/internal/dashboard"
	"github.com/angelmondragon/stockroom-backend/internal/media"
	products "github.com/angelmondragon/stockroom-backend/internal/products"
	"github.com/angelmondragon/stockroom-backend/internal/stock"
	"github.com/angelmondragon/stockroom-backend/internal/withdrawals"
	"github.com/angelmondragon/stockroom-backend/pkg/auth/session"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/metrics"
	"github.com/angelmondragon/stockroom-backend/pkg/redis"
)

// Dependencies carries everything the router hands to controllers. Nil
// stores disable the middleware that needs them.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Readiness   []controllers.ReadinessCheck

	Sessions    session.Lookup
	RateLimits  middleware.RateLimitStore
	Idempotency redis.IdempotencyStore

	Auth        auth.Service
	Register    auth.RegisterService
	Products    products.Service
	Stock       stock.Service
	Withdrawals withdrawals.Service
	Media       media.Service
	Dashboard   dashboard.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	requireAdmin := []func(http.Handler) http.Handler{
		middleware.Auth(cfg.JWT, deps.Sessions, logg),
		middleware.RequireRole(enums.RoleAdmin),
	}
	uploadLimit := cfg.Media.MaxUploadBytes()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(deps.Products, logg))
		r.Get("/products/{productId}", controllers.GetProduct(deps.Products, logg))
		r.Get("/products/{productId}/availability", controllers.ProductAvailability(deps.Stock, logg))

		r.Post("/withdrawals", controllers.CreateWithdrawal(deps.Stock, logg))
		r.With(middleware.Idempotency(deps.Idempotency, middleware.CheckoutIdempotencyTTL, logg)).
			Post("/withdrawals/checkout", controllers.Checkout(deps.Stock, logg))

		r.Post("/media/withdrawal-photos", controllers.UploadWithdrawalPhoto(deps.Media, uploadLimit, logg))
		r.Post("/media/signatures", controllers.UploadSignature(deps.Media, uploadLimit, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimits, logg)).
				Post("/login", controllers.AdminLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AdminRefresh(deps.Auth, logg))
			r.With(requireAdmin...).Post("/logout", controllers.AdminLogout(deps.Auth, logg))
			if !cfg.App.IsProd() {
				r.Post("/register", controllers.AdminRegister(deps.Register, logg))
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin...)

			r.Post("/products", controllers.CreateProduct(deps.Products, logg))
			r.Get("/products/low-stock", controllers.LowStockProducts(deps.Products, cfg.Stock.LowStockThreshold, logg))
			r.Patch("/products/{productId}", controllers.UpdateProduct(deps.Products, logg))
			r.Delete("/products/{productId}", controllers.DeleteProduct(deps.Products, logg))
			r.Post("/products/{productId}/images", controllers.AddProductImage(deps.Products, uploadLimit, logg))
			r.Delete("/products/{productId}/images/{index}", controllers.RemoveProductImage(deps.Products, logg))
			r.Put("/products/{productId}/cover", controllers.SetProductCover(deps.Products, logg))
			r.Post("/products/{productId}/stock/add", controllers.AddStock(deps.Stock, logg))
			r.Post("/products/{productId}/stock/remove", controllers.RemoveStock(deps.Stock, logg))
			r.Post("/materials", controllers.AddMaterial(deps.Products, logg))

			r.Get("/withdrawals", controllers.ListWithdrawals(deps.Withdrawals, logg))
			r.Get("/withdrawals/export", controllers.ExportWithdrawals(deps.Withdrawals, logg))
			r.Get("/withdrawals/{withdrawalId}", controllers.GetWithdrawal(deps.Withdrawals, logg))

			r.Get("/dashboard", controllers.GetDashboard(deps.Dashboard, dashboard.Options{
				LowStockThreshold: cfg.Stock.LowStockThreshold,
				RecentLimit:       cfg.Stock.RecentLimit,
			}, logg))
			r.Get("/dashboard/categories", controllers.GetCategoryInsights(deps.Dashboard, logg))
			r.Get("/dashboard/movements", controllers.GetMovementStats(deps.Dashboard, movementLocation(deps.Withdrawals), logg))
		})
	})

	return r
}

func movementLocation(svc withdrawals.Service) *time.Location {
	if svc == nil {
		return time.UTC
	}
	return svc.Location()
}
