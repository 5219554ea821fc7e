package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lastline-erp/lastline-backend/api/controllers"
	"github.com/lastline-erp/lastline-backend/api/middleware"
	"github.com/lastline-erp/lastline-backend/internal/productioncards"
	"github.com/lastline-erp/lastline-backend/internal/projects"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	"github.com/lastline-erp/lastline-backend/pkg/config"
	"github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/metrics"
	"github.com/lastline-erp/lastline-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	idempotencyStore redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	projectService projects.Service,
	cardService productioncards.Service,
	requisitionService requisitions.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["database"] = dbP
	}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	idempotent := middleware.Idempotency(idempotencyStore, cfg.Production.IdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Operator(logg))

		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Get("/", controllers.ProjectGet(projectService, logg))
			r.Get("/capacity", controllers.ProjectCapacity(projectService, logg))
			r.Put("/order-quantity", controllers.ProjectOrderQuantityUpdate(projectService, logg))
			r.Get("/cost-lines", controllers.ProjectCostLines(projectService, logg))
			r.Put("/cost-lines/{category}", controllers.ProjectCostLinesImport(projectService, logg))
			r.Get("/cards", controllers.ProjectCards(cardService, logg))
			r.With(idempotent).Post("/cards", controllers.ProjectCardCreate(cardService, logg))
			r.Delete("/cards", controllers.ProjectCardsDelete(cardService, logg))
		})

		r.Route("/cards/{cardId}", func(r chi.Router) {
			r.Put("/", controllers.CardUpdate(cardService, logg))
			r.Delete("/", controllers.CardDelete(cardService, logg))
			r.Get("/projection", controllers.CardProjection(cardService, logg))
			r.Get("/requisition", controllers.CardRequisitionGet(requisitionService, logg))
			r.With(idempotent).Put("/requisition", controllers.CardRequisitionUpsert(requisitionService, logg))
		})

		r.Route("/requisitions", func(r chi.Router) {
			r.Get("/", controllers.RequisitionList(requisitionService, logg))
			r.Route("/{requisitionId}", func(r chi.Router) {
				r.Get("/", controllers.RequisitionGet(requisitionService, logg))
				r.With(idempotent).Put("/issuance", controllers.RequisitionIssuance(requisitionService, logg))
				r.With(idempotent).Post("/send-to-store", controllers.RequisitionSendToStore(requisitionService, logg))
				r.With(idempotent).Post("/cancel", controllers.RequisitionCancel(requisitionService, logg))
				r.With(idempotent).Post("/reactivate", controllers.RequisitionReactivate(requisitionService, logg))
			})
		})
	})

	return r
}
