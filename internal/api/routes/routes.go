// server/internal/api/routes/routes.go
package routes

import (
	"net/http"

	"blood-bank-api-server/config"
	"blood-bank-api-server/internal/api/handlers"
	"blood-bank-api-server/internal/api/middleware"
	"blood-bank-api-server/internal/auth"
	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies are the components the router wires into handlers.
type Dependencies struct {
	Cfg       config.Config
	Log       *logger.Logger
	DB        *mongo.Database
	Ledger    *ledger.Ledger
	Tokens    *auth.Manager
	Documents handlers.BatchDocumentStore
	Uploader  handlers.DocumentUploader
}

// SetupRouter builds the gin engine with every route of the API.
func SetupRouter(deps Dependencies) *gin.Engine {
	handlers.RegisterValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.CORS(deps.Cfg.CORS.AllowedOrigins))

	inventoryHandler := &handlers.InventoryHandler{Ledger: deps.Ledger, Log: deps.Log}
	batchHandler := &handlers.BatchHandler{Ledger: deps.Ledger, Documents: deps.Documents, Uploader: deps.Uploader, Log: deps.Log}
	userHandler := &handlers.UserHandler{DB: deps.DB, Tokens: deps.Tokens, Log: deps.Log}
	hospitalHandler := &handlers.HospitalHandler{DB: deps.DB, Log: deps.Log}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := router.Group("/api/v1")
	{
		// === Public routes ===
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/login", userHandler.Login)
			authRoutes.POST("/refresh", userHandler.Refresh)
		}

		// === Superadmin routes ===
		admin := apiV1.Group("/admin")
		admin.Use(middleware.Authenticate(deps.Tokens))
		admin.Use(middleware.Authorize(models.RoleSuperAdmin))
		{
			admin.POST("/users", userHandler.CreateUser)

			hospitals := admin.Group("/hospitals")
			{
				hospitals.POST("", hospitalHandler.CreateHospital)
				hospitals.GET("", hospitalHandler.GetAllHospitals)
				hospitals.GET("/:id", hospitalHandler.GetHospitalByID)
				hospitals.PUT("/:id", hospitalHandler.UpdateHospital)
				hospitals.DELETE("/:id", hospitalHandler.DeleteHospital)
			}
		}

		// === Hospital-scoped stock routes ===
		inventory := apiV1.Group("/inventory")
		inventory.Use(middleware.Authenticate(deps.Tokens))
		inventory.Use(middleware.Authorize(models.RoleAdmin, models.RoleStaff))
		inventory.Use(middleware.RequireHospital())
		{
			inventory.GET("", inventoryHandler.GetInventory)
			inventory.PUT("/update", inventoryHandler.UpdateStock)
			inventory.GET("/expiring", inventoryHandler.GetExpiring)

			inventory.GET("/batches/:batchId", batchHandler.GetBatch)
			inventory.POST("/batches/:batchId/documents", batchHandler.UploadDocument)
		}
	}

	return router
}
