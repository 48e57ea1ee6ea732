package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller"
	middlewares "github.com/tnqbao/gau-vm-orchestrator/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}

	r.Use(middles.CORSMiddleware)
	r.GET("/", ctrl.HealthCheck)

	apiRoutes := r.Group("/api/v1")
	{
		apiRoutes.Use(middles.AuthMiddleware)

		vmRoutes := apiRoutes.Group("/vms")
		{
			vmRoutes.GET("/", ctrl.ListVMs)
			vmRoutes.POST("/", ctrl.CreateVM)
			vmRoutes.GET("/:id", ctrl.GetVM)
			vmRoutes.PATCH("/:id", ctrl.PatchVM)
			vmRoutes.DELETE("/:id", ctrl.DeleteVM)

			vmRoutes.GET("/:id/vmi", ctrl.GetVMI)
			vmRoutes.GET("/:id/costs", ctrl.ListVMCosts)
			vmRoutes.GET("/:id/console", ctrl.ConsoleProxy)

			vmRoutes.POST("/:id/snapshots", ctrl.CreateSnapshot)
			vmRoutes.GET("/:id/snapshots", ctrl.ListSnapshots)
			vmRoutes.GET("/:id/snapshots/:snap_id", ctrl.GetSnapshot)
			vmRoutes.DELETE("/:id/snapshots/:snap_id", ctrl.DeleteSnapshot)
		}

		templateRoutes := apiRoutes.Group("/templates")
		{
			templateRoutes.GET("/", ctrl.ListTemplates)
			templateRoutes.GET("/:id", ctrl.GetTemplate)
		}
	}
	return r
}
