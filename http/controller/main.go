package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
	"github.com/tnqbao/gau-vm-orchestrator/repository"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
)

type Controller struct {
	Config     *config.Config
	Infra      *infra.Infra
	Repository *repository.Repository
}

func NewController(config *config.Config, infra *infra.Infra, repo *repository.Repository) *Controller {
	if repo == nil {
		panic("Failed to initialize Repository")
	}
	return &Controller{
		Config:     config,
		Infra:      infra,
		Repository: repo,
	}
}

func (ctrl *Controller) HealthCheck(c *gin.Context) {
	utils.JSON200(c, gin.H{
		"apiVersions":   "v1",
		"remoteAddress": c.ClientIP(),
	})
}
