package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
	"gorm.io/gorm"
)

// ListTemplates returns the catalog of VM templates. Templates are seeded by
// operators and read-only through the API.
func (ctrl *Controller) ListTemplates(c *gin.Context) {
	templates, err := ctrl.Repository.TemplateRepo.List()
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(c.Request.Context(), err, "[Template] Failed to list templates: %v", err)
		utils.JSON500(c, "Failed to list templates")
		return
	}
	utils.JSON200(c, templates)
}

func (ctrl *Controller) GetTemplate(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid template id")
		return
	}

	template, err := ctrl.Repository.TemplateRepo.GetByID(c.Request.Context(), templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Template not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(c.Request.Context(), err, "[Template] Failed to get template %s: %v", templateID, err)
		utils.JSON500(c, "Failed to get template")
		return
	}
	utils.JSON200(c, template)
}
