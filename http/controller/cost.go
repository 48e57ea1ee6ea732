package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
)

// ListVMCosts returns the append-only billing ledger of a VM, oldest entry
// first. Each resize appends a new row; the history is never rewritten.
func (ctrl *Controller) ListVMCosts(c *gin.Context) {
	vm := ctrl.loadOwnedVM(c)
	if vm == nil {
		return
	}

	costs, err := ctrl.Repository.VMCostRepo.ListByVMInstance(vm.ID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(c.Request.Context(), err, "[Cost] Failed to list costs for VM %s: %v", vm.ID, err)
		utils.JSON500(c, "Failed to list VM costs")
		return
	}
	utils.JSON200(c, costs)
}
