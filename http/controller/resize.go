package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller/dto"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
	"gorm.io/gorm"
)

// PatchVM resizes a VM: the patch is clamped to the template ceiling, merged
// into the live manifest and applied, then the VM is restarted and a new cost
// sample is appended.
func (ctrl *Controller) PatchVM(c *gin.Context) {
	ctx := c.Request.Context()

	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var req dto.PatchVMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSON400(c, "Invalid request payload")
		return
	}

	vm := ctrl.loadVM(c)
	if vm == nil {
		return
	}

	template, err := ctrl.Repository.TemplateRepo.GetByID(ctx, vm.TemplateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Template not found")
			return
		}
		utils.JSON500(c, "Failed to load template")
		return
	}

	cpu, ram, err := ctrl.patchVMWorkflow(ctx, vm, template, &req, userID, isAdmin)
	if err != nil {
		switch {
		case errors.Is(err, errNotAuthorized):
			utils.JSON403(c, "Not authorized to edit this VM")
		case errors.Is(err, infra.ErrNotFound):
			utils.JSON404(c, "VM not found in cluster")
		default:
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Resize of %s failed: %v", vm.Name, err)
			var upstream *infra.UpstreamError
			if errors.As(err, &upstream) {
				utils.JSONStatus(c, upstream.StatusCode, upstream.Body)
			} else {
				utils.JSON502(c, "Cluster API unreachable")
			}
		}
		return
	}

	if err := ctrl.Repository.VMInstanceRepo.UpdateResources(vm.ID, cpu, ram); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to update VM row %s after resize: %v", vm.ID, err)
	}
	vm.CPU = cpu
	vm.RAMGb = ram

	cost := &entity.VMCost{
		VMInstanceID: vm.ID,
		CPUCores:     cpu,
		RAMGb:        ram,
		CostPerHour:  utils.CalculateCost(cpu, ram),
		RecordedAt:   time.Now().UTC(),
	}
	if err := ctrl.Repository.VMCostRepo.Create(cost); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to record cost sample for %s: %v", vm.ID, err)
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[VM] Resized VM %s to cpu=%d ram=%dGi", vm.Name, cpu, ram)
	utils.JSON200(c, ctrl.vmResponse(ctx, vm))
}

// patchVMWorkflow authorizes the resize and drives the remote steps. The
// ownership check runs before any cluster call. Returns the effective shape.
func (ctrl *Controller) patchVMWorkflow(ctx context.Context, vm *entity.VMInstance, template *entity.Template, req *dto.PatchVMRequest, userID uuid.UUID, isAdmin bool) (int, int, error) {
	if !CanAccessVM(vm, userID, isAdmin) {
		return 0, 0, errNotAuthorized
	}

	cpu := vm.CPU
	if req.CPU != nil {
		cpu = utils.MinInt(template.MaxCPU, *req.CPU)
	}
	ram := vm.RAMGb
	if req.RAM != nil {
		ram = utils.MinInt(template.MaxRAM, *req.RAM)
	}

	if err := ctrl.Infra.Kubevirt.ResizeVirtualMachine(ctx, vm.Namespace, vm.Name, cpu, ram); err != nil {
		return 0, 0, err
	}
	if err := ctrl.Infra.Kubevirt.RestartVirtualMachine(ctx, vm.Namespace, vm.Name); err != nil {
		return 0, 0, err
	}
	return cpu, ram, nil
}
