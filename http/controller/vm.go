package controller

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller/dto"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
	"gorm.io/gorm"
)

// vmResponse merges the bookkeeping row with a freshly reconciled cluster
// status. An unreachable cluster degrades to the Not Found view with a
// warning instead of failing the merge.
func (ctrl *Controller) vmResponse(ctx context.Context, vm *entity.VMInstance) *dto.VirtualMachineResponse {
	status, warnings, err := ctrl.Infra.Kubevirt.CheckVM(ctx, vm.Namespace, vm.Name)
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[VM] Failed to reconcile status for %s: %v", vm.Name, err)
		warnings = append(warnings, "cluster status unavailable: "+err.Error())
		status = &infra.VMStatus{
			Memory:   "Unknown",
			Status:   infra.VMStatusNotFound,
			Networks: []infra.Network{},
			Disks:    []infra.Disk{},
			Volumes:  []infra.Volume{},
			PVCs:     []infra.PVCStatus{},
		}
	}
	for _, warning := range warnings {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[VM] %s: %s", vm.Name, warning)
	}
	return &dto.VirtualMachineResponse{
		VMInstance: *vm,
		KubeStatus: status,
		Warnings:   warnings,
	}
}

// loadVM resolves the :id path parameter to a bookkeeping row. It writes the
// error response itself and returns nil when the handler should stop.
func (ctrl *Controller) loadVM(c *gin.Context) *entity.VMInstance {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid VM id")
		return nil
	}
	vm, err := ctrl.Repository.VMInstanceRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "VM not found")
			return nil
		}
		utils.JSON500(c, "Failed to load VM")
		return nil
	}
	return vm
}

func (ctrl *Controller) ListVMs(c *gin.Context) {
	ctx := c.Request.Context()

	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var vms []*entity.VMInstance
	var err error
	if isAdmin {
		vms, err = ctrl.Repository.VMInstanceRepo.List()
	} else {
		vms, err = ctrl.Repository.VMInstanceRepo.ListByUser(userID)
	}
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to list VMs: %v", err)
		utils.JSON500(c, "Failed to list VMs")
		return
	}

	result := make([]*dto.VirtualMachineResponse, 0, len(vms))
	for _, vm := range vms {
		result = append(result, ctrl.vmResponse(ctx, vm))
	}
	utils.JSON200(c, result)
}

func (ctrl *Controller) GetVM(c *gin.Context) {
	ctx := c.Request.Context()

	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	vm := ctrl.loadVM(c)
	if vm == nil {
		return
	}
	if !CanAccessVM(vm, userID, isAdmin) {
		utils.JSON403(c, "Not authorized to view this VM")
		return
	}

	utils.JSON200(c, ctrl.vmResponse(ctx, vm))
}

// DeleteVM removes the VM from the cluster and the bookkeeping store. The
// remote delete is best-effort: when it fails, a cleanup event is published
// and the local row is removed anyway.
func (ctrl *Controller) DeleteVM(c *gin.Context) {
	ctx := c.Request.Context()

	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	vm := ctrl.loadVM(c)
	if vm == nil {
		return
	}
	if !CanAccessVM(vm, userID, isAdmin) {
		utils.JSON403(c, "Not authorized to delete this VM")
		return
	}

	if err := ctrl.Infra.Kubevirt.DeleteVirtualMachine(ctx, vm.Namespace, vm.Name); err != nil && !errors.Is(err, infra.ErrNotFound) {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[VM] Remote delete of %s did not succeed, scheduling cleanup: %v", vm.Name, err)
		if pubErr := ctrl.Infra.Produce.CleanupService.PublishOrphanResource(ctx, "VirtualMachine", vm.Namespace, vm.Name, "delete failed: "+err.Error()); pubErr != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, pubErr, "[VM] Failed to publish cleanup event for %s: %v", vm.Name, pubErr)
		}
	}

	if err := ctrl.Repository.VMInstanceRepo.Delete(vm.ID); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to delete VM row %s: %v", vm.ID, err)
		utils.JSON500(c, "Failed to delete VM")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[VM] Deleted VM %s (%s)", vm.Name, vm.ID)
	utils.JSON200(c, gin.H{"message": "VM deleted successfully"})
}

// GetVMI reports the first network interface of the running instance.
func (ctrl *Controller) GetVMI(c *gin.Context) {
	ctx := c.Request.Context()

	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	vm := ctrl.loadVM(c)
	if vm == nil {
		return
	}
	if !CanAccessVM(vm, userID, isAdmin) {
		utils.JSON403(c, "Not authorized to view this VM")
		return
	}

	vmi, err := ctrl.Infra.Kubevirt.GetVMIInterface(ctx, vm.Namespace, vm.Name)
	if err != nil {
		if errors.Is(err, infra.ErrNotFound) {
			utils.JSON404(c, "No network interfaces found for VM")
			return
		}
		var upstream *infra.UpstreamError
		if errors.As(err, &upstream) {
			utils.JSONStatus(c, upstream.StatusCode, "Failed to fetch VM instance: "+upstream.Body)
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to fetch VMI for %s: %v", vm.Name, err)
		utils.JSON502(c, "Cluster API unreachable")
		return
	}
	utils.JSON200(c, vmi)
}
