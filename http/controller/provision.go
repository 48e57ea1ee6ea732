package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller/dto"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
	"gorm.io/gorm"
)

// clampToTemplate bounds a requested shape by the template ceiling. The
// result never exceeds either the ceiling or the request.
func clampToTemplate(template *entity.Template, cpu, ram, space int) (int, int, int) {
	return utils.MinInt(template.MaxCPU, cpu),
		utils.MinInt(template.MaxRAM, ram),
		utils.MinInt(template.MaxSpace, space)
}

// cloudInitUserData renders the initial-login credential payload mounted on
// the cloudinit disk.
func cloudInitUserData(password string) string {
	return "#cloud-config\npassword: " + password + "\nchpasswd: { expire: False }\nssh_pwauth: True\n"
}

// CreateVM runs the provisioning pipeline: resolve the template, provision
// the backing datavolume, wait for it to import, submit the VM manifest, then
// record the bookkeeping and ledger rows. Steps are strictly ordered and not
// re-entered on partial failure; a datavolume orphaned by a later failure is
// published for out-of-band cleanup.
func (ctrl *Controller) CreateVM(c *gin.Context) {
	ctx := c.Request.Context()
	ctrl.Infra.Logger.InfoWithContextf(ctx, "[VM] Received CreateVM request")

	userID, _, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var req dto.CreateVMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to bind CreateVM request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	template, err := ctrl.Repository.TemplateRepo.GetByID(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "VM Template not found")
			return
		}
		utils.JSON500(c, "Failed to load template")
		return
	}

	exists, err := ctrl.Repository.VMInstanceRepo.ExistsByName(req.Name)
	if err != nil {
		utils.JSON500(c, "Failed to check VM name")
		return
	}
	if exists {
		utils.JSON400(c, "A VM with this name already exists")
		return
	}

	dvName, err := ctrl.provisionVM(ctx, template, &req, userID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Provisioning of %s failed: %v", req.Name, err)
		switch {
		case errors.Is(err, infra.ErrTimeout):
			utils.JSON504(c, "DataVolume creation timed out")
		default:
			var upstream *infra.UpstreamError
			if errors.As(err, &upstream) {
				utils.JSONStatus(c, upstream.StatusCode, upstream.Body)
			} else {
				utils.JSON502(c, "Cluster API unreachable")
			}
		}
		return
	}

	effCPU, effRAM, _ := clampToTemplate(template, req.CPU, req.RAM, req.Space)

	vm := &entity.VMInstance{
		Name:       req.Name,
		Namespace:  ctrl.Infra.Kubevirt.Namespace,
		UserID:     userID,
		TemplateID: template.ID,
		CPU:        effCPU,
		RAMGb:      effRAM,
		CreatedAt:  time.Now().UTC(),
	}
	if err := ctrl.Repository.VMInstanceRepo.Create(vm); err != nil {
		// The cluster resources exist but bookkeeping failed; flag both for
		// out-of-band reconciliation rather than guessing at rollback.
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to insert VM row for %s: %v", req.Name, err)
		if pubErr := ctrl.Infra.Produce.CleanupService.PublishOrphanResource(ctx, "VirtualMachine", vm.Namespace, req.Name, "bookkeeping insert failed"); pubErr != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, pubErr, "[VM] Failed to publish cleanup event for %s: %v", req.Name, pubErr)
		}
		if pubErr := ctrl.Infra.Produce.CleanupService.PublishOrphanResource(ctx, "DataVolume", vm.Namespace, dvName, "bookkeeping insert failed"); pubErr != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, pubErr, "[VM] Failed to publish cleanup event for %s: %v", dvName, pubErr)
		}
		utils.JSON500(c, "Failed to record VM")
		return
	}

	cost := &entity.VMCost{
		VMInstanceID: vm.ID,
		CPUCores:     req.CPU,
		RAMGb:        req.RAM,
		CostPerHour:  utils.CalculateCost(req.CPU, req.RAM),
		RecordedAt:   time.Now().UTC(),
	}
	if err := ctrl.Repository.VMCostRepo.Create(cost); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[VM] Failed to record cost sample for %s: %v", vm.ID, err)
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[VM] Created VM %s (%s) with cpu=%d ram=%dGi", vm.Name, vm.ID, effCPU, effRAM)
	utils.JSON201(c, ctrl.vmResponse(ctx, vm))
}

// provisionVM performs the cluster-side steps of the pipeline and returns the
// datavolume name backing the VM.
func (ctrl *Controller) provisionVM(ctx context.Context, template *entity.Template, req *dto.CreateVMRequest, userID uuid.UUID) (string, error) {
	effCPU, effRAM, effSpace := clampToTemplate(template, req.CPU, req.RAM, req.Space)

	// A fresh suffix per attempt keeps the datavolume name clear of any
	// earlier partially-failed run.
	dvName := fmt.Sprintf("%s-dv-%s", req.Name, shortSuffix())
	namespace := ctrl.Infra.Kubevirt.Namespace

	if err := ctrl.Infra.Kubevirt.CreateDataVolume(ctx, infra.CreateDataVolumeParams{
		Name:      dvName,
		Namespace: namespace,
		SourceURL: template.QemuImage,
		SizeGi:    effSpace,
	}); err != nil {
		return dvName, fmt.Errorf("failed to create DataVolume: %w", err)
	}

	if err := ctrl.Infra.Kubevirt.WaitForDataVolume(ctx, namespace, dvName); err != nil {
		// The volume may still finish importing later; leave it for cleanup.
		if pubErr := ctrl.Infra.Produce.CleanupService.PublishOrphanResource(ctx, "DataVolume", namespace, dvName, "readiness wait failed"); pubErr != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, pubErr, "[VM] Failed to publish cleanup event for %s: %v", dvName, pubErr)
		}
		return dvName, err
	}

	if err := ctrl.Infra.Kubevirt.CreateVirtualMachine(ctx, infra.CreateVMParams{
		Name:              req.Name,
		Namespace:         namespace,
		CPUCores:          effCPU,
		MemoryGi:          effRAM,
		DataVolumeName:    dvName,
		CloudInitUserData: cloudInitUserData(req.Password),
		OwnerID:           userID.String(),
	}); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[VM] VM submission for %s failed, datavolume %s is orphaned", req.Name, dvName)
		if pubErr := ctrl.Infra.Produce.CleanupService.PublishOrphanResource(ctx, "DataVolume", namespace, dvName, "VM submission failed"); pubErr != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, pubErr, "[VM] Failed to publish cleanup event for %s: %v", dvName, pubErr)
		}
		return dvName, fmt.Errorf("failed to create VM: %w", err)
	}

	return dvName, nil
}
