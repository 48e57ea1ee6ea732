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

// loadOwnedVM resolves :id and verifies ownership, writing the error response
// itself when the handler should stop.
func (ctrl *Controller) loadOwnedVM(c *gin.Context) *entity.VMInstance {
	userID, isAdmin, ok := principalFromContext(c)
	if !ok {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return nil
	}
	vm := ctrl.loadVM(c)
	if vm == nil {
		return nil
	}
	if !CanAccessVM(vm, userID, isAdmin) {
		utils.JSON403(c, "Not authorized for this VM")
		return nil
	}
	return vm
}

func (ctrl *Controller) CreateSnapshot(c *gin.Context) {
	ctx := c.Request.Context()

	vm := ctrl.loadOwnedVM(c)
	if vm == nil {
		return
	}

	snapshotName := fmt.Sprintf("%s-snap-%s", vm.Name, shortSuffix())

	if err := ctrl.Infra.Kubevirt.CreateSnapshot(ctx, vm.Namespace, vm.Name, snapshotName); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Snapshot] Failed to create snapshot %s: %v", snapshotName, err)
		var upstream *infra.UpstreamError
		if errors.As(err, &upstream) {
			utils.JSONStatus(c, upstream.StatusCode, "Failed to create snapshot: "+upstream.Body)
			return
		}
		utils.JSON502(c, "Cluster API unreachable")
		return
	}

	snapshot := &entity.VMSnapshot{
		VMInstanceID: vm.ID,
		SnapshotName: snapshotName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := ctrl.Repository.VMSnapshotRepo.Create(snapshot); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Snapshot] Failed to record snapshot %s: %v", snapshotName, err)
		utils.JSON500(c, "Failed to record snapshot")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Snapshot] Created snapshot %s for VM %s", snapshotName, vm.Name)
	utils.JSON201(c, dto.SnapshotResponse{
		ID:                snapshot.ID,
		Name:              snapshotName,
		Namespace:         vm.Namespace,
		CreationTimestamp: snapshot.CreatedAt.Format(time.RFC3339),
	})
}

// mergeSnapshotStatus pairs local snapshot rows with remote creation
// timestamps. A row whose remote resource is gone is still returned, with an
// empty timestamp; listing never fails on remote absence.
func mergeSnapshotStatus(ctx context.Context, client *infra.KubevirtClient, namespace string, records []*entity.VMSnapshot) []dto.SnapshotResponse {
	result := make([]dto.SnapshotResponse, 0, len(records))
	for _, record := range records {
		creationTimestamp := ""
		if info, err := client.GetSnapshotInfo(ctx, namespace, record.SnapshotName); err == nil {
			creationTimestamp = info.CreationTimestamp
		}
		result = append(result, dto.SnapshotResponse{
			ID:                record.ID,
			Name:              record.SnapshotName,
			Namespace:         namespace,
			CreationTimestamp: creationTimestamp,
		})
	}
	return result
}

func (ctrl *Controller) ListSnapshots(c *gin.Context) {
	ctx := c.Request.Context()

	vm := ctrl.loadOwnedVM(c)
	if vm == nil {
		return
	}

	records, err := ctrl.Repository.VMSnapshotRepo.ListByVMInstance(vm.ID)
	if err != nil {
		utils.JSON500(c, "Failed to list snapshots")
		return
	}

	utils.JSON200(c, mergeSnapshotStatus(ctx, ctrl.Infra.Kubevirt, vm.Namespace, records))
}

func (ctrl *Controller) GetSnapshot(c *gin.Context) {
	ctx := c.Request.Context()

	vm := ctrl.loadOwnedVM(c)
	if vm == nil {
		return
	}

	snapshot := ctrl.loadSnapshot(c, vm)
	if snapshot == nil {
		return
	}

	// Unlike listing, a detail read requires the remote resource.
	info, err := ctrl.Infra.Kubevirt.GetSnapshotInfo(ctx, vm.Namespace, snapshot.SnapshotName)
	if err != nil {
		if errors.Is(err, infra.ErrNotFound) {
			utils.JSON404(c, "Snapshot not found in cluster")
			return
		}
		var upstream *infra.UpstreamError
		if errors.As(err, &upstream) {
			utils.JSONStatus(c, upstream.StatusCode, "Failed to fetch snapshot: "+upstream.Body)
			return
		}
		utils.JSON502(c, "Cluster API unreachable")
		return
	}

	utils.JSON200(c, dto.SnapshotResponse{
		ID:                snapshot.ID,
		Name:              info.Name,
		Namespace:         vm.Namespace,
		CreationTimestamp: info.CreationTimestamp,
	})
}

// DeleteSnapshot removes a snapshot. The remote delete must succeed before
// the local row is removed.
func (ctrl *Controller) DeleteSnapshot(c *gin.Context) {
	ctx := c.Request.Context()

	vm := ctrl.loadOwnedVM(c)
	if vm == nil {
		return
	}

	snapshot := ctrl.loadSnapshot(c, vm)
	if snapshot == nil {
		return
	}

	if err := ctrl.Infra.Kubevirt.DeleteSnapshot(ctx, vm.Namespace, snapshot.SnapshotName); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Snapshot] Failed to delete snapshot %s: %v", snapshot.SnapshotName, err)
		var upstream *infra.UpstreamError
		if errors.As(err, &upstream) {
			utils.JSONStatus(c, upstream.StatusCode, "Failed to delete snapshot: "+upstream.Body)
			return
		}
		utils.JSON502(c, "Cluster API unreachable")
		return
	}

	if err := ctrl.Repository.VMSnapshotRepo.Delete(snapshot.ID); err != nil {
		utils.JSON500(c, "Failed to delete snapshot record")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Snapshot] Deleted snapshot %s of VM %s", snapshot.SnapshotName, vm.Name)
	utils.JSON200(c, gin.H{"message": fmt.Sprintf("Snapshot %s deleted successfully", snapshot.SnapshotName)})
}

func (ctrl *Controller) loadSnapshot(c *gin.Context, vm *entity.VMInstance) *entity.VMSnapshot {
	snapID, err := uuid.Parse(c.Param("snap_id"))
	if err != nil {
		utils.JSON400(c, "Invalid snapshot id")
		return nil
	}
	snapshot, err := ctrl.Repository.VMSnapshotRepo.GetByID(snapID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Snapshot not found")
			return nil
		}
		utils.JSON500(c, "Failed to load snapshot")
		return nil
	}
	if snapshot.VMInstanceID != vm.ID {
		utils.JSON404(c, "Snapshot not found")
		return nil
	}
	return snapshot
}
