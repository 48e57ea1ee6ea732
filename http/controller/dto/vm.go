package dto

import (
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
)

type CreateVMRequest struct {
	Name       string    `json:"name" binding:"required,min=1,max=63"`
	TemplateID uuid.UUID `json:"template_id" binding:"required"`
	CPU        int       `json:"cpu" binding:"required,min=1"`
	RAM        int       `json:"ram" binding:"required,min=1"`
	Space      int       `json:"space" binding:"required,min=1"`
	Password   string    `json:"password" binding:"required,min=1"`
}

// PatchVMRequest carries the resize patch. Absent fields keep the current
// value.
type PatchVMRequest struct {
	CPU *int `json:"cpu" binding:"omitempty,min=1"`
	RAM *int `json:"ram" binding:"omitempty,min=1"`
}

// VirtualMachineResponse merges the bookkeeping row with the live cluster
// status. Warnings carry best-effort enrichment failures.
type VirtualMachineResponse struct {
	entity.VMInstance
	KubeStatus *infra.VMStatus `json:"kube_status"`
	Warnings   []string        `json:"warnings,omitempty"`
}
