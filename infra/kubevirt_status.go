package infra

import (
	"context"
	"errors"
	"fmt"
)

// VMStatusNotFound is the phase reported when the cluster has no resource for
// a locally known VM. Absence is a valid state, never an error.
const VMStatusNotFound = "Not Found"

type Network struct {
	Name string `json:"name"`
}

type Disk struct {
	Name string `json:"name"`
	Bus  string `json:"bus,omitempty"`
}

type Volume struct {
	Name               string `json:"name"`
	ContainerDiskImage string `json:"containerDiskImage,omitempty"`
}

type PVCStatus struct {
	Name   string `json:"name"`
	Size   string `json:"size,omitempty"`
	Status string `json:"status,omitempty"`
}

// VMStatus is the merged live view of a VM on the cluster. It is recomputed
// on every read and never persisted. resourceVersion is deliberately left
// out: it changes on every server-side write and would break repeat-read
// equality.
type VMStatus struct {
	UID               string      `json:"uid,omitempty"`
	CreationTimestamp string      `json:"creationTimestamp,omitempty"`
	Cores             int         `json:"cores,omitempty"`
	Memory            string      `json:"memory"`
	Status            string      `json:"status"`
	Networks          []Network   `json:"networks"`
	Disks             []Disk      `json:"disks"`
	Volumes           []Volume    `json:"volumes"`
	PVCs              []PVCStatus `json:"pvcs"`
}

func notFoundStatus() *VMStatus {
	return &VMStatus{
		Memory:   "Unknown",
		Status:   VMStatusNotFound,
		Networks: []Network{},
		Disks:    []Disk{},
		Volumes:  []Volume{},
		PVCs:     []PVCStatus{},
	}
}

// CheckVM reconciles the live state of a VM: the VM resource itself plus the
// persistent volume claims its volumes reference. Claim detail is
// supplementary, so per-claim fetch failures degrade the result and are
// reported as warnings instead of failing the call.
func (k *KubevirtClient) CheckVM(ctx context.Context, namespace, name string) (*VMStatus, []string, error) {
	warnings := []string{}

	obj, err := k.GetVirtualMachine(ctx, namespace, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFoundStatus(), warnings, nil
		}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			// Any unreadable remote state collapses to Not Found, matching
			// the tolerant read semantics of the status view.
			return notFoundStatus(), warnings, nil
		}
		return nil, warnings, err
	}

	templateSpec := nestedMap(obj, "spec", "template", "spec")

	status := &VMStatus{
		UID:               nestedString(obj, "metadata", "uid"),
		CreationTimestamp: nestedString(obj, "metadata", "creationTimestamp"),
		Cores:             nestedInt(templateSpec, "domain", "cpu", "cores"),
		Memory:            nestedString(templateSpec, "domain", "resources", "requests", "memory"),
		Status:            nestedString(obj, "status", "printableStatus"),
		Networks:          []Network{},
		Disks:             []Disk{},
		Volumes:           []Volume{},
		PVCs:              []PVCStatus{},
	}
	if status.Memory == "" {
		status.Memory = "Unknown"
	}
	if status.Status == "" {
		status.Status = "Unknown"
	}

	for _, n := range nestedSlice(templateSpec, "networks") {
		network, _ := n.(map[string]interface{})
		status.Networks = append(status.Networks, Network{Name: nestedString(network, "name")})
	}

	for _, d := range nestedSlice(templateSpec, "domain", "devices", "disks") {
		disk, _ := d.(map[string]interface{})
		status.Disks = append(status.Disks, Disk{
			Name: nestedString(disk, "name"),
			Bus:  nestedString(disk, "disk", "bus"),
		})
	}

	var pvcNames []string
	for _, v := range nestedSlice(templateSpec, "volumes") {
		volume, _ := v.(map[string]interface{})
		if claim := nestedString(volume, "persistentVolumeClaim", "claimName"); claim != "" {
			pvcNames = append(pvcNames, claim)
		}
		status.Volumes = append(status.Volumes, Volume{
			Name:               nestedString(volume, "name"),
			ContainerDiskImage: nestedString(volume, "containerDisk", "image"),
		})
	}

	for _, pvcName := range pvcNames {
		pvc, err := k.GetPVC(ctx, namespace, pvcName)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to fetch PVC %s: %v", pvcName, err))
			continue
		}
		status.PVCs = append(status.PVCs, PVCStatus{
			Name:   pvcName,
			Size:   nestedString(pvc, "spec", "resources", "requests", "storage"),
			Status: nestedString(pvc, "status", "phase"),
		})
	}

	return status, warnings, nil
}

// ---------- untyped manifest access ----------

func nestedMap(obj map[string]interface{}, keys ...string) map[string]interface{} {
	current := obj
	for _, key := range keys {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func nestedString(obj map[string]interface{}, keys ...string) string {
	if len(keys) == 0 || obj == nil {
		return ""
	}
	parent := nestedMap(obj, keys[:len(keys)-1]...)
	if parent == nil {
		return ""
	}
	value, _ := parent[keys[len(keys)-1]].(string)
	return value
}

func nestedInt(obj map[string]interface{}, keys ...string) int {
	if len(keys) == 0 || obj == nil {
		return 0
	}
	parent := nestedMap(obj, keys[:len(keys)-1]...)
	if parent == nil {
		return 0
	}
	// JSON numbers decode as float64.
	if value, ok := parent[keys[len(keys)-1]].(float64); ok {
		return int(value)
	}
	return 0
}

func nestedSlice(obj map[string]interface{}, keys ...string) []interface{} {
	if len(keys) == 0 || obj == nil {
		return nil
	}
	parent := nestedMap(obj, keys[:len(keys)-1]...)
	if parent == nil {
		return nil
	}
	value, _ := parent[keys[len(keys)-1]].([]interface{})
	return value
}
