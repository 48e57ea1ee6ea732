package dto

import "github.com/google/uuid"

// SnapshotResponse pairs a local snapshot row with the creation timestamp
// reported by the cluster. The timestamp is empty when the remote resource is
// gone or not yet reporting.
type SnapshotResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Namespace         string    `json:"namespace"`
	CreationTimestamp string    `json:"creationTimestamp,omitempty"`
}
