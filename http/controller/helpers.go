package controller

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
)

// errNotAuthorized marks an ownership check failure inside a workflow; the
// handler maps it to 403 before any remote state has been touched.
var errNotAuthorized = errors.New("not authorized for this VM")

func principalFromContext(c *gin.Context) (uuid.UUID, bool, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false, false
	}
	userID, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, false, false
	}
	return userID, c.GetBool("is_admin"), true
}

// CanAccessVM reports whether the principal may operate on the VM: admins
// always, everyone else only on VMs they own.
func CanAccessVM(vm *entity.VMInstance, userID uuid.UUID, isAdmin bool) bool {
	return isAdmin || vm.UserID == userID
}

// shortSuffix returns six hex characters for collision-free dependent
// resource names (datavolumes, snapshots).
func shortSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}
