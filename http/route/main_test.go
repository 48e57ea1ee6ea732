package routes

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller"
)

func TestSetupRouterPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := &controller.Controller{
		Config: &config.Config{EnvConfig: &config.EnvConfig{}},
	}

	router := SetupRouter(ctrl)

	registered := map[string]bool{}
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"GET /",
		"GET /api/v1/vms/",
		"POST /api/v1/vms/",
		"GET /api/v1/vms/:id",
		"PATCH /api/v1/vms/:id",
		"DELETE /api/v1/vms/:id",
		"GET /api/v1/vms/:id/vmi",
		"GET /api/v1/vms/:id/costs",
		"GET /api/v1/vms/:id/console",
		"POST /api/v1/vms/:id/snapshots",
		"GET /api/v1/vms/:id/snapshots",
		"GET /api/v1/vms/:id/snapshots/:snap_id",
		"DELETE /api/v1/vms/:id/snapshots/:snap_id",
		"GET /api/v1/templates/",
		"GET /api/v1/templates/:id",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}

	// Resource groups hang directly off the version prefix.
	for path := range registered {
		require.NotContains(t, path, "/api/v1/vm/")
	}
}
