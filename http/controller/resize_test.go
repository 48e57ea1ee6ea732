package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller/dto"
)

const resizeVMFixture = `{
	"metadata": {"name": "web-01", "resourceVersion": "42"},
	"spec": {"template": {"spec": {
		"domain": {"cpu": {"cores": 2}, "resources": {"requests": {"memory": "4Gi"}}},
		"networks": [{"name": "default"}],
		"volumes": [{"name": "rootdisk"}]
	}}},
	"status": {"printableStatus": "Running"}
}`

func intPtr(v int) *int { return &v }

func testVM(userID uuid.UUID) *entity.VMInstance {
	return &entity.VMInstance{
		ID:        uuid.New(),
		Name:      "web-01",
		Namespace: "kubevirt",
		UserID:    userID,
		CPU:       2,
		RAMGb:     4,
	}
}

func TestPatchVMWorkflowDeniesBeforeAnyClusterCall(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ctrl := newClusterController(srv.URL)
	owner := uuid.New()
	stranger := uuid.New()

	_, _, err := ctrl.patchVMWorkflow(context.Background(), testVM(owner), testTemplate(),
		&dto.PatchVMRequest{CPU: intPtr(4)}, stranger, false)
	assert.ErrorIs(t, err, errNotAuthorized)
	assert.Zero(t, calls.Load())
}

func TestPatchVMWorkflowAdminBypassesOwnership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(resizeVMFixture))
		case strings.HasSuffix(r.URL.Path, "/restart"):
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	ctrl := newClusterController(srv.URL)
	owner := uuid.New()
	admin := uuid.New()

	cpu, ram, err := ctrl.patchVMWorkflow(context.Background(), testVM(owner), testTemplate(),
		&dto.PatchVMRequest{CPU: intPtr(3)}, admin, true)
	require.NoError(t, err)
	assert.Equal(t, 3, cpu)
	assert.Equal(t, 4, ram)
}

func TestPatchVMWorkflowClampsAndKeepsOmittedFields(t *testing.T) {
	var restarted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(resizeVMFixture))
		case strings.HasSuffix(r.URL.Path, "/restart"):
			restarted = true
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	ctrl := newClusterController(srv.URL)
	owner := uuid.New()
	vm := testVM(owner)

	// CPU above the template ceiling clamps to it; omitted RAM keeps the
	// current shape.
	cpu, ram, err := ctrl.patchVMWorkflow(context.Background(), vm, testTemplate(),
		&dto.PatchVMRequest{CPU: intPtr(16)}, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 4, cpu)
	assert.Equal(t, vm.RAMGb, ram)
	assert.True(t, restarted)
}

func TestPatchVMWorkflowStopsWhenVMGone(t *testing.T) {
	var restartCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/restart") {
			restartCalled = true
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctrl := newClusterController(srv.URL)
	owner := uuid.New()

	_, _, err := ctrl.patchVMWorkflow(context.Background(), testVM(owner), testTemplate(),
		&dto.PatchVMRequest{RAM: intPtr(8)}, owner, false)
	require.Error(t, err)
	assert.False(t, restartCalled)
}

func TestCanAccessVM(t *testing.T) {
	owner := uuid.New()
	vm := testVM(owner)

	assert.True(t, CanAccessVM(vm, owner, false))
	assert.True(t, CanAccessVM(vm, uuid.New(), true))
	assert.False(t, CanAccessVM(vm, uuid.New(), false))
}
