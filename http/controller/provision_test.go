package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/entity"
	"github.com/tnqbao/gau-vm-orchestrator/http/controller/dto"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
)

func newClusterClient(apiURL string) *infra.KubevirtClient {
	cfg := &config.EnvConfig{}
	cfg.Kubevirt.APIURL = apiURL
	cfg.Kubevirt.Namespace = "kubevirt"
	cfg.Kubevirt.StorageClass = "local-path"

	client := infra.InitKubevirtClient(cfg)
	client.DVPollInterval = 5 * time.Millisecond
	client.DVPollTimeout = 200 * time.Millisecond
	return client
}

func newClusterController(apiURL string) *Controller {
	return &Controller{Infra: &infra.Infra{Kubevirt: newClusterClient(apiURL)}}
}

func testTemplate() *entity.Template {
	return &entity.Template{
		ID:        uuid.New(),
		Name:      "ubuntu-24.04",
		MaxCPU:    4,
		MaxRAM:    8,
		MaxSpace:  50,
		QemuImage: "http://images/ubuntu-24.04.img",
	}
}

func TestClampToTemplate(t *testing.T) {
	template := testTemplate()

	cpu, ram, space := clampToTemplate(template, 8, 2, 100)
	assert.Equal(t, 4, cpu)
	assert.Equal(t, 2, ram)
	assert.Equal(t, 50, space)

	cpu, ram, space = clampToTemplate(template, 4, 8, 50)
	assert.Equal(t, 4, cpu)
	assert.Equal(t, 8, ram)
	assert.Equal(t, 50, space)

	cpu, ram, space = clampToTemplate(template, 1, 1, 10)
	assert.Equal(t, 1, cpu)
	assert.Equal(t, 1, ram)
	assert.Equal(t, 10, space)
}

func TestCloudInitUserData(t *testing.T) {
	userData := cloudInitUserData("s3cret")
	assert.True(t, strings.HasPrefix(userData, "#cloud-config\n"))
	assert.Contains(t, userData, "password: s3cret")
	assert.Contains(t, userData, "ssh_pwauth: True")
}

func TestProvisionVMHappyPath(t *testing.T) {
	var dvManifest, vmManifest map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "datavolumes"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&dvManifest))
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "datavolumes"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status": map[string]interface{}{"phase": "Succeeded"},
			})
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "virtualmachines"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&vmManifest))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected call: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ctrl := newClusterController(srv.URL)
	userID := uuid.New()
	req := &dto.CreateVMRequest{Name: "web-01", CPU: 8, RAM: 2, Space: 100, Password: "s3cret"}

	dvName, err := ctrl.provisionVM(context.Background(), testTemplate(), req, userID)
	require.NoError(t, err)

	// Datavolume name carries the VM name plus a random suffix, and the
	// request is clamped to the template ceiling.
	assert.True(t, strings.HasPrefix(dvName, "web-01-dv-"))
	assert.Len(t, strings.TrimPrefix(dvName, "web-01-dv-"), 6)

	require.NotNil(t, dvManifest)
	spec := dvManifest["spec"].(map[string]interface{})
	pvc := spec["pvc"].(map[string]interface{})
	storage := pvc["resources"].(map[string]interface{})["requests"].(map[string]interface{})["storage"]
	assert.Equal(t, "50Gi", storage)

	require.NotNil(t, vmManifest)
	metadata := vmManifest["metadata"].(map[string]interface{})
	labels := metadata["labels"].(map[string]interface{})
	assert.Equal(t, userID.String(), labels["vm_owner"])

	domain := vmManifest["spec"].(map[string]interface{})["template"].(map[string]interface{})["spec"].(map[string]interface{})["domain"].(map[string]interface{})
	assert.Equal(t, float64(4), domain["cpu"].(map[string]interface{})["cores"])
	memory := domain["resources"].(map[string]interface{})["requests"].(map[string]interface{})["memory"]
	assert.Equal(t, "2Gi", memory)
}

func TestProvisionVMDataVolumeCreateFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	defer srv.Close()

	ctrl := newClusterController(srv.URL)
	req := &dto.CreateVMRequest{Name: "web-01", CPU: 2, RAM: 2, Space: 20, Password: "s3cret"}

	dvName, err := ctrl.provisionVM(context.Background(), testTemplate(), req, uuid.New())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(dvName, "web-01-dv-"))

	var upstream *infra.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
}

func TestShortSuffix(t *testing.T) {
	a := shortSuffix()
	b := shortSuffix()
	assert.Len(t, a, 6)
	assert.Len(t, b, 6)
	assert.NotEqual(t, a, b)
}
