package infra

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Outcomes of a cluster API call. A 404 on a read is a valid state, not a
// failure; anything else non-2xx surfaces as UpstreamError with the remote
// status and body.
var (
	ErrNotFound = errors.New("cluster resource not found")
	ErrTimeout  = errors.New("timed out waiting for cluster resource")
)

type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("cluster API returned %d: %s", e.StatusCode, e.Body)
}

// KubevirtClient drives the cluster orchestrator's declarative resource API:
// virtual machines, datavolumes, snapshots, persistent volume claims, the
// restart subresource and the VNC console stream.
type KubevirtClient struct {
	APIURL       string
	WSURL        string
	Namespace    string
	StorageClass string

	// DataVolume readiness poll. Fixed interval, fixed overall deadline.
	DVPollInterval time.Duration
	DVPollTimeout  time.Duration

	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func InitKubevirtClient(cfg *config.EnvConfig) *KubevirtClient {
	if cfg.Kubevirt.APIURL == "" {
		panic("Kubernetes API URL is not configured")
	}

	transport := &http.Transport{}
	dialer := &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	if cfg.Kubevirt.InsecureTLS {
		tlsConfig := &tls.Config{InsecureSkipVerify: true}
		transport.TLSClientConfig = tlsConfig
		dialer.TLSClientConfig = tlsConfig
	}

	return &KubevirtClient{
		APIURL:         cfg.Kubevirt.APIURL,
		WSURL:          cfg.Kubevirt.WSURL,
		Namespace:      cfg.Kubevirt.Namespace,
		StorageClass:   cfg.Kubevirt.StorageClass,
		DVPollInterval: 5 * time.Second,
		DVPollTimeout:  300 * time.Second,
		token:          cfg.Kubevirt.Token,
		httpClient:     &http.Client{Timeout: 30 * time.Second, Transport: transport},
		dialer:         dialer,
	}
}

func (k *KubevirtClient) vmURL(namespace, name string) string {
	url := fmt.Sprintf("%s/apis/kubevirt.io/v1/namespaces/%s/virtualmachines", k.APIURL, namespace)
	if name != "" {
		url += "/" + name
	}
	return url
}

func (k *KubevirtClient) vmiURL(namespace, name string) string {
	return fmt.Sprintf("%s/apis/kubevirt.io/v1/namespaces/%s/virtualmachineinstances/%s", k.APIURL, namespace, name)
}

func (k *KubevirtClient) dataVolumeURL(namespace, name string) string {
	url := fmt.Sprintf("%s/apis/cdi.kubevirt.io/v1beta1/namespaces/%s/datavolumes", k.APIURL, namespace)
	if name != "" {
		url += "/" + name
	}
	return url
}

func (k *KubevirtClient) snapshotURL(namespace, name string) string {
	url := fmt.Sprintf("%s/apis/snapshot.kubevirt.io/v1alpha1/namespaces/%s/virtualmachinesnapshots", k.APIURL, namespace)
	if name != "" {
		url += "/" + name
	}
	return url
}

func (k *KubevirtClient) pvcURL(namespace, name string) string {
	return fmt.Sprintf("%s/api/v1/namespaces/%s/persistentvolumeclaims/%s", k.APIURL, namespace, name)
}

var tracer = otel.Tracer("github.com/tnqbao/gau-vm-orchestrator/infra")

// doRequest issues one authenticated call and returns the raw status and
// body. The returned error covers transport failures only; HTTP-level
// outcomes are the caller's to classify.
func (k *KubevirtClient) doRequest(ctx context.Context, method, url string, payload interface{}) (int, []byte, error) {
	ctx, span := tracer.Start(ctx, "cluster."+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
	)

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+k.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, nil, fmt.Errorf("cluster API request failed: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// getJSON reads a resource as an untyped manifest. 404 maps to ErrNotFound.
func (k *KubevirtClient) getJSON(ctx context.Context, url string) (map[string]interface{}, error) {
	status, raw, err := k.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status < 200 || status > 299 {
		return nil, &UpstreamError{StatusCode: status, Body: string(raw)}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return obj, nil
}

// ---------- Virtual machines ----------

type CreateVMParams struct {
	Name              string
	Namespace         string
	CPUCores          int
	MemoryGi          int
	DataVolumeName    string
	CloudInitUserData string
	OwnerID           string
}

// BuildVirtualMachineManifest assembles the full VM manifest: clamped
// resources, a rootdisk bound to the provisioned datavolume, a cloud-init
// disk, one bridge interface on the multus br0 network, run strategy Always
// and the ownership label.
func BuildVirtualMachineManifest(p CreateVMParams) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "kubevirt.io/v1",
		"kind":       "VirtualMachine",
		"metadata": map[string]interface{}{
			"name":      p.Name,
			"namespace": p.Namespace,
			"labels":    map[string]interface{}{"vm_owner": p.OwnerID},
		},
		"spec": map[string]interface{}{
			"runStrategy": "Always",
			"template": map[string]interface{}{
				"metadata": map[string]interface{}{
					"labels": map[string]interface{}{"kubevirt.io/domain": p.Name},
				},
				"spec": map[string]interface{}{
					"domain": map[string]interface{}{
						"cpu": map[string]interface{}{"cores": p.CPUCores},
						"resources": map[string]interface{}{
							"requests": map[string]interface{}{"memory": fmt.Sprintf("%dGi", p.MemoryGi)},
						},
						"devices": map[string]interface{}{
							"disks": []interface{}{
								map[string]interface{}{"name": "rootdisk", "disk": map[string]interface{}{"bus": "virtio"}},
								map[string]interface{}{"name": "cloudinitdisk", "disk": map[string]interface{}{"bus": "virtio"}},
							},
							"interfaces": []interface{}{
								map[string]interface{}{"name": "default", "bridge": map[string]interface{}{}},
							},
						},
					},
					"networks": []interface{}{
						map[string]interface{}{"name": "default", "multus": map[string]interface{}{"networkName": "br0"}},
					},
					"volumes": []interface{}{
						map[string]interface{}{
							"name":                  "rootdisk",
							"persistentVolumeClaim": map[string]interface{}{"claimName": p.DataVolumeName},
						},
						map[string]interface{}{
							"name":             "cloudinitdisk",
							"cloudInitNoCloud": map[string]interface{}{"userData": p.CloudInitUserData},
						},
					},
				},
			},
		},
	}
}

func (k *KubevirtClient) GetVirtualMachine(ctx context.Context, namespace, name string) (map[string]interface{}, error) {
	return k.getJSON(ctx, k.vmURL(namespace, name))
}

func (k *KubevirtClient) CreateVirtualMachine(ctx context.Context, p CreateVMParams) error {
	status, raw, err := k.doRequest(ctx, http.MethodPost, k.vmURL(p.Namespace, ""), BuildVirtualMachineManifest(p))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

// UpdateVirtualMachine replaces a VM manifest. The manifest must carry the
// resourceVersion read from the last GET; a stale token is rejected upstream.
func (k *KubevirtClient) UpdateVirtualMachine(ctx context.Context, namespace, name string, manifest map[string]interface{}) error {
	status, raw, err := k.doRequest(ctx, http.MethodPut, k.vmURL(namespace, name), manifest)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

// BuildResizeManifest merges a new resource shape into the manifest read from
// the cluster. The concurrency token and the fields this workflow does not
// understand (devices, networks, volumes) are copied through verbatim.
func BuildResizeManifest(current map[string]interface{}, namespace, name string, cpuCores, memoryGi int) map[string]interface{} {
	templateSpec := nestedMap(current, "spec", "template", "spec")
	domain := nestedMap(templateSpec, "domain")

	newDomain := map[string]interface{}{
		"cpu": map[string]interface{}{"cores": cpuCores},
		"resources": map[string]interface{}{
			"requests": map[string]interface{}{"memory": fmt.Sprintf("%dGi", memoryGi)},
		},
	}
	if domain != nil {
		if devices, ok := domain["devices"]; ok {
			newDomain["devices"] = devices
		}
	}

	newTemplateSpec := map[string]interface{}{
		"domain": newDomain,
	}
	if templateSpec != nil {
		if networks, ok := templateSpec["networks"]; ok {
			newTemplateSpec["networks"] = networks
		}
		if volumes, ok := templateSpec["volumes"]; ok {
			newTemplateSpec["volumes"] = volumes
		}
	}

	return map[string]interface{}{
		"apiVersion": "kubevirt.io/v1",
		"kind":       "VirtualMachine",
		"metadata": map[string]interface{}{
			"name":            name,
			"namespace":       namespace,
			"resourceVersion": nestedString(current, "metadata", "resourceVersion"),
		},
		"spec": map[string]interface{}{
			"running": true,
			"template": map[string]interface{}{
				"spec": newTemplateSpec,
			},
		},
	}
}

// ResizeVirtualMachine performs the fetch-merge-apply step of the resize
// workflow. A stale concurrency token or any other upstream rejection is
// final; there is no retry-on-conflict loop.
func (k *KubevirtClient) ResizeVirtualMachine(ctx context.Context, namespace, name string, cpuCores, memoryGi int) error {
	current, err := k.GetVirtualMachine(ctx, namespace, name)
	if err != nil {
		return err
	}
	return k.UpdateVirtualMachine(ctx, namespace, name, BuildResizeManifest(current, namespace, name, cpuCores, memoryGi))
}

func (k *KubevirtClient) DeleteVirtualMachine(ctx context.Context, namespace, name string) error {
	status, raw, err := k.doRequest(ctx, http.MethodDelete, k.vmURL(namespace, name), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	if status != http.StatusOK && status != http.StatusAccepted && status != http.StatusNoContent {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

// RestartVirtualMachine triggers the restart subresource. The subresource API
// acknowledges with 202; anything else is a failure.
func (k *KubevirtClient) RestartVirtualMachine(ctx context.Context, namespace, name string) error {
	url := fmt.Sprintf("%s/apis/subresources.kubevirt.io/v1/namespaces/%s/virtualmachines/%s/restart", k.APIURL, namespace, name)
	status, raw, err := k.doRequest(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

// ---------- DataVolumes ----------

type CreateDataVolumeParams struct {
	Name      string
	Namespace string
	SourceURL string
	SizeGi    int
}

func (k *KubevirtClient) BuildDataVolumeManifest(p CreateDataVolumeParams) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "cdi.kubevirt.io/v1beta1",
		"kind":       "DataVolume",
		"metadata":   map[string]interface{}{"name": p.Name, "namespace": p.Namespace},
		"spec": map[string]interface{}{
			"source": map[string]interface{}{
				"http": map[string]interface{}{"url": p.SourceURL},
			},
			"pvc": map[string]interface{}{
				"accessModes": []interface{}{"ReadWriteOnce"},
				"resources": map[string]interface{}{
					"requests": map[string]interface{}{"storage": fmt.Sprintf("%dGi", p.SizeGi)},
				},
				"storageClassName": k.StorageClass,
			},
		},
	}
}

func (k *KubevirtClient) CreateDataVolume(ctx context.Context, p CreateDataVolumeParams) error {
	status, raw, err := k.doRequest(ctx, http.MethodPost, k.dataVolumeURL(p.Namespace, ""), k.BuildDataVolumeManifest(p))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

func (k *KubevirtClient) GetDataVolumePhase(ctx context.Context, namespace, name string) (string, error) {
	obj, err := k.getJSON(ctx, k.dataVolumeURL(namespace, name))
	if err != nil {
		return "", err
	}
	return nestedString(obj, "status", "phase"), nil
}

func (k *KubevirtClient) DeleteDataVolume(ctx context.Context, namespace, name string) error {
	status, raw, err := k.doRequest(ctx, http.MethodDelete, k.dataVolumeURL(namespace, name), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	if status != http.StatusOK && status != http.StatusAccepted && status != http.StatusNoContent {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

// WaitForDataVolume polls the datavolume phase at a fixed interval until it
// reaches Succeeded or the deadline passes. Transient poll failures are
// tolerated; only the deadline or context cancellation ends the wait early.
func (k *KubevirtClient) WaitForDataVolume(ctx context.Context, namespace, name string) error {
	deadline := time.Now().Add(k.DVPollTimeout)
	for time.Now().Before(deadline) {
		phase, err := k.GetDataVolumePhase(ctx, namespace, name)
		if err == nil && phase == "Succeeded" {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(k.DVPollInterval):
		}
	}
	return ErrTimeout
}

// ---------- Snapshots ----------

func (k *KubevirtClient) CreateSnapshot(ctx context.Context, namespace, vmName, snapshotName string) error {
	manifest := map[string]interface{}{
		"apiVersion": "snapshot.kubevirt.io/v1alpha1",
		"kind":       "VirtualMachineSnapshot",
		"metadata":   map[string]interface{}{"name": snapshotName, "namespace": namespace},
		"spec": map[string]interface{}{
			"source": map[string]interface{}{
				"kind":      "VirtualMachine",
				"name":      vmName,
				"namespace": namespace,
				"apiGroup":  "kubevirt.io",
			},
		},
	}

	status, raw, err := k.doRequest(ctx, http.MethodPost, k.snapshotURL(namespace, ""), manifest)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

type SnapshotInfo struct {
	Name              string
	CreationTimestamp string
}

func (k *KubevirtClient) GetSnapshotInfo(ctx context.Context, namespace, name string) (*SnapshotInfo, error) {
	obj, err := k.getJSON(ctx, k.snapshotURL(namespace, name))
	if err != nil {
		return nil, err
	}
	return &SnapshotInfo{
		Name:              nestedString(obj, "metadata", "name"),
		CreationTimestamp: nestedString(obj, "metadata", "creationTimestamp"),
	}, nil
}

func (k *KubevirtClient) DeleteSnapshot(ctx context.Context, namespace, name string) error {
	status, raw, err := k.doRequest(ctx, http.MethodDelete, k.snapshotURL(namespace, name), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted && status != http.StatusNoContent {
		return &UpstreamError{StatusCode: status, Body: string(raw)}
	}
	return nil
}

// ---------- Persistent volume claims ----------

func (k *KubevirtClient) GetPVC(ctx context.Context, namespace, name string) (map[string]interface{}, error) {
	return k.getJSON(ctx, k.pvcURL(namespace, name))
}

// ---------- VirtualMachineInstances ----------

type VMIInterface struct {
	Name        string `json:"name"`
	MacAddress  string `json:"macAddress"`
	IPv4Address string `json:"ipv4Address"`
}

// GetVMIInterface returns the first network interface reported by the running
// instance. ErrNotFound when the instance exists but reports no interfaces yet.
func (k *KubevirtClient) GetVMIInterface(ctx context.Context, namespace, name string) (*VMIInterface, error) {
	obj, err := k.getJSON(ctx, k.vmiURL(namespace, name))
	if err != nil {
		return nil, err
	}

	interfaces := nestedSlice(obj, "status", "interfaces")
	if len(interfaces) == 0 {
		return nil, ErrNotFound
	}
	first, _ := interfaces[0].(map[string]interface{})
	return &VMIInterface{
		Name:        nestedString(first, "name"),
		MacAddress:  nestedString(first, "mac"),
		IPv4Address: nestedString(first, "ipAddress"),
	}, nil
}
