package infra

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// DialConsole opens the duplex VNC stream of a running instance. The caller
// owns the returned connection and must close it.
func (k *KubevirtClient) DialConsole(namespace, name string) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/apis/subresources.kubevirt.io/v1/namespaces/%s/virtualmachineinstances/%s/vnc", k.WSURL, namespace, name)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+k.token)

	conn, resp, err := k.dialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: err.Error()}
		}
		return nil, fmt.Errorf("console dial failed: %w", err)
	}
	return conn, nil
}
