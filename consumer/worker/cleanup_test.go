package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/infra"
	"github.com/tnqbao/gau-vm-orchestrator/infra/produce"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func newTestConsumer(apiURL string) *CleanupConsumer {
	cfg := &config.EnvConfig{}
	cfg.Kubevirt.APIURL = apiURL
	cfg.Kubevirt.Namespace = "kubevirt"

	return &CleanupConsumer{
		infra: &infra.Infra{
			Logger:   infra.InitLoggerClient(cfg),
			Kubevirt: infra.InitKubevirtClient(cfg),
		},
		retryDelay: time.Millisecond,
	}
}

func orphanDelivery(t *testing.T, ack *fakeAcknowledger, kind string) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(produce.OrphanResourceMessage{
		Kind:      kind,
		Namespace: "kubevirt",
		Name:      "web-01-dv-a1b2c3",
		Reason:    "readiness wait failed",
	})
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestHandleOrphanDeletesAndAcks(t *testing.T) {
	var deletes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deletes++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ack := &fakeAcknowledger{}
	newTestConsumer(srv.URL).handleOrphan(context.Background(), orphanDelivery(t, ack, "DataVolume"))

	assert.Equal(t, 1, deletes)
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestHandleOrphanAlreadyGoneIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ack := &fakeAcknowledger{}
	newTestConsumer(srv.URL).handleOrphan(context.Background(), orphanDelivery(t, ack, "VirtualMachine"))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestHandleOrphanPermanentFailureDropsWithoutRequeue(t *testing.T) {
	var deletes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deletes++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ack := &fakeAcknowledger{}
	newTestConsumer(srv.URL).handleOrphan(context.Background(), orphanDelivery(t, ack, "DataVolume"))

	// All retries spent, then rejected without requeue so the message cannot
	// redeliver in a hot loop.
	assert.Equal(t, 3, deletes)
	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestHandleOrphanUnknownKindRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no cluster call expected for an unknown kind")
	}))
	defer srv.Close()

	ack := &fakeAcknowledger{}
	newTestConsumer(srv.URL).handleOrphan(context.Background(), orphanDelivery(t, ack, "Pod"))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestHandleOrphanMalformedMessageRejected(t *testing.T) {
	ack := &fakeAcknowledger{}
	consumer := newTestConsumer("http://127.0.0.1:1")
	consumer.handleOrphan(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("not json")})

	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}
