package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epalmerini/snoop/internal/decode"
)

var _ decode.Observer = (*DecodeObserver)(nil)

func TestDecodeObserver_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)

	o.Decoded(decode.SourceDelivery, time.Millisecond, true)
	o.Decoded(decode.SourceDelivery, time.Millisecond, true)
	o.Decoded(decode.SourceSnapshot, time.Millisecond, false)
	o.Dropped(decode.SourceSnapshot)
	o.Captured(true)
	o.Captured(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.decoded.WithLabelValues("delivery", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.decoded.WithLabelValues("snapshot", "diagnostic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.dropped.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.captures.WithLabelValues("dropped")))
	assert.Equal(t, 2, testutil.CollectAndCount(o.duration))
}

func TestDecodeObserver_WiredIntoDecoder(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)
	dec := decode.NewDecoder(decode.WithObserver(o))

	msgs := dec.DecodeAll(context.Background(), []decode.RawMessage{
		&decode.Delivery{RoutingKey: "q", Body: []byte("{}")},
		&decode.Snapshot{RoutingKey: "q", Payload: "not base64!", PayloadEncoding: "base64"},
		nil,
	})
	require.Len(t, msgs, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.decoded.WithLabelValues("delivery", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.decoded.WithLabelValues("snapshot", "diagnostic")))
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)
	o.Dropped("delivery")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, slog.New(slog.DiscardHandler)) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, `snoop_messages_dropped_total{source="delivery"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
