package mhttp_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/monarch-engine/monarch/mhttp"
)

func TestServer_ServesStatus(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := mhttp.NewServer(ctx, slogt.New(t), mhttp.Config{
		Listener: ln,
		Snapshot: func() mhttp.Status {
			return mhttp.Status{
				Role:    "producer",
				Moniker: "quiet-otter",
				Detail:  map[string]any{"windowLen": 4},
			}
		},
	})

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got mhttp.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "producer", got.Role)
	require.Equal(t, "quiet-otter", got.Moniker)

	// Cancellation stops the server.
	cancel()
	waited := make(chan struct{})
	go func() {
		srv.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("server did not shut down")
	}
}
