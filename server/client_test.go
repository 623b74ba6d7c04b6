package server

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWSClient_StalledPeerClosesWithoutPanic(t *testing.T) {
	req := require.New(t)

	// Given a connection whose peer drains nothing
	client := newWSClient(slog.Default(), nil, 1)

	// When the buffer fills up
	req.NoError(client.Send([]byte(`{"message_type":"advertising_groups"}`)))
	req.Error(client.Send([]byte(`{"message_type":"advertising_groups"}`)))

	// Then frames arriving after the close are refused, not panics: the
	// registries may still hold this sink until the read pump cleans up
	req.Error(client.Send([]byte(`{"message_type":"advertising_groups"}`)))
	req.Error(client.Send([]byte(`{"message_type":"mutual_playlist_result"}`)))
}

func TestWSClient_ConcurrentSendsDuringClose(t *testing.T) {
	req := require.New(t)
	client := newWSClient(slog.Default(), nil, 1)

	// When many broadcasts race against the close triggered by the first
	// buffer overflow
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.Send([]byte(`{"message_type":"advertising_groups"}`))
		}()
	}
	wg.Wait()

	// Then the connection ends up closed and every later Send reports it
	req.Error(client.Send([]byte(`{"message_type":"advertising_groups"}`)))
}
