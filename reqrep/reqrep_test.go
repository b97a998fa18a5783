package reqrep

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shmipc-go/shmipc/ringbuffer"
	"github.com/stretchr/testify/require"
)

func uniqueTopic(t *testing.T) string {
	return fmt.Sprintf("/shmipc-reqreptest-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestClientServerRoundTrip(t *testing.T) {
	topic := uniqueTopic(t)
	defer ringbuffer.Unlink(topic + ".req")
	defer ringbuffer.Unlink(topic + ".rep")

	srv, err := NewServer[uint64, uint64](topic)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, func(req uint64) uint64 {
			return req * 2
		})
	}()

	cli, err := NewClient[uint64, uint64](topic)
	require.NoError(t, err)
	defer cli.Close()

	rep, err := cli.Call(21, 2*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 42, rep)

	cancel()
	<-done
}

func TestClientCallTimesOutWithNoServer(t *testing.T) {
	topic := uniqueTopic(t)
	defer ringbuffer.Unlink(topic + ".req")
	defer ringbuffer.Unlink(topic + ".rep")

	cli, err := NewClient[uint64, uint64](topic)
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.Call(1, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestClientCallSucceedsWhenServerStartsLate(t *testing.T) {
	topic := uniqueTopic(t)
	defer ringbuffer.Unlink(topic + ".req")
	defer ringbuffer.Unlink(topic + ".rep")

	// Client constructed and calling before any Server exists.
	cli, err := NewClient[uint64, uint64](topic)
	require.NoError(t, err)
	defer cli.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		srv, err := NewServer[uint64, uint64](topic)
		if err != nil {
			return
		}
		defer srv.Close()
		srv.Serve(ctx, func(req uint64) uint64 {
			return req * 2
		})
	}()

	rep, err := cli.Call(21, 2*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 42, rep)
}
