package action

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shmipc-go/shmipc/ringbuffer"
	"github.com/stretchr/testify/require"
)

func uniqueTopic(t *testing.T) string {
	return fmt.Sprintf("/shmipc-actiontest-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestClientServerGoalFeedbackResult(t *testing.T) {
	topic := uniqueTopic(t)
	defer ringbuffer.Unlink(topic + ".goal")
	defer ringbuffer.Unlink(topic + ".feedback")
	defer ringbuffer.Unlink(topic + ".result")

	srv, err := NewServer[int, int, int](topic)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, func(goal int, feedback FeedbackFunc[int]) int {
			for i := 1; i <= goal; i++ {
				feedback(i)
				time.Sleep(10 * time.Millisecond)
			}
			return goal * goal
		})
	}()

	cli, err := NewClient[int, int, int](topic)
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.SendGoal(3)
	require.NoError(t, err)

	result, err := cli.Result(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 9, result)

	cancel()
	<-done
}

func TestClientResultTimesOutWithNoServer(t *testing.T) {
	topic := uniqueTopic(t)
	defer ringbuffer.Unlink(topic + ".goal")
	defer ringbuffer.Unlink(topic + ".feedback")
	defer ringbuffer.Unlink(topic + ".result")

	cli, err := NewClient[int, int, int](topic)
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.SendGoal(1)
	require.NoError(t, err)

	_, err = cli.Result(100 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestClientResultSucceedsWhenServerStartsLate(t *testing.T) {
	topic := uniqueTopic(t)
	defer ringbuffer.Unlink(topic + ".goal")
	defer ringbuffer.Unlink(topic + ".feedback")
	defer ringbuffer.Unlink(topic + ".result")

	// Client constructed and sending a goal before any Server exists.
	cli, err := NewClient[int, int, int](topic)
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.SendGoal(3)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		srv, err := NewServer[int, int, int](topic)
		if err != nil {
			return
		}
		defer srv.Close()
		srv.Serve(ctx, func(goal int, feedback FeedbackFunc[int]) int {
			return goal * goal
		})
	}()

	result, err := cli.Result(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 9, result)
}
