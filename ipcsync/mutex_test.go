package ipcsync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMutexMutualExclusion(t *testing.T) {
	var word uint32
	m := MutexAt(&word)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			defer m.Unlock()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestCondSignalWakesWaiter(t *testing.T) {
	var mword, cword uint32
	m := MutexAt(&mword)
	c := CondAt(&cword)

	woke := make(chan bool, 1)
	go func() {
		m.Lock()
		ok := c.WaitTimeout(m, 2*time.Second)
		m.Unlock()
		woke <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	c.Signal()

	select {
	case ok := <-woke:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestCondWaitTimeoutExpires(t *testing.T) {
	var mword, cword uint32
	m := MutexAt(&mword)
	c := CondAt(&cword)

	m.Lock()
	start := time.Now()
	ok := c.WaitTimeout(m, 50*time.Millisecond)
	elapsed := time.Since(start)
	m.Unlock()

	require.False(t, ok)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}
