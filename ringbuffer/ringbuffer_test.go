package ringbuffer

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("/shmipc-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func putU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func getU32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// scenario 1: single publisher, single subscriber, scalar.
func TestScenario_SinglePublisherSingleSubscriber(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	pub, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(putU32(42)))

	sub, err := Open(name)
	require.NoError(t, err)
	defer sub.Close()

	data, err := sub.Read(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, uint32(42), getU32(data))
}

// scenario 2: no publisher yet.
func TestScenario_NoPublisherYet(t *testing.T) {
	name := uniqueName(t)
	_, err := Open(name)
	require.Error(t, err) // segment.ErrNotFound: facade turns this into NoFresh
}

// scenario 3: expiry.
func TestScenario_Expiry(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	pub, err := New(name, 4, 2, 0)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(putU32(7)))
	time.Sleep(200 * time.Millisecond)

	_, err = pub.Read(100 * time.Millisecond)
	require.ErrorIs(t, err, ErrNoFresh)
}

// scenario 4: multiple publishers in sequence.
func TestScenario_MultiplePublishersSequential(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	pubA, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer pubA.Close()

	pubB, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer pubB.Close()

	require.NoError(t, pubA.Publish(putU32(100)))
	require.NoError(t, pubB.Publish(putU32(200)))

	data, err := pubB.Read(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, uint32(200), getU32(data))
}

// scenario 5: wait-and-wake.
func TestScenario_WaitAndWake(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	pub, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Open(name)
	require.NoError(t, err)
	defer sub.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, pub.Publish(putU32(9)))
	}()

	woke := sub.WaitFor(1 * time.Second)
	wg.Wait()
	require.True(t, woke)

	data, err := sub.Read(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, uint32(9), getU32(data))
}

// scenario 6: timeout.
func TestScenario_Timeout(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	pub, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer pub.Close()

	start := time.Now()
	woke := pub.WaitFor(50 * time.Millisecond)
	elapsed := time.Since(start)

	require.False(t, woke)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, 200*time.Millisecond)
}

// P1: no value loss under single writer, single reader, read-after-each-publish.
func TestProperty_NoValueLossSingleWriterSingleReader(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	rb, err := New(name, 4, 4, 0)
	require.NoError(t, err)
	defer rb.Close()

	for i := uint32(1); i <= 20; i++ {
		require.NoError(t, rb.Publish(putU32(i)))
		data, err := rb.Read(2 * time.Second)
		require.NoError(t, err)
		require.Equal(t, i, getU32(data))
	}
}

// P2: newest-wins under a fast single writer and a non-waiting reader.
func TestProperty_NewestWins(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	rb, err := New(name, 4, 4, 0)
	require.NoError(t, err)
	defer rb.Close()

	var lastSeen uint32
	for i := uint32(1); i <= 200; i++ {
		require.NoError(t, rb.Publish(putU32(i)))
		if data, err := rb.Read(2 * time.Second); err == nil {
			v := getU32(data)
			require.GreaterOrEqual(t, v, lastSeen)
			lastSeen = v
		}
	}
}

// P4: expiry horizon is enforced at an arbitrary delta past it.
func TestProperty_ExpiryHorizon(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	rb, err := New(name, 4, 2, 0)
	require.NoError(t, err)
	defer rb.Close()

	horizon := 100 * time.Millisecond
	require.NoError(t, rb.Publish(putU32(1)))

	_, err = rb.Read(horizon)
	require.NoError(t, err)

	time.Sleep(horizon + 50*time.Millisecond)
	_, err = rb.Read(horizon)
	require.ErrorIs(t, err, ErrNoFresh)
}

// P5: multi-writer serialization — every stamped timestamp is strictly
// increasing in the order writers actually acquired the mutex, which we
// approximate here by requiring that concurrent publishes never panic
// or corrupt payloads, and that the final read is one of the published
// values with a valid embedded sequence.
func TestProperty_MultiWriterSerialization(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	const writers = 4
	const perWriter = 25

	rb, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer rb.Close()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handle, err := Open(name)
			require.NoError(t, err)
			defer handle.Close()
			for i := 0; i < perWriter; i++ {
				seq := uint32(w*perWriter + i + 1)
				_ = handle.Publish(putU32(seq)) // AllocationFailed under contention is acceptable, not fatal
			}
		}(w)
	}
	wg.Wait()

	data, err := rb.Read(2 * time.Second)
	require.NoError(t, err)
	require.NotZero(t, getU32(data))
	require.LessOrEqual(t, getU32(data), uint32(writers*perWriter))
}

// checksumPayload encodes a sequence number alongside a checksum
// derived from it, so that a reader can detect a torn write: a slot
// that is half one publish and half another will, overwhelmingly
// likely, fail this check.
func putChecksumPayload(seq uint64) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], seq)
	binary.LittleEndian.PutUint64(b[8:16], ^seq)
	return b
}

func checkChecksumPayload(b []byte) (seq uint64, ok bool) {
	seq = binary.LittleEndian.Uint64(b[0:8])
	sum := binary.LittleEndian.Uint64(b[8:16])
	return seq, sum == ^seq
}

// P3: no torn timestamps/payloads — concurrent writers against a
// buf_num==1 ring must never let a reader observe a slot that is a
// mixture of two different publishes, even though they all contend for
// the single slot's full reserve+copy+stamp critical section.
func TestProperty_NoTornTimestamps(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	const writers = 8
	const perWriter = 50

	rb, err := New(name, 16, 1, 0)
	require.NoError(t, err)
	defer rb.Close()

	stop := make(chan struct{})
	var readErrs int32
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handle, err := Open(name)
			require.NoError(t, err)
			defer handle.Close()
			for i := 0; i < perWriter; i++ {
				seq := uint64(w)<<32 | uint64(i)
				require.NoError(t, handle.Publish(putChecksumPayload(seq)))
			}
		}(i)
	}

	// A concurrent reader samples throughout the write storm above,
	// rather than only once after wg.Wait(), since a torn write that
	// only ever exists mid-storm would otherwise go unobserved.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if data, err := rb.Read(2 * time.Second); err == nil {
				if _, ok := checkChecksumPayload(data); !ok {
					atomic.AddInt32(&readErrs, 1)
				}
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()

	require.Zero(t, atomic.LoadInt32(&readErrs), "observed a torn payload")
}

// buf_num==1 degenerates to last-writer-wins with full mutual exclusion
// (spec.md §4.2.3): concurrent writers must never tear a write into the
// single shared slot.
func TestProperty_SingleSlotMutualExclusion(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	const writers = 8
	const perWriter = 100

	rb, err := New(name, 16, 1, 0)
	require.NoError(t, err)
	defer rb.Close()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handle, err := Open(name)
			require.NoError(t, err)
			defer handle.Close()
			for i := 0; i < perWriter; i++ {
				seq := uint64(w)<<32 | uint64(i)
				require.NoError(t, handle.Publish(putChecksumPayload(seq)))
			}
		}(w)
	}
	wg.Wait()

	data, err := rb.Read(2 * time.Second)
	require.NoError(t, err)
	_, ok := checkChecksumPayload(data)
	require.True(t, ok, "observed a torn payload in the single shared slot")
}

// P6: crash-safe attach — destroying the creating handle without
// unlinking, then reattaching under the same name, must not
// re-initialize the header.
func TestProperty_CrashSafeAttach(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	first, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	require.NoError(t, first.Publish(putU32(77)))
	require.NoError(t, first.Close()) // simulates drop without unlink

	second, err := New(name, 4, 3, 0)
	require.NoError(t, err)
	defer second.Close()

	data, err := second.Read(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, uint32(77), getU32(data))
}

// P7: lazy init race — n publishers concurrently attaching to a
// non-existent segment must all succeed with consistent dimensions and
// no deadlock.
func TestProperty_LazyInitRace(t *testing.T) {
	name := uniqueName(t)
	defer Unlink(name)

	const n = 8
	var wg sync.WaitGroup
	handles := make([]*RingBuffer, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = New(name, 8, 4, 0)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, uint64(8), handles[i].ElementSize())
		require.Equal(t, uint64(4), handles[i].BufNum())
		handles[i].Close()
	}
}
