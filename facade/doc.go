// Package facade wraps ringbuffer with Go generics so callers publish
// and subscribe to typed values instead of raw byte slices.
//
// Publisher[T] and Subscriber[T] require T to be trivially copyable: no
// pointers, interfaces, maps, slices, channels, funcs, strings, or
// unsafe.Pointer anywhere in T, and T's natural alignment must not
// exceed what the segment layout guarantees (8 bytes). Violations are
// rejected at construction, never at publish or read time.
//
//	type Tick struct {
//		Seq   uint64
//		Price float64
//	}
//
//	pub, err := facade.NewPublisher[Tick]("/prices")
//	...
//	err = pub.Publish(Tick{Seq: 1, Price: 101.5})
//
//	sub, err := facade.NewSubscriber[Tick]("/prices")
//	...
//	tick, err := sub.Read()
//
// VectorPublisher/VectorSubscriber serve payloads whose length varies
// call to call, trading the core's fixed-stride guarantee for
// transparent segment recreation on growth.
package facade
