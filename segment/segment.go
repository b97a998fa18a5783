// Package segment implements the lowest layer of shmipc: creating,
// opening, mapping, and unlinking a named POSIX-style shared-memory
// region (spec.md §4.1). It owns no protocol — no header, no slots, no
// locking — only the OS-level rendezvous by name.
package segment

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// MaxNameLen is the conservative, platform-independent bound on segment
// names (spec.md §6: "conservatively 64 bytes").
const MaxNameLen = 64

// DefaultPerm is applied on creation when the caller does not specify a
// mode (spec.md §6: default 0666).
const DefaultPerm = 0o666

// Segment is a handle to a named shared-memory region mapped into this
// process's address space. A Segment is jointly owned by every process
// that has it open; Close only unmaps it (spec.md §4.1 Rationale: "not
// unlinking on drop is deliberate").
type Segment struct {
	mu        sync.Mutex
	name      string
	data      []byte // mmap'd region; len(data) is the mapped size
	fd        int
	ino       uint64
	isCreator bool
	closed    bool
}

// Ino returns the inode number backing this mapping at attach time,
// used by Changed to detect that the shm namespace entry has since been
// unlinked and recreated out from under a live handle (spec.md §4.2.6).
func (s *Segment) Ino() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ino
}

// validateName enforces spec.md §6's shm namespace rules: begins with
// "/", contains no further "/", and fits MaxNameLen bytes.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidName, MaxNameLen)
	}
	if !strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: name must begin with '/'", ErrInvalidName)
	}
	if strings.Contains(name[1:], "/") {
		return fmt.Errorf("%w: name must contain no further '/'", ErrInvalidName)
	}
	return nil
}

// Size reports the number of bytes mapped.
func (s *Segment) Size() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uintptr(len(s.data))
}

// Base returns a pointer to the first byte of the mapped region. It is
// valid only between a successful open/create and the matching Close;
// the header and ring buffer layers compute all further offsets from
// this pointer plus buf_num/element_size, never storing pointers of
// their own (spec.md §3, §6).
func (s *Segment) Base() unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&s.data[0])
}

// Bytes exposes the mapped region as a byte slice for callers that want
// bounds-checked access instead of raw pointer arithmetic.
func (s *Segment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// IsCreator reports whether this handle won the race to create the
// segment, as opposed to attaching to one that already existed.
func (s *Segment) IsCreator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isCreator
}

// Name returns the segment's rendezvous name.
func (s *Segment) Name() string {
	return s.name
}
