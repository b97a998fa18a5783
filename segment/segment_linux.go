//go:build linux

package segment

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// shmDir is where glibc's own shm_open(3) implementation keeps named
// POSIX shared-memory objects on Linux (spec.md §6, GLOSSARY). We use
// the same convention — open("/dev/shm/"+name) — rather than the actual
// shm_open(3) libc call, so this package has no cgo dependency.
const shmDir = "/dev/shm"

func shmPath(name string) string {
	return shmDir + name
}

func mapErrno(err error) error {
	switch err {
	case unix.EACCES, unix.EPERM:
		return ErrPermissionDenied
	case unix.ENOMEM, unix.ENOSPC:
		return ErrOutOfMemory
	case unix.ENOENT:
		return ErrNotFound
	case unix.ENOTSUP, unix.EOPNOTSUPP:
		return ErrUnsupported
	default:
		return err
	}
}

// OpenOrCreate implements spec.md §4.1's open_or_create: attach if name
// already exists (failing with ErrSizeMismatch if the existing size
// differs), otherwise create it at exactly size bytes. perm is applied
// on creation only; pass 0 to use DefaultPerm.
func OpenOrCreate(name string, size uintptr, perm uint32) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: size must be > 0", ErrInvalidName)
	}
	if perm == 0 {
		perm = DefaultPerm
	}
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, perm)
	isCreator := true
	if err != nil {
		if err != unix.EEXIST {
			return nil, fmt.Errorf("segment: create %s: %w", name, mapErrno(err))
		}
		isCreator = false
		fd, err = unix.Open(path, unix.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("segment: open %s: %w", name, mapErrno(err))
		}
	}

	var st unix.Stat_t
	if isCreator {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("segment: ftruncate %s: %w", name, mapErrno(err))
		}
		if err := unix.Fstat(fd, &st); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("segment: fstat %s: %w", name, mapErrno(err))
		}
	} else {
		// A racing creator may not have ftruncated the object yet: an
		// empty object is re-checked for up to 500ms before sizes are
		// compared.
		for deadline := time.Now().Add(500 * time.Millisecond); ; time.Sleep(time.Millisecond) {
			if err := unix.Fstat(fd, &st); err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("segment: fstat %s: %w", name, mapErrno(err))
			}
			if st.Size != 0 || time.Now().After(deadline) {
				break
			}
		}
		if uintptr(st.Size) != size {
			unix.Close(fd)
			return nil, fmt.Errorf("segment: %s is %d bytes, want %d: %w", name, st.Size, size, ErrSizeMismatch)
		}
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: mmap %s: %w", name, mapErrno(err))
	}

	return &Segment{
		name:      name,
		data:      data,
		fd:        fd,
		ino:       st.Ino,
		isCreator: isCreator,
	}, nil
}

// OpenReadWrite implements spec.md §4.1's open_read_write: attach to an
// existing segment, discovering its size from the OS rather than
// requiring the caller to know buf_num/element_size in advance. This is
// how a Subscriber attaches without having created the segment
// (spec.md §4.2.6).
func OpenReadWrite(name string) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", name, mapErrno(err))
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: fstat %s: %w", name, mapErrno(err))
	}
	size := int(st.Size)
	if size == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: %s is empty: %w", name, ErrNotFound)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: mmap %s: %w", name, mapErrno(err))
	}

	return &Segment{
		name: name,
		data: data,
		fd:   fd,
		ino:  st.Ino,
	}, nil
}

// Changed reports whether the shm namespace entry s attached to has
// since been unlinked and recreated (spec.md §4.2.6): s's own mapping
// stays valid and readable regardless, but no longer reflects the
// current segment. Returns ErrNotFound if the name currently resolves
// to nothing at all (unlinked and not yet recreated).
func Changed(s *Segment) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(shmPath(s.Name()), &st); err != nil {
		if err == unix.ENOENT {
			return true, ErrNotFound
		}
		return false, mapErrno(err)
	}
	return st.Ino != s.Ino(), nil
}

// Unlink is the administrative removal of a segment from the shm
// namespace. It is safe to call while other handles still have the
// segment mapped: per POSIX semantics the mapping stays valid until
// each holder calls Close (spec.md §4.1).
func Unlink(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := unix.Unlink(shmPath(name)); err != nil {
		if err == unix.ENOENT {
			return fmt.Errorf("segment: unlink %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("segment: unlink %s: %w", name, mapErrno(err))
	}
	return nil
}

// Close unmaps the segment and closes the file descriptor. It never
// unlinks the shm object — that is always a separate, administrative
// act (spec.md §4.1: "drop: unmap only; do not unlink").
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if len(s.data) > 0 {
		err = unix.Munmap(s.data)
		s.data = nil
	}
	if cerr := unix.Close(s.fd); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
