package dispatch

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// tmpDir is resolved lazily, once, on first use rather than at process
// start.
var (
	tmpDirOnce sync.Once
	tmpDir     string
)

func resolveTmpDir() string {
	tmpDirOnce.Do(func() {
		tmpDir = os.Getenv("TMPDIR")
		if tmpDir == "" {
			tmpDir = os.TempDir()
		}
	})
	return tmpDir
}

// spillToTempFile ingests a POST body at or above
// httpproto.SmallBodyThreshold into an unlinked temporary file rather than
// the connection's heap-backed body buffer The file is
// unlinked immediately after creation: its only remaining reference is the
// open descriptor, so it vanishes on close with no cleanup step for the
// caller to forget. mmap exposes it to the handler as an ordinary []byte,
// matching how a heap-ingested body is exposed.
func spillToTempFile(contentLength int) ([]byte, func(), error) {
	dir := resolveTmpDir()
	f, err := os.CreateTemp(dir, "coroserve-body-*")
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: create temp file: %w", err)
	}
	name := f.Name()
	if err := os.Remove(name); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("dispatch: unlink temp file: %w", err)
	}

	if err := f.Truncate(int64(contentLength)); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("dispatch: truncate temp file: %w", err)
	}

	fd := int(f.Fd())
	data, err := unix.Mmap(fd, 0, contentLength, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("dispatch: mmap temp file: %w", err)
	}

	cleanup := func() {
		unix.Munmap(data)
		f.Close()
	}
	return data, cleanup, nil
}
