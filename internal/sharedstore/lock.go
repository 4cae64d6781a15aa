package sharedstore

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// lockRetryInterval is how often to retry lock acquisition.
const lockRetryInterval = 5 * time.Millisecond

// errLockTimeout is returned when another process holds the lock too long.
var errLockTimeout = errors.New("container lock timeout")

// acquireLock takes an advisory flock on lockPath, retrying until timeout.
// exclusive=true for writes, false for reads.
func acquireLock(lockPath string, exclusive bool, timeout time.Duration) (*os.File, error) {
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	how := unix.LOCK_SH | unix.LOCK_NB
	if exclusive {
		how = unix.LOCK_EX | unix.LOCK_NB
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(lockFile.Fd()), how)
		if err == nil {
			return lockFile, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
			_ = lockFile.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			_ = lockFile.Close()
			return nil, fmt.Errorf("%w after %v", errLockTimeout, timeout)
		}
		time.Sleep(lockRetryInterval)
	}
}

// releaseLock releases the advisory lock.
func releaseLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}
	_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	_ = lockFile.Close()
}
