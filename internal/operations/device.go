package operations

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kogorman/sdclone/internal/record"
)

// deviceSize returns the usable size of the file in bytes. For block devices
// the stat size is zero, so the BLKGETSIZE64 ioctl is consulted instead;
// regular files (used by tests) report their stat size.
func deviceSize(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.Mode().IsRegular() {
		return st.Size(), nil
	}
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("BLKGETSIZE64 %s: %w", f.Name(), err)
	}
	return int64(size), nil
}

// readFirstMeg captures the raw first megabyte of the device: the
// partition-table signature and bootloader region.
func readFirstMeg(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}
	defer f.Close()

	size, err := deviceSize(f)
	if err != nil {
		return nil, err
	}
	if size < record.FirstMegSize {
		return nil, fmt.Errorf("device %s is %d bytes, smaller than the %d-byte capture region",
			path, size, record.FirstMegSize)
	}

	buf := make([]byte, record.FirstMegSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read first megabyte of %s: %w", path, err)
	}
	return buf, nil
}

// writeFirstMeg writes the captured region back to the start of the device
// and syncs it to stable storage.
func writeFirstMeg(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open device %s: %w", path, err)
	}
	defer f.Close()

	size, err := deviceSize(f)
	if err != nil {
		return err
	}
	if size < int64(len(data)) {
		return fmt.Errorf("device %s is %d bytes, smaller than the %d-byte capture",
			path, size, len(data))
	}

	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write first megabyte of %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}
