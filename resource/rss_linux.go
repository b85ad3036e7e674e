//go:build linux

package resource

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// maxRSSBytes converts ru_maxrss, reported in kilobytes on Linux.
func maxRSSBytes(v int64) int64 { return v * 1024 }

// currentRSS reads the resident page count from /proc/self/statm.
func currentRSS() (int64, error) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, err
	}
	fields := bytes.Fields(data)
	if len(fields) < 2 {
		return 0, fmt.Errorf("unexpected statm format %q", data)
	}
	pages, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0, err
	}
	return pages * int64(unix.Getpagesize()), nil
}
