//go:build unix && !linux

package resource

// maxRSSBytes converts ru_maxrss, reported in bytes on BSD and Darwin.
func maxRSSBytes(v int64) int64 { return v }

// currentRSS is unavailable without procfs; the peak is used instead.
func currentRSS() (int64, error) { return 0, nil }
