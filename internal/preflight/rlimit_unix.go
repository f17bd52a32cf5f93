//go:build unix

package preflight

import (
	"golang.org/x/sys/unix"
)

// checkFileDescriptors verifies the soft RLIMIT_NOFILE covers sockets.
func checkFileDescriptors(sockets int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to read RLIMIT_NOFILE: " + err.Error(),
		}
	}

	actual := int(min(uint64(limit.Cur), 1<<31-1)) //nolint:unconvert // int64 on some BSDs
	return fdCheck(sockets, actual)
}
