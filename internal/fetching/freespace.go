package fetching

import "golang.org/x/sys/unix"

var statfs = unix.Statfs

// availableBytes reports the free space on the filesystem holding path.
func availableBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
