package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Usage is the on-disk size of a set of named paths.
type Usage struct {
	ByName map[string]int64
	Total  int64
}

// Names returns the measured names in sorted order.
func (u *Usage) Names() []string {
	names := make([]string, 0, len(u.ByName))
	for n := range u.ByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DiskUsage sizes each named path. A path may be a file or a directory (summed recursively).
// Empty and missing paths are skipped; other errors are returned.
func DiskUsage(paths map[string]string) (*Usage, error) {
	u := &Usage{ByName: make(map[string]int64, len(paths))}
	for name, p := range paths {
		if p == "" || p == ":memory:" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		u.ByName[name] = n
		u.Total += n
	}
	return u, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
