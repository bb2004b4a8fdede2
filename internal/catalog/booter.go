package catalog

import (
	"os"

	"github.com/jyafoo/godb/internal/dberr"
)

// booterSuffix / booterTmpSuffix name the boot file and its staging
// file during an atomic update, matching the original's ".bt"/".bt_tmp"
// convention (spec.md §9 preserves this naming verbatim).
const (
	booterSuffix    = ".bt"
	booterTmpSuffix = ".bt_tmp"
)

// booter persists the catalog's single 8-byte anchor value (the first
// table's UID, 0 if empty) to <path>.bt, replacing it atomically via a
// temp-file write plus rename so a crash mid-update never leaves a
// torn anchor.
type booter struct {
	path string
}

func createBooter(path string) (*booter, error) {
	removeBadTmp(path)

	f, err := os.OpenFile(path+booterSuffix, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFileExists, "boot file already exists", err)
	}
	f.Close()
	return &booter{path: path}, nil
}

func openBooter(path string) (*booter, error) {
	removeBadTmp(path)

	if _, err := os.Stat(path + booterSuffix); err != nil {
		return nil, dberr.Wrap(dberr.KindFileNotExists, "boot file not found", err)
	}
	return &booter{path: path}, nil
}

func removeBadTmp(path string) {
	_ = os.Remove(path + booterTmpSuffix)
}

func (b *booter) load() ([]byte, error) {
	data, err := os.ReadFile(b.path + booterSuffix)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindFileCannotRW, "reading boot file", err)
	}
	return data, nil
}

func (b *booter) update(data []byte) error {
	tmpPath := b.path + booterTmpSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return dberr.Wrap(dberr.KindFileCannotRW, "writing boot temp file", err)
	}
	if err := os.Rename(tmpPath, b.path+booterSuffix); err != nil {
		return dberr.Wrap(dberr.KindFileCannotRW, "replacing boot file", err)
	}
	return nil
}
