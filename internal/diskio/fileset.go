package diskio

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSet names the on-disk segment files backing one relation (a heap
// table or a B+Tree index). Segments are Base, Base.1, Base.2, ...
// exactly as the teacher's LocalFileSet names them.
type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
	Key() string
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet is a directory + base file name on the local filesystem.
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	name := lfs.Base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", lfs.Base, segNo)
	}
	path := filepath.Join(lfs.Dir, name)
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("diskio: mkdir %s: %w", lfs.Dir, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("diskio: open segment %s: %w", path, err)
	}
	return f, nil
}

func (lfs LocalFileSet) Key() string {
	return filepath.Clean(lfs.Dir) + "|" + lfs.Base
}
