package diskio

import "errors"

const (
	oneKB = 1 << 10
	oneMB = oneKB << 10
	oneGB = oneMB << 10

	// SegmentSize bounds how many pages live in one on-disk segment file.
	SegmentSize = 1 * oneGB
	// PageSize is fixed at build time; see internal/common.PageSize.
	PageSize = 4096
	// MaxPagesPerSegment is how many fixed PageSize pages fit in a segment.
	MaxPagesPerSegment = SegmentSize / PageSize

	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrInvalidPageID = errors.New("diskio: invalid page id")
	ErrBadBufferSize = errors.New("diskio: buffer size != page size")
	ErrShortWrite    = errors.New("diskio: short write")
)
