// Package model holds value types shared across the triangulation engine's
// packages: dimensionality, the wire index-width tag, and the sentinel
// infinite-vertex index.
package model

import "fmt"

// Dimension is the number of spatial axes a run operates over. The engine
// only supports 2 and 3 per spec.
type Dimension int

const (
	Dim2 Dimension = 2
	Dim3 Dimension = 3
)

// Valid reports whether d is a supported dimension.
func (d Dimension) Valid() bool {
	return d == Dim2 || d == Dim3
}

func (d Dimension) String() string {
	return fmt.Sprintf("%dD", int(d))
}

// CellWidth is the number of vertices (and neighbor cells) per simplex: D+1.
func (d Dimension) CellWidth() int {
	return int(d) + 1
}

// IndexKind tags the bit width and signedness of indices carried in a wire
// frame, per §6's dtype_code.
type IndexKind uint8

const (
	IndexU32 IndexKind = 0
	IndexU64 IndexKind = 1
	IndexI32 IndexKind = 2
	IndexI64 IndexKind = 3
)

func (k IndexKind) String() string {
	switch k {
	case IndexU32:
		return "u32"
	case IndexU64:
		return "u64"
	case IndexI32:
		return "i32"
	case IndexI64:
		return "i64"
	default:
		return fmt.Sprintf("IndexKind(%d)", uint8(k))
	}
}

// Width returns the byte width of one index value under this kind.
func (k IndexKind) Width() int {
	switch k {
	case IndexU32, IndexI32:
		return 4
	case IndexU64, IndexI64:
		return 8
	default:
		return 0
	}
}

// ChooseIndexKind picks the narrowest unsigned index kind that can address
// npts points, mirroring the consolidator's "fits in 32 bits" rule in §4.4:
// u32 is used only while the global point count times 10 still fits in a
// uint32, leaving headroom for ghost-point duplication during exchange.
func ChooseIndexKind(npts uint64) IndexKind {
	if npts*10 < (1 << 32) {
		return IndexU32
	}
	return IndexU64
}

// InfiniteIndex returns the canonical sentinel index for the infinite vertex
// under a given index kind, per §4.4: 2^32-1 for the narrow encoding, 2^64-1
// otherwise.
func InfiniteIndex(kind IndexKind) uint64 {
	if kind == IndexU32 || kind == IndexI32 {
		return 1<<32 - 1
	}
	return 1<<64 - 1
}
