// Package wire implements the §6 byte formats carried on a worker's
// output channel to the master: one fixed 5x-uint64 header followed by
// four raw frames for a leaf's triangulation, and a second, simpler format
// for Voronoi volumes.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jqwang/partri/pkg/model"
)

// headerWords is the number of little-endian uint64 words in the
// triangulation header: (leaf_id, ncells, dtype_code, inf_idx, ncells_total).
const headerWords = 5

// LeafResult holds one leaf's serialized triangulation, decoded from or
// ready to be encoded into the §6 wire format.
type LeafResult struct {
	LeafID      uint64
	Kind        model.IndexKind
	InfIdx      uint64
	NCellsTotal uint64
	Cells       [][]uint64
	Neighbors   [][]uint64
	VertSort    [][]uint32
	CellSort    []uint64
	CellWidth   int // D+1
}

// EncodeLeafResult serializes r into the fixed header plus four frames.
func EncodeLeafResult(r *LeafResult) ([]byte, error) {
	ncells := uint64(len(r.Cells))
	width := r.Kind.Width()
	if width == 0 {
		return nil, fmt.Errorf("wire: unsupported index kind %v", r.Kind)
	}

	header := make([]byte, headerWords*8)
	binary.LittleEndian.PutUint64(header[0:8], r.LeafID)
	binary.LittleEndian.PutUint64(header[8:16], ncells)
	binary.LittleEndian.PutUint64(header[16:24], uint64(r.Kind))
	binary.LittleEndian.PutUint64(header[24:32], r.InfIdx)
	binary.LittleEndian.PutUint64(header[32:40], r.NCellsTotal)

	cellsFrame := make([]byte, 0, int(ncells)*r.CellWidth*width)
	for _, row := range r.Cells {
		for _, v := range row {
			cellsFrame = appendIndex(cellsFrame, v, width)
		}
	}

	neighborsFrame := make([]byte, 0, int(ncells)*r.CellWidth*width)
	for _, row := range r.Neighbors {
		for _, v := range row {
			neighborsFrame = appendIndex(neighborsFrame, v, width)
		}
	}

	vertSortFrame := make([]byte, 0, int(ncells)*r.CellWidth*4)
	for _, row := range r.VertSort {
		for _, v := range row {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, v)
			vertSortFrame = append(vertSortFrame, b...)
		}
	}

	cellSortFrame := make([]byte, 0, int(ncells)*8)
	for _, v := range r.CellSort {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		cellSortFrame = append(cellSortFrame, b...)
	}

	out := make([]byte, 0, len(header)+len(cellsFrame)+len(neighborsFrame)+len(vertSortFrame)+len(cellSortFrame))
	out = append(out, header...)
	out = append(out, cellsFrame...)
	out = append(out, neighborsFrame...)
	out = append(out, vertSortFrame...)
	out = append(out, cellSortFrame...)
	return out, nil
}

// DecodeLeafResult parses the §6 wire format. cellWidth is D+1, supplied
// by the caller since the header does not carry dimension.
func DecodeLeafResult(data []byte, cellWidth int) (*LeafResult, error) {
	if len(data) < headerWords*8 {
		return nil, fmt.Errorf("wire: truncated header, got %d bytes", len(data))
	}
	leafID := binary.LittleEndian.Uint64(data[0:8])
	ncells := binary.LittleEndian.Uint64(data[8:16])
	kind := model.IndexKind(binary.LittleEndian.Uint64(data[16:24]))
	infIdx := binary.LittleEndian.Uint64(data[24:32])
	ncellsTotal := binary.LittleEndian.Uint64(data[32:40])

	width := kind.Width()
	if width == 0 {
		return nil, fmt.Errorf("wire: unsupported dtype_code %d", kind)
	}

	off := headerWords * 8
	cells, off, err := readIndexFrame(data, off, int(ncells), cellWidth, width)
	if err != nil {
		return nil, fmt.Errorf("wire: cells frame: %w", err)
	}
	neighbors, off, err := readIndexFrame(data, off, int(ncells), cellWidth, width)
	if err != nil {
		return nil, fmt.Errorf("wire: neighbors frame: %w", err)
	}
	vertSort, off, err := readU32Frame(data, off, int(ncells), cellWidth)
	if err != nil {
		return nil, fmt.Errorf("wire: vert_sort frame: %w", err)
	}
	cellSort, _, err := readU64Frame(data, off, int(ncells))
	if err != nil {
		return nil, fmt.Errorf("wire: cell_sort frame: %w", err)
	}

	return &LeafResult{
		LeafID:      leafID,
		Kind:        kind,
		InfIdx:      infIdx,
		NCellsTotal: ncellsTotal,
		Cells:       cells,
		Neighbors:   neighbors,
		VertSort:    vertSort,
		CellSort:    cellSort,
		CellWidth:   cellWidth,
	}, nil
}

func appendIndex(buf []byte, v uint64, width int) []byte {
	b := make([]byte, width)
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	}
	return append(buf, b...)
}

func readIndexFrame(data []byte, off, rows, cols, width int) ([][]uint64, int, error) {
	need := rows * cols * width
	if off+need > len(data) {
		return nil, off, fmt.Errorf("need %d bytes at offset %d, have %d", need, off, len(data))
	}
	out := make([][]uint64, rows)
	for r := 0; r < rows; r++ {
		row := make([]uint64, cols)
		for c := 0; c < cols; c++ {
			switch width {
			case 4:
				row[c] = uint64(binary.LittleEndian.Uint32(data[off : off+4]))
				off += 4
			case 8:
				row[c] = binary.LittleEndian.Uint64(data[off : off+8])
				off += 8
			}
		}
		out[r] = row
	}
	return out, off, nil
}

func readU32Frame(data []byte, off, rows, cols int) ([][]uint32, int, error) {
	need := rows * cols * 4
	if off+need > len(data) {
		return nil, off, fmt.Errorf("need %d bytes at offset %d, have %d", need, off, len(data))
	}
	out := make([][]uint32, rows)
	for r := 0; r < rows; r++ {
		row := make([]uint32, cols)
		for c := 0; c < cols; c++ {
			row[c] = binary.LittleEndian.Uint32(data[off : off+4])
			off += 4
		}
		out[r] = row
	}
	return out, off, nil
}

func readU64Frame(data []byte, off, rows int) ([]uint64, int, error) {
	need := rows * 8
	if off+need > len(data) {
		return nil, off, fmt.Errorf("need %d bytes at offset %d, have %d", need, off, len(data))
	}
	out := make([]uint64, rows)
	for r := 0; r < rows; r++ {
		out[r] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	return out, off, nil
}

// EncodeVolumes serializes a leaf's Voronoi volumes: one uint64 leaf_id
// followed by norig little-endian float64 values, in owned-point order.
func EncodeVolumes(leafID uint64, volumes []float64) []byte {
	out := make([]byte, 8+len(volumes)*8)
	binary.LittleEndian.PutUint64(out[0:8], leafID)
	for i, v := range volumes {
		binary.LittleEndian.PutUint64(out[8+i*8:8+i*8+8], math.Float64bits(v))
	}
	return out
}

// DecodeVolumes parses the volumes wire format produced by EncodeVolumes.
func DecodeVolumes(data []byte) (leafID uint64, volumes []float64, err error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("wire: truncated volumes header, got %d bytes", len(data))
	}
	leafID = binary.LittleEndian.Uint64(data[0:8])
	rest := data[8:]
	if len(rest)%8 != 0 {
		return 0, nil, fmt.Errorf("wire: volumes frame length %d not a multiple of 8", len(rest))
	}
	volumes = make([]float64, len(rest)/8)
	for i := range volumes {
		volumes[i] = math.Float64frombits(binary.LittleEndian.Uint64(rest[i*8 : i*8+8]))
	}
	return leafID, volumes, nil
}

// Message is the in-process mailbox envelope exchanged between partition
// workers during a round, matching §6's inter-worker message tuple
// `(target_leaf_id, source_leaf_id, global_indices[], neighbor_ids[],
// left_edges[], right_edges[])`: a batch of ghost points sent from
// SourceLeaf to TargetLeaf, plus SourceLeaf's current neighbor set so the
// receiver can transitively learn about leaves it has not yet exchanged
// with. A nil GlobalIdx (with NeighborIDs/LeftEdges/RightEdges still
// populated) is the explicit "nothing to send, but still announcing
// neighbors" message; a wholly empty Message is the explicit None padding
// that keeps per-round message counts deterministic. In-process delivery
// passes Message by value through exchange.Mailbox queues;
// EncodeMessage/DecodeMessage give it a byte encoding that no other
// package in this module calls.
type Message struct {
	TargetLeaf  uint64
	SourceLeaf  uint64
	GlobalIdx   []uint64
	Coords      [][]float64 // len(Coords) == len(GlobalIdx), each of length dim
	NeighborIDs []uint64
	LeftEdges   [][]float64 // len == len(NeighborIDs), each of length dim
	RightEdges  [][]float64
}

// EncodeMessage serializes a Message as a byte frame: a
// 5-uint64 header (target_leaf, source_leaf, npts, nnbrs, dim) followed by
// the global-index frame (u64), the coordinate frame (row-major float64),
// the neighbor-id frame (u64), and the two edge frames (row-major float64,
// nnbrs x dim each).
func EncodeMessage(m *Message, dim int) []byte {
	npts := len(m.GlobalIdx)
	nnbrs := len(m.NeighborIDs)
	out := make([]byte, 0, 40+npts*8+npts*dim*8+nnbrs*8+2*nnbrs*dim*8)

	header := make([]byte, 40)
	binary.LittleEndian.PutUint64(header[0:8], m.TargetLeaf)
	binary.LittleEndian.PutUint64(header[8:16], m.SourceLeaf)
	binary.LittleEndian.PutUint64(header[16:24], uint64(npts))
	binary.LittleEndian.PutUint64(header[24:32], uint64(nnbrs))
	binary.LittleEndian.PutUint64(header[32:40], uint64(dim))
	out = append(out, header...)

	for _, v := range m.GlobalIdx {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		out = append(out, b...)
	}
	for _, p := range m.Coords {
		for _, c := range p {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, math.Float64bits(c))
			out = append(out, b...)
		}
	}
	for _, v := range m.NeighborIDs {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		out = append(out, b...)
	}
	for _, edges := range [][][]float64{m.LeftEdges, m.RightEdges} {
		for _, e := range edges {
			for _, c := range e {
				b := make([]byte, 8)
				binary.LittleEndian.PutUint64(b, math.Float64bits(c))
				out = append(out, b...)
			}
		}
	}
	return out
}

// DecodeMessage parses the format produced by EncodeMessage.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < 40 {
		return nil, fmt.Errorf("wire: truncated message header, got %d bytes", len(data))
	}
	targetLeaf := binary.LittleEndian.Uint64(data[0:8])
	sourceLeaf := binary.LittleEndian.Uint64(data[8:16])
	npts := int(binary.LittleEndian.Uint64(data[16:24]))
	nnbrs := int(binary.LittleEndian.Uint64(data[24:32]))
	dim := int(binary.LittleEndian.Uint64(data[32:40]))

	off := 40
	idxFrame, off, err := readU64Frame(data, off, npts)
	if err != nil {
		return nil, fmt.Errorf("wire: message global_idx frame: %w", err)
	}

	coords, off, err := readFloatRows(data, off, npts, dim)
	if err != nil {
		return nil, fmt.Errorf("wire: message coords frame: %w", err)
	}

	nbrIDs, off, err := readU64Frame(data, off, nnbrs)
	if err != nil {
		return nil, fmt.Errorf("wire: message neighbor_ids frame: %w", err)
	}

	leftEdges, off, err := readFloatRows(data, off, nnbrs, dim)
	if err != nil {
		return nil, fmt.Errorf("wire: message left_edges frame: %w", err)
	}
	rightEdges, _, err := readFloatRows(data, off, nnbrs, dim)
	if err != nil {
		return nil, fmt.Errorf("wire: message right_edges frame: %w", err)
	}

	return &Message{
		TargetLeaf:  targetLeaf,
		SourceLeaf:  sourceLeaf,
		GlobalIdx:   idxFrame,
		Coords:      coords,
		NeighborIDs: nbrIDs,
		LeftEdges:   leftEdges,
		RightEdges:  rightEdges,
	}, nil
}

func readFloatRows(data []byte, off, rows, cols int) ([][]float64, int, error) {
	need := rows * cols * 8
	if off+need > len(data) {
		return nil, off, fmt.Errorf("need %d bytes at offset %d, have %d", need, off, len(data))
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			row[c] = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
		}
		out[r] = row
	}
	return out, off, nil
}
