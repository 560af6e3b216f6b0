package hnsw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// Artifact layout:
//
//	[4B magic "VSHN"] [4B version] [8B body length] [8B xxhash64(body)]
//	[zstd(body)]
//
// Body (little-endian):
//
//	[4B dim] [4B M] [4B efConstruction] [4B efSearch]
//	[4B capacity] [4B numSlots] [4B maxLevel] [4B entry]
//	[4B tombstone bytes] [roaring bitmap]
//	For each slot:
//	  [4B idLen] [id] [4B level] [dim x 4B float32]
//	  For each layer 0..level: [4B n] [n x 4B slot]
var artifactMagic = [4]byte{'V', 'S', 'H', 'N'}

const (
	artifactVersion    uint32 = 1
	artifactHeaderSize        = 4 + 4 + 8 + 8

	// maxPreallocBody caps the buffer reserved from an untrusted header
	maxPreallocBody = 64 << 20
)

// ErrCorruptIndex is returned when an artifact fails validation.
// It matches types.ErrIndexNotFound under errors.Is.
var ErrCorruptIndex = fmt.Errorf("corrupt index artifact: %w", types.ErrIndexNotFound)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<32))
)

// encodeGraph serializes g into a complete artifact
func encodeGraph(g *graph) ([]byte, error) {
	tombs, err := g.tombs.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode tombstones: %w", err)
	}

	le := binary.LittleEndian
	body := make([]byte, 0, 64+len(tombs)+len(g.nodes)*(g.dim*4+64))
	for _, v := range []uint32{
		uint32(g.dim),
		uint32(g.p.M),
		uint32(g.p.EfConstruction),
		uint32(g.p.EfSearch),
		uint32(g.capacity),
		uint32(len(g.nodes)),
		uint32(g.maxLevel),
		uint32(g.entry),
	} {
		body = le.AppendUint32(body, v)
	}

	body = le.AppendUint32(body, uint32(len(tombs)))
	body = append(body, tombs...)

	for _, nd := range g.nodes {
		body = le.AppendUint32(body, uint32(len(nd.id)))
		body = append(body, nd.id...)
		body = le.AppendUint32(body, uint32(nd.level))
		for _, v := range nd.vector {
			body = le.AppendUint32(body, math.Float32bits(v))
		}
		for lev := 0; lev <= nd.level; lev++ {
			var friends []uint32
			if lev < len(nd.friends) {
				friends = nd.friends[lev]
			}
			body = le.AppendUint32(body, uint32(len(friends)))
			for _, f := range friends {
				body = le.AppendUint32(body, f)
			}
		}
	}

	out := make([]byte, artifactHeaderSize, artifactHeaderSize+len(body)/2)
	copy(out, artifactMagic[:])
	le.PutUint32(out[4:], artifactVersion)
	le.PutUint64(out[8:], uint64(len(body)))
	le.PutUint64(out[16:], xxhash.Sum64(body))
	return zstdEncoder.EncodeAll(body, out), nil
}

// decodeGraph validates and parses a complete artifact.
// Every failure wraps ErrCorruptIndex.
func decodeGraph(data []byte) (*graph, error) {
	if len(data) < artifactHeaderSize {
		return nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrCorruptIndex, len(data))
	}
	if [4]byte(data[:4]) != artifactMagic {
		return nil, fmt.Errorf("%w: invalid magic %q", ErrCorruptIndex, data[:4])
	}

	le := binary.LittleEndian
	if v := le.Uint32(data[4:]); v != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (want %d)", ErrCorruptIndex, v, artifactVersion)
	}
	bodyLen := le.Uint64(data[8:])
	sum := le.Uint64(data[16:])

	body, err := zstdDecoder.DecodeAll(data[artifactHeaderSize:], make([]byte, 0, min(bodyLen, maxPreallocBody)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if uint64(len(body)) != bodyLen {
		return nil, fmt.Errorf("%w: body length %d, header says %d", ErrCorruptIndex, len(body), bodyLen)
	}
	if xxhash.Sum64(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	g, err := parseBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return g, nil
}

// bodyReader reads little-endian values with bounds checks
type bodyReader struct {
	buf []byte
	off int
}

var errShortBody = errors.New("unexpected end of body")

func (r *bodyReader) u32() (uint32, error) {
	if len(r.buf)-r.off < 4 {
		return 0, errShortBody
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *bodyReader) bytes(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, errShortBody
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func parseBody(body []byte) (*graph, error) {
	r := &bodyReader{buf: body}

	var hdr [8]uint32
	for i := range hdr {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	dim, m, efC, efS := int(hdr[0]), int(hdr[1]), int(hdr[2]), int(hdr[3])
	capacity, numSlots, maxLevel, entry := int(hdr[4]), int(hdr[5]), int(hdr[6]), int32(hdr[7])

	if dim == 0 {
		return nil, errors.New("dimension 0")
	}
	if m < 2 {
		return nil, fmt.Errorf("invalid M %d", m)
	}
	if numSlots > 0 && (entry < 0 || int(entry) >= numSlots) {
		return nil, fmt.Errorf("entry %d out of range", entry)
	}

	g := newGraph(dim, params{M: m, EfConstruction: efC, EfSearch: efS}, capacity)
	g.maxLevel = maxLevel
	g.entry = entry
	if numSlots == 0 {
		g.entry = -1
	}

	tombLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	tombBytes, err := r.bytes(int(tombLen))
	if err != nil {
		return nil, err
	}
	if err := g.tombs.UnmarshalBinary(tombBytes); err != nil {
		return nil, fmt.Errorf("tombstones: %w", err)
	}

	// Each slot needs at least idLen, level, vector and one friend count.
	if minSlot := 12 + dim*4; numSlots > (len(body)-r.off)/minSlot {
		return nil, fmt.Errorf("%d slots cannot fit in %d bytes", numSlots, len(body)-r.off)
	}
	g.nodes = make([]*node, numSlots)

	for i := 0; i < numSlots; i++ {
		idLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		id, err := r.bytes(int(idLen))
		if err != nil {
			return nil, err
		}
		level, err := r.u32()
		if err != nil {
			return nil, err
		}
		if level > maxLevelCap {
			return nil, fmt.Errorf("slot %d: level %d out of range", i, level)
		}

		vec := make([]float32, dim)
		for j := range vec {
			bits, err := r.u32()
			if err != nil {
				return nil, err
			}
			vec[j] = math.Float32frombits(bits)
		}

		friends := make([][]uint32, level+1)
		for lev := range friends {
			n, err := r.u32()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				continue
			}
			if int(n) > (len(body)-r.off)/4 {
				return nil, errShortBody
			}
			friends[lev] = make([]uint32, n)
			for k := range friends[lev] {
				f, err := r.u32()
				if err != nil {
					return nil, err
				}
				if int(f) >= numSlots {
					return nil, fmt.Errorf("slot %d: neighbor %d out of range", i, f)
				}
				friends[lev][k] = f
			}
		}

		g.nodes[i] = &node{id: string(id), vector: vec, level: int(level), friends: friends}
		if !g.tombs.Contains(uint32(i)) {
			g.live[string(id)] = uint32(i)
		}
	}

	if r.off != len(body) {
		return nil, fmt.Errorf("%d trailing bytes", len(body)-r.off)
	}
	return g, nil
}

// writeArtifact writes data to path through a temp file in the same
// directory, so readers see either the old file or the new one.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hnsw_index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to install index: %w", err)
	}
	return nil
}

// readArtifact loads and decodes the artifact at path.
// A missing file is types.ErrIndexNotFound; a bad one is ErrCorruptIndex.
func readArtifact(path string) (*graph, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", types.ErrIndexNotFound, path)
		}
		return nil, 0, fmt.Errorf("failed to read index: %w", err)
	}

	g, err := decodeGraph(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return g, int64(len(data)), nil
}
