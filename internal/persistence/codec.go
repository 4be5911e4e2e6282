package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Chunk record layout:
//
//	magic   [4]byte "BFC1"
//	version uint8
//	sum     uint64  xxhash64 of the raw voxel bytes
//	body    zstd(raw), raw = 4 bytes per voxel: block uint16le, rotation, variant
const (
	chunkVersion = 1
	headerSize   = 4 + 1 + 8
	voxelBytes   = 4
	rawSize      = voxel.ChunkVolume * voxelBytes
)

var chunkMagic = []byte("BFC1")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(4*rawSize))
)

// EncodeChunk serialises a chunk snapshot into its storage record.
func EncodeChunk(snap chunk.Snapshot) ([]byte, error) {
	if len(snap.Voxels) != voxel.ChunkVolume {
		return nil, fmt.Errorf("chunk %s: %w", snap.Coord, chunk.ErrBadSnapshot)
	}
	raw := make([]byte, rawSize)
	for i, v := range snap.Voxels {
		off := i * voxelBytes
		binary.LittleEndian.PutUint16(raw[off:], uint16(v.Block))
		raw[off+2] = v.Rotation
		raw[off+3] = v.Variant
	}

	out := make([]byte, headerSize, headerSize+512)
	copy(out, chunkMagic)
	out[4] = chunkVersion
	binary.LittleEndian.PutUint64(out[5:], xxhash.Sum64(raw))
	return encoder.EncodeAll(raw, out), nil
}

// DecodeChunk parses a storage record back into a snapshot.
func DecodeChunk(coord voxel.ChunkCoord, data []byte) (chunk.Snapshot, error) {
	if len(data) < headerSize {
		return chunk.Snapshot{}, ErrTruncated
	}
	if !bytes.Equal(data[:4], chunkMagic) {
		return chunk.Snapshot{}, ErrBadMagic
	}
	if data[4] != chunkVersion {
		return chunk.Snapshot{}, fmt.Errorf("%w: %d", ErrVersion, data[4])
	}
	sum := binary.LittleEndian.Uint64(data[5:])

	raw, err := decoder.DecodeAll(data[headerSize:], make([]byte, 0, rawSize))
	if err != nil {
		return chunk.Snapshot{}, fmt.Errorf("decompress: %w", err)
	}
	if len(raw) != rawSize {
		return chunk.Snapshot{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(raw))
	}
	if xxhash.Sum64(raw) != sum {
		return chunk.Snapshot{}, ErrChecksum
	}

	snap := chunk.Snapshot{Coord: coord, Voxels: make([]voxel.Voxel, voxel.ChunkVolume)}
	for i := range snap.Voxels {
		off := i * voxelBytes
		snap.Voxels[i] = voxel.Voxel{
			Block:    voxel.BlockID(binary.LittleEndian.Uint16(raw[off:])),
			Rotation: raw[off+2],
			Variant:  raw[off+3],
		}
	}
	return snap, nil
}
