package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// ErrOutOfMemory is reported when the driver cannot allocate a buffer.
var ErrOutOfMemory = errors.New("gpu out of memory")

// ResourceError is a failed GPU buffer allocation for one chunk or batch.
// The scheduler keeps the chunk dirty and retries on a later frame.
type ResourceError struct {
	Op    string
	Chunk voxel.ChunkCoord
	Err   error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Chunk, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// glError maps a glGetError code to an error, nil for GL_NO_ERROR.
func glError(code uint32) error {
	switch code {
	case gl.NO_ERROR:
		return nil
	case gl.OUT_OF_MEMORY:
		return ErrOutOfMemory
	default:
		return fmt.Errorf("gl error 0x%04x", code)
	}
}

// checkGL drains the GL error queue and wraps the first error found.
func checkGL(op string, coord voxel.ChunkCoord) error {
	var first error
	for code := gl.GetError(); code != gl.NO_ERROR; code = gl.GetError() {
		if first == nil {
			first = glError(code)
		}
	}
	if first == nil {
		return nil
	}
	return &ResourceError{Op: op, Chunk: coord, Err: first}
}
