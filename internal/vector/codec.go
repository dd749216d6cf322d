package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxCodecElems bounds the header values accepted by ReadMatrix so a corrupt
// header cannot trigger a huge allocation.
const maxCodecElems = 1 << 31

// elemsPerRead is how many floats ReadMatrix pulls from the reader at a time.
const elemsPerRead = 1 << 16

// WriteMatrix encodes m as: rows (u32), dim (u32), then rows*dim little-endian float32.
func WriteMatrix(w io.Writer, m *Matrix) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.rows)); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dim)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	const rowsPerWrite = 1024
	for start := 0; start < m.rows; start += rowsPerWrite {
		end := min(start+rowsPerWrite, m.rows)
		if _, err := w.Write(float32SliceToBytes(m.data[start*m.dim : end*m.dim])); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}
	return nil
}

// ReadMatrix decodes a matrix written by WriteMatrix. A truncated payload
// returns io.ErrUnexpectedEOF. The payload is read in bounded pieces so memory
// tracks the bytes actually present, not the size the header claims.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	var rows, dim uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("read rows: %w", noEOF(err))
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", noEOF(err))
	}
	if uint64(rows)*uint64(dim) > maxCodecElems {
		return nil, fmt.Errorf("implausible shape %dx%d", rows, dim)
	}
	total := int(rows) * int(dim)
	step := min(total, elemsPerRead)
	data := make([]float32, 0, step)
	buf := make([]byte, step*4)
	for len(data) < total {
		n := min(total-len(data), elemsPerRead)
		if _, err := io.ReadFull(r, buf[:n*4]); err != nil {
			return nil, fmt.Errorf("read vectors: %w", noEOF(err))
		}
		data = appendFloat32s(data, buf[:n*4])
	}
	return &Matrix{rows: int(rows), dim: int(dim), data: data}, nil
}

// EncodeVector returns v as little-endian float32 bytes.
func EncodeVector(v []float32) []byte { return float32SliceToBytes(v) }

// DecodeVector parses little-endian float32 bytes.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	return bytesToFloat32Slice(b), nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	return appendFloat32s(make([]float32, 0, len(b)/4), b)
}

func appendFloat32s(dst []float32, b []byte) []float32 {
	const size = 4
	for i := 0; i+size <= len(b); i += size {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(b[i:i+size])))
	}
	return dst
}
