package catalog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Embedding artifact layout, zstd-compressed:
//
//	magic   [4]byte "UTCE"
//	version uint16  (1)
//	dim     uint32
//	count   uint32
//	data    count*dim float32, row-major
//
// All integers and floats are little-endian.
const (
	embeddingMagic   = "UTCE"
	embeddingVersion = 1

	maxEmbeddingDim     = 1 << 16
	maxEmbeddingFloats  = 1 << 29 // 2 GiB of float32
	embeddingHeaderSize = 4 + 2 + 4 + 4
)

// ErrCorruptEmbeddings marks an artifact that does not follow the layout.
var ErrCorruptEmbeddings = errors.New("corrupt embedding artifact")

// ReadEmbeddings decodes an artifact. Every vector has the same dimension.
func ReadEmbeddings(r io.Reader) ([][]float32, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	var header [embeddingHeaderSize]byte
	if _, err := io.ReadFull(dec, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptEmbeddings, err)
	}
	if string(header[:4]) != embeddingMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptEmbeddings, header[:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != embeddingVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptEmbeddings, v)
	}
	dim := int(binary.LittleEndian.Uint32(header[6:10]))
	count := int(binary.LittleEndian.Uint32(header[10:14]))
	if dim == 0 || dim > maxEmbeddingDim {
		return nil, fmt.Errorf("%w: dimension %d", ErrCorruptEmbeddings, dim)
	}
	if count > maxEmbeddingFloats/dim {
		return nil, fmt.Errorf("%w: %d vectors of dimension %d", ErrCorruptEmbeddings, count, dim)
	}

	br := bufio.NewReaderSize(dec, 1<<16)
	flat := make([]float32, count*dim)
	buf := make([]byte, 4*dim)
	vectors := make([][]float32, count)
	for i := range count {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: vector %d of %d: %v", ErrCorruptEmbeddings, i, count, err)
		}
		row := flat[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		vectors[i] = row
	}

	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after %d vectors", ErrCorruptEmbeddings, count)
	}
	return vectors, nil
}

// WriteEmbeddings encodes vectors, which must share one non-zero dimension.
func WriteEmbeddings(w io.Writer, vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("no vectors to write")
	}
	dim := len(vectors[0])
	if dim == 0 || dim > maxEmbeddingDim {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 1<<16)

	var header [embeddingHeaderSize]byte
	copy(header[:4], embeddingMagic)
	binary.LittleEndian.PutUint16(header[4:6], embeddingVersion)
	binary.LittleEndian.PutUint32(header[6:10], uint32(dim))
	binary.LittleEndian.PutUint32(header[10:14], uint32(len(vectors)))
	if _, err := bw.Write(header[:]); err != nil {
		_ = enc.Close()
		return err
	}

	buf := make([]byte, 4*dim)
	for _, v := range vectors {
		for j, f := range v {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(f))
		}
		if _, err := bw.Write(buf); err != nil {
			_ = enc.Close()
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadEmbeddingsFile opens and decodes the artifact at path.
func ReadEmbeddingsFile(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEmbeddings(f)
}

// WriteEmbeddingsFile writes the artifact through a temp file and rename so
// a running server never observes a half-written file.
func WriteEmbeddingsFile(path string, vectors [][]float32) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteEmbeddings(tmp, vectors); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
