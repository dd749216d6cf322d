package cache

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
	"github.com/klauspost/compress/zstd"
)

const (
	// FeaturesFile holds the serialized embedding matrix.
	FeaturesFile = "features.bin"
	// IdentifiersFile holds the serialized identifier list.
	IdentifiersFile = "identifiers.bin"

	formatVersion  = 1
	maxIdentifiers = 1 << 28
	maxIDLength    = 1 << 16
)

var (
	featuresMagic    = [4]byte{'I', 'D', 'D', 'F'}
	identifiersMagic = [4]byte{'I', 'D', 'D', 'I'}
)

// Compression selects how artifact payloads are encoded.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

func (c Compression) code() (byte, error) {
	switch c {
	case CompressionNone, "":
		return 0, nil
	case CompressionZstd:
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown compression: %s (supported: none, zstd)", c)
	}
}

// FileBackend stores the cache as two co-located artifacts. Both exist or neither.
type FileBackend struct {
	dir         string
	compression Compression
}

// NewFileBackend returns a FileBackend for dir. The directory is not created until Save.
func NewFileBackend(dir string, compression Compression) (*FileBackend, error) {
	if _, err := compression.code(); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir, compression: compression}, nil
}

// Name returns "files".
func (b *FileBackend) Name() string { return string(BackendFiles) }

// Paths returns the two artifact paths.
func (b *FileBackend) Paths() []string {
	return []string{filepath.Join(b.dir, FeaturesFile), filepath.Join(b.dir, IdentifiersFile)}
}

// Load reads both artifacts. Missing both returns nil; missing one, a parse
// failure, or differing lengths is a CacheCorruptError.
func (b *FileBackend) Load(ctx context.Context) (*Store, error) {
	featPath, idsPath := b.Paths()[0], b.Paths()[1]
	featOK, err := exists(featPath)
	if err != nil {
		return nil, err
	}
	idsOK, err := exists(idsPath)
	if err != nil {
		return nil, err
	}
	if !featOK && !idsOK {
		return nil, nil
	}
	if featOK != idsOK {
		return nil, models.NewCacheCorruptError(b.dir, "features and identifiers must be present together", nil)
	}

	var features *vector.Matrix
	if err := readArtifact(featPath, featuresMagic, func(r io.Reader) error {
		m, err := vector.ReadMatrix(r)
		features = m
		return err
	}); err != nil {
		return nil, err
	}
	var ids []string
	if err := readArtifact(idsPath, identifiersMagic, func(r io.Reader) error {
		var err error
		ids, err = readIdentifiers(r)
		return err
	}); err != nil {
		return nil, err
	}
	if len(ids) != features.Rows() {
		return nil, models.NewCacheCorruptError(b.dir,
			fmt.Sprintf("identifiers (%d) and features (%d) length mismatch", len(ids), features.Rows()), nil)
	}
	return &Store{IDs: ids, Features: features}, nil
}

// Save writes features first and identifiers last, each through a temp file
// and rename so a reader never sees a half-written artifact.
func (b *FileBackend) Save(ctx context.Context, s *Store) error {
	if len(s.IDs) != s.Features.Rows() {
		return fmt.Errorf("refusing to save misaligned store: %d identifiers, %d features", len(s.IDs), s.Features.Rows())
	}
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	featPath, idsPath := b.Paths()[0], b.Paths()[1]
	if err := b.writeArtifact(featPath, featuresMagic, func(w io.Writer) error {
		return vector.WriteMatrix(w, s.Features)
	}); err != nil {
		return err
	}
	return b.writeArtifact(idsPath, identifiersMagic, func(w io.Writer) error {
		return writeIdentifiers(w, s.IDs)
	})
}

// Clear removes both artifacts.
func (b *FileBackend) Clear() error {
	for _, p := range b.Paths() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close is a no-op for FileBackend.
func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) writeArtifact(path string, magic [4]byte, payload func(io.Writer) error) (err error) {
	code, err := b.compression.code()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if _, err := bw.Write(magic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(formatVersion)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := bw.WriteByte(code); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if code == 1 {
		enc, err := zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if err := payload(enc); err != nil {
			_ = enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("zstd close: %w", err)
		}
	} else if err := payload(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func readArtifact(path string, magic [4]byte, payload func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	br := bufio.NewReaderSize(f, 1<<20)

	var header [7]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return models.NewCacheCorruptError(path, "short header", err)
	}
	if [4]byte(header[:4]) != magic {
		return models.NewCacheCorruptError(path, "bad magic", nil)
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != formatVersion {
		return models.NewCacheCorruptError(path, fmt.Sprintf("unsupported version %d", v), nil)
	}
	var r io.Reader = br
	switch header[6] {
	case 0:
	case 1:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return models.NewCacheCorruptError(path, "zstd reader", err)
		}
		defer dec.Close()
		r = dec
	default:
		return models.NewCacheCorruptError(path, fmt.Sprintf("unknown compression code %d", header[6]), nil)
	}
	if err := payload(r); err != nil {
		return models.NewCacheCorruptError(path, "unreadable payload", err)
	}
	return nil
}

func writeIdentifiers(w io.Writer, ids []string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	var lenBuf [4]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(id)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
	}
	return nil
}

func readIdentifiers(r io.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", unexpected(err))
	}
	if n > maxIdentifiers {
		return nil, fmt.Errorf("implausible identifier count %d", n)
	}
	ids := make([]string, 0, min(n, 4096))
	var lenBuf [4]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("read id len: %w", unexpected(err))
		}
		l := binary.LittleEndian.Uint32(lenBuf[:])
		if l > maxIDLength {
			return nil, fmt.Errorf("implausible identifier length %d", l)
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read id: %w", unexpected(err))
		}
		ids = append(ids, string(buf))
	}
	return ids, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
