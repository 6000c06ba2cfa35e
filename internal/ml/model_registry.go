package ml

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotFormatVersion is bumped whenever a snapshot type changes shape.
const SnapshotFormatVersion = 1

// SnapshotMeta describes a persisted snapshot.
type SnapshotMeta struct {
	Name          string    `json:"name"`
	FormatVersion int       `json:"format_version"`
	TrainedAt     time.Time `json:"trained_at"`
	SavedAt       time.Time `json:"saved_at"`
	Rows          int       `json:"rows"`
	Cols          int       `json:"cols"`
	Checksum      string    `json:"checksum"`
	SizeBytes     int64     `json:"size_bytes"`
}

// SnapshotStore saves and restores named model state.
type SnapshotStore interface {
	Save(ctx context.Context, name string, v any, meta SnapshotMeta) error
	Load(ctx context.Context, name string, v any) (*SnapshotMeta, error)
}

// ModelRegistry keeps one snapshot file per model name under a directory.
// Files are gob encoded, gzip compressed and checksummed, and are replaced by
// writing a temp file and renaming it over the old one.
type ModelRegistry struct {
	dir    string
	mutex  sync.Mutex
	logger *logrus.Logger
}

type snapshotFile struct {
	Meta    SnapshotMeta
	Payload []byte
}

func NewModelRegistry(dir string, logger *logrus.Logger) (*ModelRegistry, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}
	return &ModelRegistry{
		dir:    dir,
		logger: logger,
	}, nil
}

func (mr *ModelRegistry) path(name string) string {
	return filepath.Join(mr.dir, name+".snapshot")
}

func (mr *ModelRegistry) Save(ctx context.Context, name string, v any, meta SnapshotMeta) error {
	if name == "" {
		return errors.New("snapshot name cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(v); err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}
	sum := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("compress snapshot %s: %w", name, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress snapshot %s: %w", name, err)
	}

	meta.Name = name
	meta.FormatVersion = SnapshotFormatVersion
	meta.SavedAt = time.Now().UTC()
	meta.Checksum = hex.EncodeToString(sum[:])
	meta.SizeBytes = int64(compressed.Len())

	var file bytes.Buffer
	if err := gob.NewEncoder(&file).Encode(snapshotFile{Meta: meta, Payload: compressed.Bytes()}); err != nil {
		return fmt.Errorf("encode snapshot file %s: %w", name, err)
	}

	mr.mutex.Lock()
	defer mr.mutex.Unlock()

	tmp, err := os.CreateTemp(mr.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(file.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, mr.path(name)); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", name, err)
	}

	mr.logger.WithFields(logrus.Fields{
		"snapshot":   name,
		"size_bytes": meta.SizeBytes,
		"rows":       meta.Rows,
	}).Info("Model snapshot saved")
	return nil
}

// Load decodes the named snapshot into v. It returns ErrSnapshotNotFound when
// no snapshot has been saved under name.
func (mr *ModelRegistry) Load(ctx context.Context, name string, v any) (*SnapshotMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mr.mutex.Lock()
	data, err := os.ReadFile(mr.path(name))
	mr.mutex.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}

	var file snapshotFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode snapshot file %s: %w", name, err)
	}
	if file.Meta.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("snapshot %s has format version %d, want %d",
			name, file.Meta.FormatVersion, SnapshotFormatVersion)
	}

	gz, err := gzip.NewReader(bytes.NewReader(file.Payload))
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", name, err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", name, err)
	}

	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != file.Meta.Checksum {
		return nil, fmt.Errorf("snapshot %s checksum mismatch", name)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}

	return &file.Meta, nil
}
