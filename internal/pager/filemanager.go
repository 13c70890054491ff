package pager

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
)

// FileManager mediates every filesystem operation a managed table
// directory needs: creating and removing directories, creating fresh
// table files with an initialized header and a preallocation hint, and
// opening existing ones. It holds no per-file state; every open call
// returns an independent FileHandle.
type FileManager struct {
	cfg Config
}

// NewFileManager returns a FileManager that applies cfg to every file it
// creates.
func NewFileManager(cfg Config) (*FileManager, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &FileManager{cfg: cfg}, nil
}

// CreateDir creates dir and any missing parents. It is not an error for
// dir to already exist.
func (fm *FileManager) CreateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// DeleteDir removes dir and everything under it.
func (fm *FileManager) DeleteDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete dir %s: %w", dir, err)
	}
	return nil
}

// DeleteFile removes a single managed file. A missing path is not an
// error; a directory is refused.
func (fm *FileManager) DeleteFile(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidInput, path)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

// CreateTableFile creates a new managed file at path: block 0 holds a
// freshly initialized FileHeader, and the file is preallocated to the
// manager's configured size so the first burst of AllocateBlock calls
// does not pay for repeated small extends. It is an error for path to
// already exist.
func (fm *FileManager) CreateTableFile(path string) (*FileHandle, error) {
	if err := fm.CreateDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		return nil, fmt.Errorf("create table file %s: %w", path, err)
	}

	header := NewFileHeader()
	block := make([]byte, fm.cfg.BlockSize)
	MarshalFileHeader(header, block)
	if _, err := f.WriteAt(block, 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write initial header of %s: %w", path, err)
	}

	if err := preallocate(f, fm.cfg.PreallocateBytes); err != nil {
		log.Printf("pager: preallocation of %s to %s skipped: %v", path, humanize.Bytes(uint64(fm.cfg.PreallocateBytes)), err)
	}

	log.Printf("pager: created %s (block size %s)", path, humanize.Bytes(uint64(fm.cfg.BlockSize)))
	return openHandle(f, path, fm.cfg.BlockSize, header), nil
}

// OpenFile opens an existing managed file and parses its header. The
// configured block size must match the file: the header carries no block
// size field of its own, so a mismatch is detected indirectly, by the file
// length not being a multiple of the configured block size.
func (fm *FileManager) OpenFile(path string) (*FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open table file %s: %w", path, err)
	}

	block := make([]byte, FileHeaderSize)
	if _, err := f.ReadAt(block, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	header, err := UnmarshalFileHeader(block)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	wantSize := int64(header.BlkCnt) * int64(fm.cfg.BlockSize)
	if info.Size() < wantSize || info.Size()%int64(fm.cfg.BlockSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, header claims %d blocks of %d bytes", ErrCorrupt, path, info.Size(), header.BlkCnt, fm.cfg.BlockSize)
	}

	return openHandle(f, path, fm.cfg.BlockSize, header), nil
}

// preallocate reserves n bytes of disk space for f and extends its length
// to at least n bytes. On platforms without fallocate it falls back to a
// plain truncate, which reserves no disk space but still avoids repeated
// small file-length extensions.
func preallocate(f *os.File, n int64) error {
	if n <= 0 {
		return nil
	}
	if runtime.GOOS != "linux" {
		return fallbackPreallocate(f, n)
	}
	return fallocatePreallocate(f, n)
}

func fallbackPreallocate(f *os.File, n int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= n {
		return nil
	}
	return f.Truncate(n)
}
