// Package diskmanager is the FileManager collaborator the buffer pool reads
// blocks from and writes them back to: one os.File handle per named file,
// each with its own lock, addressed directly by (fileName, blockNumber)
// rather than through any catalog-level indirection.
package diskmanager

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"PagePool/storage_engine/block"
	"PagePool/storage_engine/page"
)

type fileHandle struct {
	mu        sync.RWMutex
	path      string
	file      *os.File
	nextBlock uint64 // next block number to hand out on Append
}

// DiskManager manages OS file handles and raw block I/O for the buffer pool.
type DiskManager struct {
	mu    sync.RWMutex
	dir   string
	files map[string]*fileHandle
}

// New creates a DiskManager that stores its files under dir.
func New(dir string) (*DiskManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "diskmanager: create directory %s", dir)
	}
	return &DiskManager{dir: dir, files: make(map[string]*fileHandle)}, nil
}

func (dm *DiskManager) openOrCreate(fileName string) (*fileHandle, error) {
	dm.mu.RLock()
	fh, ok := dm.files[fileName]
	dm.mu.RUnlock()
	if ok {
		return fh, nil
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if fh, ok := dm.files[fileName]; ok {
		return fh, nil
	}

	path := dm.dir + string(os.PathSeparator) + fileName
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "diskmanager: open %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "diskmanager: stat %s", path)
	}

	fh = &fileHandle{
		path:      path,
		file:      f,
		nextBlock: uint64(stat.Size() / page.Size),
	}
	dm.files[fileName] = fh
	return fh, nil
}

// Read reads blk's bytes into `into`, which must be page.Size long. Reading
// past the current end of file returns a zero-filled page rather than an
// error.
func (dm *DiskManager) Read(blk block.ID, into []byte) error {
	if len(into) != page.Size {
		return errors.Errorf("diskmanager: buffer must be %d bytes, got %d", page.Size, len(into))
	}
	fh, err := dm.openOrCreate(blk.FileName)
	if err != nil {
		return err
	}

	fh.mu.RLock()
	defer fh.mu.RUnlock()

	offset := int64(blk.BlockNumber) * page.Size
	n, err := fh.file.ReadAt(into, offset)
	if err != nil && n == 0 {
		for i := range into {
			into[i] = 0
		}
		return nil
	}
	for i := n; i < page.Size; i++ {
		into[i] = 0
	}
	return nil
}

// Write writes data (page.Size bytes) to blk's slot in its file.
func (dm *DiskManager) Write(blk block.ID, data []byte) error {
	if len(data) != page.Size {
		return errors.Errorf("diskmanager: data must be %d bytes, got %d", page.Size, len(data))
	}
	fh, err := dm.openOrCreate(blk.FileName)
	if err != nil {
		return err
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	offset := int64(blk.BlockNumber) * page.Size
	if _, err := fh.file.WriteAt(data, offset); err != nil {
		return errors.Wrapf(err, "diskmanager: write block %s", blk)
	}
	if blk.BlockNumber >= fh.nextBlock {
		fh.nextBlock = blk.BlockNumber + 1
	}
	return nil
}

// Append reserves the next block number for fileName and returns its ID. It
// does not write anything to disk — that is the frame's responsibility once
// its formatter has run and the buffer pool flushes it.
func (dm *DiskManager) Append(fileName string) (block.ID, error) {
	fh, err := dm.openOrCreate(fileName)
	if err != nil {
		return block.ID{}, err
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	blk := block.ID{FileName: fileName, BlockNumber: fh.nextBlock}
	fh.nextBlock++
	return blk, nil
}

// Size returns the number of blocks currently in fileName.
func (dm *DiskManager) Size(fileName string) (uint64, error) {
	fh, err := dm.openOrCreate(fileName)
	if err != nil {
		return 0, err
	}
	fh.mu.RLock()
	defer fh.mu.RUnlock()
	return fh.nextBlock, nil
}

// Sync fsyncs every open file.
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for name, fh := range dm.files {
		fh.mu.Lock()
		err := fh.file.Sync()
		fh.mu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "diskmanager: sync %s", name)
		}
	}
	return nil
}

// CloseAll syncs and closes every open file handle.
func (dm *DiskManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	var firstErr error
	for name, fh := range dm.files {
		fh.mu.Lock()
		if err := fh.file.Sync(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "diskmanager: sync %s", name)
		}
		if err := fh.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "diskmanager: close %s", name)
		}
		fh.mu.Unlock()
		delete(dm.files, name)
	}
	return firstErr
}
