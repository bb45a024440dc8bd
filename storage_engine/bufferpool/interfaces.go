package bufferpool

import "PagePool/storage_engine/block"

// FileManager is the downward collaborator that performs block reads and
// writes. The buffer pool never touches a file descriptor directly;
// storage_engine/disk_manager.DiskManager is the concrete implementation
// used in production, and tests supply fakes.
type FileManager interface {
	Read(blk block.ID, into []byte) error
	Write(blk block.ID, data []byte) error
	Append(fileName string) (block.ID, error)
	Size(fileName string) (uint64, error)
}

// LogManager is the downward collaborator that guarantees WAL durability
// before a dirty page reaches disk. storage_engine/wal_manager.WALManager
// is the concrete implementation.
type LogManager interface {
	FlushTo(lsn uint64) error
	CurrentLSN() uint64
}
