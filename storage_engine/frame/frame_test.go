package frame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PagePool/storage_engine/block"
	"PagePool/storage_engine/frame"
	"PagePool/storage_engine/page"
)

type fakeStore struct {
	data      map[block.ID][]byte
	nextBlock map[string]uint64
	writes    []block.ID
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[block.ID][]byte), nextBlock: make(map[string]uint64)}
}

func (s *fakeStore) Read(blk block.ID, into []byte) error {
	d, ok := s.data[blk]
	if !ok {
		for i := range into {
			into[i] = 0
		}
		return nil
	}
	copy(into, d)
	return nil
}

func (s *fakeStore) Write(blk block.ID, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.data[blk] = buf
	s.writes = append(s.writes, blk)
	return nil
}

func (s *fakeStore) Append(fileName string) (block.ID, error) {
	n := s.nextBlock[fileName]
	s.nextBlock[fileName] = n + 1
	return block.ID{FileName: fileName, BlockNumber: n}, nil
}

type fakeLog struct {
	flushed uint64
}

func (l *fakeLog) FlushTo(lsn uint64) error {
	l.flushed = lsn
	return nil
}

func TestAssignToBlockLoadsFreshHistory(t *testing.T) {
	store := newFakeStore()
	blk := block.ID{FileName: "f", BlockNumber: 0}
	store.data[blk] = []byte("hello")

	f := frame.New(0)
	require.NoError(t, f.AssignToBlock(blk, 1000, 2, store))

	got, ok := f.Block()
	require.True(t, ok)
	assert.Equal(t, blk, got)
	assert.True(t, f.History().IsSentinel())
	assert.False(t, f.IsDirty())
}

func TestAssignToNewMarksDirtyAndFormats(t *testing.T) {
	store := newFakeStore()
	f := frame.New(0)

	formatted := false
	fmtr := page.Formatter(func(data []byte) { formatted = true; data[0] = 0xFF })

	blk, err := f.AssignToNew("f", fmtr, 1000, 2, store)
	require.NoError(t, err)
	assert.True(t, formatted)
	assert.True(t, f.IsDirty())
	assert.Equal(t, byte(0xFF), f.Data()[0])
	assert.Equal(t, uint64(0), blk.BlockNumber)
}

func TestPinUnpinTracksCount(t *testing.T) {
	f := frame.New(0)
	assert.False(t, f.IsPinned())
	f.Pin()
	f.Pin()
	assert.Equal(t, int32(2), f.PinCount())
	f.Unpin()
	assert.True(t, f.IsPinned())
	f.Unpin()
	assert.False(t, f.IsPinned())
}

func TestUnpinBelowZeroPanics(t *testing.T) {
	f := frame.New(0)
	assert.Panics(t, func() { f.Unpin() })
}

func TestFlushWaitsForWALThenWrites(t *testing.T) {
	store := newFakeStore()
	log := &fakeLog{}
	f := frame.New(0)

	_, err := f.AssignToNew("f", func([]byte) {}, 0, 2, store)
	require.NoError(t, err)
	f.MarkModifiedBy(7, 42)

	require.NoError(t, f.Flush(log, store))
	assert.Equal(t, uint64(42), log.flushed)
	assert.False(t, f.IsDirty())
	assert.Len(t, store.writes, 1)
}

func TestFlushNoopWhenClean(t *testing.T) {
	store := newFakeStore()
	log := &fakeLog{}
	f := frame.New(0)
	require.NoError(t, f.Flush(log, store))
	assert.Empty(t, store.writes)
}

func TestEvictClearsResidence(t *testing.T) {
	store := newFakeStore()
	f := frame.New(0)
	_, err := f.AssignToNew("f", func([]byte) {}, 0, 2, store)
	require.NoError(t, err)

	f.Evict()
	_, resident := f.Block()
	assert.False(t, resident)
	assert.Nil(t, f.History())
	assert.False(t, f.IsDirty())
}
