package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PagePool/storage_engine/block"
)

type stubReader map[block.ID][]byte

func (s stubReader) Read(blk block.ID, into []byte) error {
	if d, ok := s[blk]; ok {
		copy(into, d)
	}
	return nil
}

// TestChooseVictimDetachesOldResidenceUnderTableLock reproduces the reported
// cross-block race at the FrameTable level: once ChooseVictim has returned a
// victim carrying an old block, that old block must already be unreachable
// through both Lookup and the frame's own Block(), even though the caller
// hasn't performed the actual disk-read swap yet. A concurrent hit-path
// re-verify (which takes the same table lock) must see the mismatch and
// retry rather than handing out a frame that's about to be overwritten.
func TestChooseVictimDetachesOldResidenceUnderTableLock(t *testing.T) {
	ft := NewFrameTable(1, NewLinearScanSelector())
	a := block.ID{FileName: "f", BlockNumber: 0}

	f := ft.frames[0]
	f.Lock()
	require.NoError(t, f.AssignToBlock(a, 0, 2, stubReader{}))
	f.Unlock()
	ft.IndexInsert(a, f)

	victim, ok := ft.ChooseVictim(1_000_000_000, 0)
	require.True(t, ok)
	assert.Same(t, f, victim.Frame)
	assert.True(t, victim.HadOld)
	assert.Equal(t, a, victim.OldBlock)

	_, stillIndexed := ft.Lookup(a)
	assert.False(t, stillIndexed, "old block must be gone from the index as soon as it's claimed as a victim")
	_, stillResident := f.Block()
	assert.False(t, stillResident, "frame must report empty for the duration of the swap")
}

// TestRestoreResidenceReindexesOnFlushFailure exercises the failure path a
// caller takes when the old block's flush fails after ChooseVictim already
// detached it: RestoreResidence plus a fresh IndexInsert must put the frame
// back exactly as it was, not lose the block.
func TestRestoreResidenceReindexesOnFlushFailure(t *testing.T) {
	ft := NewFrameTable(1, NewLinearScanSelector())
	a := block.ID{FileName: "f", BlockNumber: 0}

	f := ft.frames[0]
	f.Lock()
	require.NoError(t, f.AssignToBlock(a, 0, 2, stubReader{}))
	f.Unlock()
	ft.IndexInsert(a, f)

	victim, ok := ft.ChooseVictim(1_000_000_000, 0)
	require.True(t, ok)
	require.True(t, victim.HadOld)

	// simulate a failed flush: restore residence and reindex under the
	// frame's latch, then release the reservation, the same order
	// pinMiss/PinNew use.
	f.Lock()
	f.RestoreResidence(victim.OldBlock)
	ft.IndexInsert(victim.OldBlock, f)
	f.Unlock()
	ft.Unpin(f)

	got, ok := ft.Lookup(a)
	require.True(t, ok)
	assert.Same(t, f, got)
	blk, resident := f.Block()
	require.True(t, resident)
	assert.Equal(t, a, blk)
}
