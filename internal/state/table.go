package state

import (
	"fmt"
	"sync"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

// Table is the working copy of the result table. Readers always get deep copies.
type Table struct {
	mu      sync.RWMutex
	rows    entity.Snapshot
	version uint64
}

func NewTable() *Table {
	return &Table{}
}

// Snapshot returns a deep copy of the current rows.
func (t *Table) Snapshot() entity.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Clone()
}

// Replace swaps in rows wholesale and returns the new version.
func (t *Table) Replace(rows entity.Snapshot) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = rows.Clone()
	t.version++
	return t.version
}

// SetField writes one cell in place.
func (t *Table) SetField(fileKey, field string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.rows.Index(fileKey)
	if i < 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("row %q not found", fileKey), common.ErrNotFound)
	}
	t.rows[i].Fields.Set(field, value)
	t.version++
	return nil
}

func (t *Table) Row(fileKey string) (entity.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.rows.Index(fileKey)
	if i < 0 {
		return entity.Row{}, false
	}
	return t.rows[i].Clone(), true
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Version increases on every mutation.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}
