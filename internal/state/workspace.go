// Package state holds the per-session working state shared by the
// orchestrator, the edit sync engine, the renderer and the preview controller.
package state

import (
	"sync"

	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/session"
)

// Workspace is created once per session and passed to each component at
// construction.
type Workspace struct {
	Session *session.Manager
	Table   *Table
	Schema  *SchemaCache

	mu         sync.RWMutex
	selection  entity.Selection
	previewCap *entity.PreviewCapability
}

func NewWorkspace(sess *session.Manager) *Workspace {
	return &Workspace{
		Session: sess,
		Table:   NewTable(),
		Schema:  &SchemaCache{},
	}
}

func (w *Workspace) Selection() entity.Selection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.selection
}

func (w *Workspace) SetSelection(sel entity.Selection) {
	w.mu.Lock()
	w.selection = sel
	w.mu.Unlock()
}

// SelectIfEmpty sets sel only when nothing is selected yet.
func (w *Workspace) SelectIfEmpty(sel entity.Selection) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.selection.IsZero() {
		return false
	}
	w.selection = sel
	return true
}

// PreviewCapability reports the server's image preview flag and whether it
// has been received yet.
func (w *Workspace) PreviewCapability() (entity.PreviewCapability, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.previewCap == nil {
		return entity.PreviewCapability{}, false
	}
	return *w.previewCap, true
}

func (w *Workspace) SetPreviewCapability(c entity.PreviewCapability) {
	w.mu.Lock()
	w.previewCap = &c
	w.mu.Unlock()
}

// SchemaCache is the read-through copy of the server schema.
type SchemaCache struct {
	mu     sync.RWMutex
	schema entity.Schema
	loaded bool
}

func (c *SchemaCache) Get() (entity.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return entity.NewSchema(c.schema.Fields()...), c.loaded
}

func (c *SchemaCache) Set(s entity.Schema) {
	c.mu.Lock()
	c.schema = entity.NewSchema(s.Fields()...)
	c.loaded = true
	c.mu.Unlock()
}

func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	c.schema = entity.Schema{}
	c.loaded = false
	c.mu.Unlock()
}
