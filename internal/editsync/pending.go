package editsync

import (
	"sort"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

// pendingSet maps file key -> field -> value not yet confirmed by the server.
type pendingSet map[string]map[string]any

func (p pendingSet) put(fileKey, field string, value any) {
	fields, ok := p[fileKey]
	if !ok {
		fields = make(map[string]any)
		p[fileKey] = fields
	}
	fields[field] = value
}

func (p pendingSet) get(fileKey, field string) (any, bool) {
	v, ok := p[fileKey][field]
	return v, ok
}

// drop removes one field and the file entry once it is empty.
func (p pendingSet) drop(fileKey, field string) {
	fields, ok := p[fileKey]
	if !ok {
		return
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(p, fileKey)
	}
}

func (p pendingSet) count() int {
	n := 0
	for _, fields := range p {
		n += len(fields)
	}
	return n
}

func (p pendingSet) clone() pendingSet {
	out := make(pendingSet, len(p))
	for k, fields := range p {
		cp := make(map[string]any, len(fields))
		for f, v := range fields {
			cp[f] = v
		}
		out[k] = cp
	}
	return out
}

// overlay writes every pending value onto rows in place. Entries for rows
// that are no longer present are returned so the caller can drop them.
func (p pendingSet) overlay(rows entity.Snapshot) (orphans []string) {
	for key, fields := range p {
		i := rows.Index(key)
		if i < 0 {
			orphans = append(orphans, key)
			continue
		}
		for _, f := range sortedFields(fields) {
			rows[i].Fields.Set(f, fields[f])
		}
	}
	sort.Strings(orphans)
	return orphans
}

// edits flattens the set in a stable order.
func (p pendingSet) edits() []entity.PendingEdit {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []entity.PendingEdit
	for _, k := range keys {
		for _, f := range sortedFields(p[k]) {
			out = append(out, entity.PendingEdit{FileKey: k, Field: f, Value: p[k][f]})
		}
	}
	return out
}

func sortedFields(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}
