// Package persist serializes the identity state of a Body for storage in
// a document file or a snapshot store.
//
// Only the durable part of a reference is persisted: its ShapeID, the
// descriptor recorded at the last successful resolution, and any legacy
// selector. Live kernel handles are never persistable; on load, the
// registry is re-seeded handle-less and immediately re-resolved against
// the freshly rebuilt solid.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brepkit/identity/registry"
	"github.com/brepkit/identity/shape"
)

// Record is the durable form of one shape reference.
type Record struct {
	ID         shape.ShapeID     `json:"id"`
	Descriptor *shape.Descriptor `json:"descriptor,omitempty"`
	Selector   *shape.Selector   `json:"selector,omitempty"`
}

// Snapshot is the durable identity state of one Body.
type Snapshot struct {
	// Document identifies the owning document.
	Document string `json:"document"`

	// Body names the body within the document.
	Body string `json:"body"`

	// SavedAt is the time the snapshot was taken.
	SavedAt time.Time `json:"saved_at"`

	// References holds the durable form of every live reference.
	References []Record `json:"references"`
}

// FromRegistry captures the durable state of a registry. Live handles are
// dropped; descriptors and selectors are carried as recorded.
func FromRegistry(document, body string, reg *registry.Registry) *Snapshot {
	refs := reg.References()
	records := make([]Record, 0, len(refs))
	for _, ref := range refs {
		records = append(records, Record{
			ID:         ref.ID,
			Descriptor: ref.Descriptor,
			Selector:   ref.Selector,
		})
	}
	return &Snapshot{
		Document:   document,
		Body:       body,
		SavedAt:    time.Now().UTC(),
		References: records,
	}
}

// Seed restores the snapshot's references into an empty registry. The
// restored references carry no live handles; the caller re-resolves them
// against the freshly rebuilt solid right away. Records lacking a
// descriptor fall back to their legacy selector during that resolution.
func (s *Snapshot) Seed(reg *registry.Registry) error {
	refs := make([]*shape.Reference, 0, len(s.References))
	for _, rec := range s.References {
		refs = append(refs, &shape.Reference{
			ID:         rec.ID,
			Descriptor: rec.Descriptor,
			Selector:   rec.Selector,
		})
	}
	if err := reg.Seed(refs); err != nil {
		return fmt.Errorf("persist: seed registry: %w", err)
	}
	return nil
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("persist: encode snapshot: %w", err)
	}
	return data, nil
}

// Decode deserializes a snapshot from JSON.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("persist: decode snapshot: %w", err)
	}
	return &snap, nil
}
