// Package record defines the Record data model: the atomic unit stored and
// retrieved by the record store, identified by a globally unique id.
package record

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Record.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ExtractedValue is a free-form extracted field: either a string or a
// float64, never both.
type ExtractedValue struct {
	Str   string  `json:"str,omitempty"`
	Num   float64 `json:"num,omitempty"`
	IsNum bool    `json:"is_num"`
}

// Record is the unit of storage managed by the record store.
type Record struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Checksum   string `json:"checksum"`
	Size       int64  `json:"size"`
	Folder     string `json:"folder"`
	Status     Status `json:"status"`
	PayloadRef string `json:"payload_ref"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Enrichment fields. All optional, all mutable after creation.
	Summary         string                    `json:"summary,omitempty"`
	MarkdownRef     string                    `json:"markdown_ref,omitempty"`
	Tags            []string                  `json:"tags,omitempty"`
	Embedding       []float32                 `json:"embedding,omitempty"`
	ExtractedFields map[string]ExtractedValue `json:"extracted_fields,omitempty"`
}

// Clone returns a deep copy of r, so callers (cache, store) never share
// mutable slices/maps across goroutines.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.Embedding != nil {
		c.Embedding = append([]float32(nil), r.Embedding...)
	}
	if r.ExtractedFields != nil {
		c.ExtractedFields = make(map[string]ExtractedValue, len(r.ExtractedFields))
		for k, v := range r.ExtractedFields {
			c.ExtractedFields[k] = v
		}
	}
	return &c
}

// Patch describes a partial, mutable-fields-only update to a Record. Nil
// fields are left unchanged; an empty Patch is a no-op.
type Patch struct {
	Status          *Status
	Summary         *string
	MarkdownRef     *string
	Tags            []string
	Embedding       []float32
	ExtractedFields map[string]ExtractedValue
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Summary == nil && p.MarkdownRef == nil &&
		p.Tags == nil && p.Embedding == nil && p.ExtractedFields == nil
}

// Apply mutates r in place according to p and bumps UpdatedAt. Callers hold
// whatever lock protects r.
func (p Patch) Apply(r *Record, now time.Time) {
	if p.IsEmpty() {
		return
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Summary != nil {
		r.Summary = *p.Summary
	}
	if p.MarkdownRef != nil {
		r.MarkdownRef = *p.MarkdownRef
	}
	if p.Tags != nil {
		r.Tags = append([]string(nil), p.Tags...)
	}
	if p.Embedding != nil {
		r.Embedding = append([]float32(nil), p.Embedding...)
	}
	if p.ExtractedFields != nil {
		r.ExtractedFields = make(map[string]ExtractedValue, len(p.ExtractedFields))
		for k, v := range p.ExtractedFields {
			r.ExtractedFields[k] = v
		}
	}
	r.UpdatedAt = now
}

// NormalizeFolder normalizes a folder path: separators become '/', leading
// and trailing slashes are trimmed, and the empty string denotes the root.
func NormalizeFolder(folder string) string {
	folder = strings.ReplaceAll(folder, `\`, "/")
	folder = strings.Trim(folder, "/")
	return folder
}

// FolderContains reports whether candidate equals prefix or is a descendant
// of it (prefix "" is the root and contains everything).
func FolderContains(prefix, candidate string) bool {
	prefix = NormalizeFolder(prefix)
	candidate = NormalizeFolder(candidate)
	if prefix == "" {
		return true
	}
	if candidate == prefix {
		return true
	}
	return strings.HasPrefix(candidate, prefix+"/")
}
