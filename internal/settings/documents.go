package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
)

// documentsKey is the settings entry holding the knowledge-base
// document records as one JSON document.
const documentsKey = "documents"

// DocumentKind discriminates how the material reached the backend.
type DocumentKind string

const (
	DocumentKindFile DocumentKind = "file"
	DocumentKindURL  DocumentKind = "url"
)

// Document records one piece of knowledge-base material shipped to the
// backend's indexing endpoints. The backend owns the index; this is
// the operator-facing ledger of what was sent.
type Document struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Kind       DocumentKind `json:"kind"`
	Size       int64        `json:"size"`
	URL        string       `json:"url"`
	Collection string       `json:"collection"`
	AgentID    string       `json:"agent_id"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Documents pairs the upload endpoints with the persisted ledger.
type Documents struct {
	store    ports.SettingsStore
	uploader ports.Uploader
	now      func() time.Time
}

// NewDocuments wires the document service.
func NewDocuments(store ports.SettingsStore, uploader ports.Uploader) *Documents {
	return &Documents{store: store, uploader: uploader, now: time.Now}
}

// List returns all recorded documents, newest first.
func (d *Documents) List(ctx context.Context) ([]Document, error) {
	docs, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
	return docs, nil
}

// UploadFile ships file contents to the backend's indexing endpoint
// and records the document. Nothing is recorded when the upload fails.
func (d *Documents) UploadFile(ctx context.Context, collection, agentID, filename string, size int64, contents io.Reader) (Document, error) {
	if filename == "" {
		return Document{}, domain.NewValidationError("documents.upload", "filename is required")
	}
	if collection == "" {
		return Document{}, domain.NewValidationError("documents.upload", "collection is required")
	}

	url, err := d.uploader.IndexFile(ctx, collection, agentID, filename, contents)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:         uuid.New().String(),
		Name:       filename,
		Kind:       DocumentKindFile,
		Size:       size,
		URL:        url,
		Collection: collection,
		AgentID:    agentID,
		UploadedAt: d.now().UTC(),
	}
	if err := d.append(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// AddURL submits a link to the backend's indexing endpoint and records
// it.
func (d *Documents) AddURL(ctx context.Context, collection, agentID, link string) (Document, error) {
	if link == "" {
		return Document{}, domain.NewValidationError("documents.add_url", "url is required")
	}
	if collection == "" {
		return Document{}, domain.NewValidationError("documents.add_url", "collection is required")
	}

	if err := d.uploader.IndexURL(ctx, collection, agentID, link); err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:         uuid.New().String(),
		Name:       link,
		Kind:       DocumentKindURL,
		URL:        link,
		Collection: collection,
		AgentID:    agentID,
		UploadedAt: d.now().UTC(),
	}
	if err := d.append(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Remove drops a document record from the ledger. The backend keeps
// whatever it indexed; only the operator-facing record goes away.
func (d *Documents) Remove(ctx context.Context, id string) error {
	docs, err := d.load(ctx)
	if err != nil {
		return err
	}

	kept := docs[:0]
	for _, doc := range docs {
		if doc.ID != id {
			kept = append(kept, doc)
		}
	}
	return d.save(ctx, kept)
}

func (d *Documents) append(ctx context.Context, doc Document) error {
	docs, err := d.load(ctx)
	if err != nil {
		return err
	}
	return d.save(ctx, append(docs, doc))
}

func (d *Documents) load(ctx context.Context) ([]Document, error) {
	raw, ok, err := d.store.Get(ctx, documentsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("corrupt document ledger: %w", err)
	}
	return docs, nil
}

func (d *Documents) save(ctx context.Context, docs []Document) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, documentsKey, raw)
}
