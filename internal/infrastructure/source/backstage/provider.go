package backstage

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

const (
	techDocsAnnotation = "backstage.io/techdocs-ref"
	updatedAnnotation  = "backstage.io/updated-at"
	maxDefinitionLen   = 20000
)

// Provider is a ports.ContentProvider for one source.
type Provider struct {
	client  *Client
	source  string
	filters []string
	toDoc   func(base string, e entity) domain.IndexedDoc
}

// NewCatalogProvider indexes every catalog entity.
func NewCatalogProvider(client *Client) *Provider {
	return &Provider{client: client, source: domain.SourceCatalog, toDoc: catalogDoc}
}

// NewTechDocsProvider indexes the documentation sites of entities that
// publish TechDocs.
func NewTechDocsProvider(client *Client) *Provider {
	return &Provider{
		client:  client,
		source:  domain.SourceTechDocs,
		filters: []string{"metadata.annotations." + techDocsAnnotation},
		toDoc:   techDocsDoc,
	}
}

// NewAPIProvider indexes API entities with their definitions.
func NewAPIProvider(client *Client) *Provider {
	return &Provider{
		client:  client,
		source:  domain.SourceAPIs,
		filters: []string{"kind=API"},
		toDoc:   apiDoc,
	}
}

func (p *Provider) Source() string {
	return p.source
}

func (p *Provider) FetchPage(ctx context.Context, cursor *string, limit int) (domain.Page, error) {
	resp, err := p.client.queryEntities(ctx, p.filters, cursor, limit)
	if err != nil {
		return domain.Page{}, fmt.Errorf("fetch %s entities: %w", p.source, err)
	}

	docs := make([]domain.IndexedDoc, 0, len(resp.Items))
	for _, e := range resp.Items {
		if e.Metadata.Name == "" {
			continue
		}
		docs = append(docs, p.toDoc(p.client.baseURL, e))
	}

	next := resp.PageInfo.NextCursor
	if next != nil && *next == "" {
		next = nil
	}
	return domain.Page{Items: docs, NextCursor: next}, nil
}

func baseDoc(e entity) domain.IndexedDoc {
	title := e.Metadata.Title
	if title == "" {
		title = e.Metadata.Name
	}
	doc := domain.IndexedDoc{
		ID:        e.Metadata.UID,
		Title:     title,
		Text:      e.Metadata.Description,
		Tags:      e.Metadata.Tags,
		Kind:      e.Kind,
		Namespace: namespace(e),
		Owner:     e.Spec.Owner,
		System:    e.Spec.System,
		Lifecycle: e.Spec.Lifecycle,
	}
	if raw := e.Metadata.Annotations[updatedAnnotation]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			doc.UpdatedAt = &t
		}
	}
	return doc
}

func catalogDoc(base string, e entity) domain.IndexedDoc {
	doc := baseDoc(e)
	doc.URL = fmt.Sprintf("%s/catalog/%s/%s/%s", base, namespace(e), strings.ToLower(e.Kind), e.Metadata.Name)
	return doc
}

func techDocsDoc(base string, e entity) domain.IndexedDoc {
	doc := baseDoc(e)
	if doc.ID != "" {
		doc.ID = "docs-" + doc.ID
	}
	doc.URL = fmt.Sprintf("%s/docs/%s/%s/%s", base, namespace(e), strings.ToLower(e.Kind), e.Metadata.Name)
	doc.Title = doc.Title + " documentation"
	return doc
}

func apiDoc(base string, e entity) domain.IndexedDoc {
	doc := baseDoc(e)
	doc.URL = fmt.Sprintf("%s/catalog/%s/api/%s/definition", base, namespace(e), e.Metadata.Name)
	if def := strings.TrimSpace(e.Spec.Definition); def != "" {
		def = truncateUTF8(def, maxDefinitionLen)
		doc.Text = strings.TrimSpace(doc.Text + "\n" + def)
	}
	if e.Spec.Type != "" {
		doc.Tags = append(append([]string(nil), doc.Tags...), e.Spec.Type)
	}
	return doc
}

func namespace(e entity) string {
	if e.Metadata.Namespace == "" {
		return "default"
	}
	return e.Metadata.Namespace
}

// truncateUTF8 caps s at n bytes without splitting a multi-byte rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
