package domain

import "time"

// Content sources known to the ingestion path.
const (
	SourceCatalog  = "catalog"
	SourceTechDocs = "techdocs"
	SourceAPIs     = "apis"
)

func KnownSources() []string {
	return []string{SourceCatalog, SourceTechDocs, SourceAPIs}
}

func IsKnownSource(source string) bool {
	for _, s := range KnownSources() {
		if s == source {
			return true
		}
	}
	return false
}

type IndexedDoc struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	Text      string     `json:"text,omitempty"`
	URL       string     `json:"url"`
	Tags      []string   `json:"tags,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	Namespace string     `json:"namespace,omitempty"`
	Owner     string     `json:"owner,omitempty"`
	System    string     `json:"system,omitempty"`
	Lifecycle string     `json:"lifecycle,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Embedding []float32  `json:"embedding,omitempty"`
}

// Page is one page of a cursor-paginated provider. A nil NextCursor means
// there are no more pages.
type Page struct {
	Items      []IndexedDoc
	NextCursor *string
}

type IngestStats struct {
	Pages int `json:"pages"`
	Items int `json:"items"`
}

type IngestRunStatus string

const (
	RunStatusRunning   IngestRunStatus = "running"
	RunStatusSucceeded IngestRunStatus = "succeeded"
	RunStatusFailed    IngestRunStatus = "failed"
)

type IngestRun struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Status     IngestRunStatus `json:"status"`
	Pages      int             `json:"pages"`
	Items      int             `json:"items"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// ReindexResult is returned by the admin reindex operation.
type ReindexResult struct {
	Source string       `json:"source"`
	Queued bool         `json:"queued"`
	Stats  *IngestStats `json:"stats,omitempty"`
}
