package domain

import "time"

// DocumentMetadata holds the optional bibliographic fields of a document
type DocumentMetadata struct {
	Author          string `json:"author,omitempty" yaml:"author"`
	Title           string `json:"title,omitempty" yaml:"title"`
	PublicationDate string `json:"publication_date,omitempty" yaml:"publication_date"`
	Source          string `json:"source,omitempty" yaml:"source"`
	DOIURL          string `json:"doi_url,omitempty" yaml:"doi_url"`
}

// IsZero reports whether no metadata field is set
func (m DocumentMetadata) IsZero() bool {
	return m == DocumentMetadata{}
}

// Document represents an uploaded document
type Document struct {
	ID         int64            `json:"id"`
	Filename   string           `json:"filename"`
	Content    string           `json:"-"`
	UploadedAt time.Time        `json:"uploaded_at"`
	ChunkCount int              `json:"chunks_count"`
	Metadata   DocumentMetadata `json:"metadata"`
}

// Chunk is a bounded text segment of a document with its embedding
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Text       string    `json:"chunk_text"`
	Embedding  []float32 `json:"-"`
}

// CorpusChunk is a stored chunk joined with the document it belongs to
type CorpusChunk struct {
	Chunk
	Filename string
	Metadata DocumentMetadata
}

// Citation returns the document citation for this chunk. The filename stands in
// for a missing title.
func (c CorpusChunk) Citation() DocumentCitation {
	title := c.Metadata.Title
	if title == "" {
		title = c.Filename
	}
	return DocumentCitation{
		Author:          c.Metadata.Author,
		Title:           title,
		PublicationDate: c.Metadata.PublicationDate,
		Source:          c.Metadata.Source,
		DOIURL:          c.Metadata.DOIURL,
	}
}

// IngestResult reports the outcome of ingesting one file
type IngestResult struct {
	Filename   string `json:"filename"`
	DocumentID int64  `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

// UpdateMetadataRequest is the request to edit a document's bibliographic metadata
type UpdateMetadataRequest struct {
	DocumentMetadata
}
