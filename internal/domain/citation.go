package domain

import (
	"encoding/json"
	"fmt"
)

// Citation kinds as they appear in the context frame
const (
	CitationKindDocument = "document"
	CitationKindWeb      = "web"
)

// Citation is either a DocumentCitation or a WebCitation.
type Citation interface {
	Kind() string
	citation()
}

// DocumentCitation references an uploaded document
type DocumentCitation struct {
	Author          string
	Title           string
	PublicationDate string
	Source          string
	DOIURL          string
}

// WebCitation references a web search result
type WebCitation struct {
	Title      string
	URL        string
	AccessDate string
}

func (DocumentCitation) Kind() string { return CitationKindDocument }
func (DocumentCitation) citation()    {}
func (WebCitation) Kind() string      { return CitationKindWeb }
func (WebCitation) citation()         {}

type documentCitationJSON struct {
	Type            string `json:"type"`
	Author          string `json:"author,omitempty"`
	Title           string `json:"title,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
	Source          string `json:"source,omitempty"`
	DOIURL          string `json:"doi_url,omitempty"`
}

type webCitationJSON struct {
	Type       string `json:"type"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	AccessDate string `json:"access_date,omitempty"`
}

// MarshalJSON tags the payload with its kind
func (c DocumentCitation) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentCitationJSON{
		Type:            CitationKindDocument,
		Author:          c.Author,
		Title:           c.Title,
		PublicationDate: c.PublicationDate,
		Source:          c.Source,
		DOIURL:          c.DOIURL,
	})
}

// MarshalJSON tags the payload with its kind
func (c WebCitation) MarshalJSON() ([]byte, error) {
	return json.Marshal(webCitationJSON{
		Type:       CitationKindWeb,
		Title:      c.Title,
		URL:        c.URL,
		AccessDate: c.AccessDate,
	})
}

// CitationList decodes a JSON array of tagged citations
type CitationList []Citation

// UnmarshalJSON dispatches each element on its "type" field
func (l *CitationList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(CitationList, 0, len(raw))
	for _, item := range raw {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return err
		}

		switch head.Type {
		case CitationKindDocument:
			var d documentCitationJSON
			if err := json.Unmarshal(item, &d); err != nil {
				return err
			}
			out = append(out, DocumentCitation{
				Author:          d.Author,
				Title:           d.Title,
				PublicationDate: d.PublicationDate,
				Source:          d.Source,
				DOIURL:          d.DOIURL,
			})
		case CitationKindWeb:
			var w webCitationJSON
			if err := json.Unmarshal(item, &w); err != nil {
				return err
			}
			out = append(out, WebCitation{Title: w.Title, URL: w.URL, AccessDate: w.AccessDate})
		default:
			return fmt.Errorf("unknown citation type %q", head.Type)
		}
	}

	*l = out
	return nil
}

// WebResult is one search engine hit
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
