package models

// Metadata is the record attached to every stored chunk. Optional fields are
// pointers so that absent values serialize as explicit JSON nulls and
// consumers can rely on key presence.
type Metadata struct {
	Topic       string  `json:"topic"`
	SourceURL   string  `json:"source_url"`
	ImageURL    *string `json:"image_url"`
	Tags        *string `json:"tags"`
	PDFFilename *string `json:"pdf_filename"`
}

// Match is one entry of a similarity query result, nearest first.
type Match struct {
	ID       string   `json:"id"`
	Document string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Distance float32  `json:"distance"`
}

// Page is the payload returned by the content source for one topic.
type Page struct {
	Title  string
	URL    string
	Text   string
	Images []string
}

// SearchResponse carries ranked matches plus the single best image chosen by
// the secondary image rerank, or nil when no candidate had a usable image.
type SearchResponse struct {
	Matches        []Match `json:"results"`
	SuggestedImage *string `json:"suggested_image"`
}

// AnswerResponse is the outcome of a retrieval-plus-generation call. Exactly
// one of Answer or Error is set; a generation failure is a payload, not a
// fault, so retrieval results are preserved.
type AnswerResponse struct {
	Answer         string  `json:"answer,omitempty"`
	Error          string  `json:"error,omitempty"`
	SuggestedImage *string `json:"suggested_image"`
}
