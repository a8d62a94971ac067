package domain

// Unit is an ordered piece of extracted text, optionally tied to a page.
// Extractors produce units; the chunker consumes and re-emits them.
type Unit struct {
	Text string
	Page *int
}

// Passage is an indexed chunk. The ID encodes origin and order as
// "{docID}_{sequence}".
type Passage struct {
	ID    string `json:"id"`
	Text  string `json:"clause"`
	DocID int64  `json:"doc_id"`
	Page  *int   `json:"page,omitempty"`
}

// Candidate is a scored passage produced during retrieval. It lives only for
// the duration of one query.
type Candidate struct {
	Text           string
	Score          float64
	Page           *int
	DocID          *int64
	KeywordMatches bool
}

// Reference points a reader back at the supporting passage. Score is nil for
// answers produced without a scored retrieval pass.
type Reference struct {
	Text  string   `json:"text"`
	Page  *int     `json:"page,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Answer is the final response to one question.
type Answer struct {
	Text       string      `json:"answer"`
	References []Reference `json:"references"`
}
