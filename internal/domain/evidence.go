package domain

// SearchHit is a single result from one index arm (dense or sparse), before
// fusion. Payload carries the stored passage fields.
type SearchHit struct {
	ID      string
	Score   float64
	Payload PassagePayload
}

// PassagePayload is the passage-derived payload stored alongside a vector.
type PassagePayload struct {
	Content      string
	Page         int
	Category     string
	IsTable      bool
	SectionTitle string
	DocSource    string
	Checksum     string
	Meta         map[string]string
}

// Evidence is a cleaned retrieval record returned to callers. Meta holds
// textual fields only; binary, file, and vector fields are stripped before it
// leaves the retrieval service.
type Evidence struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Content  string            `json:"content"`
	Meta     map[string]string `json:"meta"`
	Page     int               `json:"page"`
	Checksum string            `json:"checksum"`
	IsTable  bool              `json:"is_table"`
}
