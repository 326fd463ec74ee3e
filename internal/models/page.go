package models

// Page is one titled page from a page export: an ordered list of source lines.
type Page struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// PageSet is the page-export source format: {"pages": [{"title", "lines"}, ...]}.
type PageSet struct {
	Pages []Page `json:"pages"`
}
