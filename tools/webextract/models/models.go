package models

// Result is the outcome of fetching and extracting one URL.
type Result struct {
	URL      string
	Title    string
	Text     string
	Status   int
	RenderMS int
}
