package models

// Result is one web search hit as returned by a provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
}
