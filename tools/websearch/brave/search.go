package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/scour-research/scour/tools/websearch/models"
)

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	ApiKey   string
	Endpoint string // overridable for tests
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, locale string) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	if len(sites) > 0 {
		var filters []string
		for _, site := range sites {
			filters = append(filters, "site:"+site)
		}
		q = q + " (" + strings.Join(filters, " OR ") + ")"
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	target := fmt.Sprintf("%s?q=%s&count=%d", endpoint, url.QueryEscape(q), k)
	if _, country := splitLocale(locale); country != "" {
		target += "&country=" + country
	}
	req, _ := http.NewRequestWithContext(ctx, "GET", target, nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned status: %d", resp.StatusCode)
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

// splitLocale maps "en-US" style locales to brave's country code.
func splitLocale(locale string) (lang, country string) {
	parts := strings.SplitN(locale, "-", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[0]), strings.ToUpper(parts[1])
	}
	return "", ""
}
