package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/roboll/slicerprofiledb/pkg/version"
)

// Tag is one enumerated repository tag, paired with its normalized
// version form.
type Tag struct {
	Raw        string
	Normalized string
}

// TagSource is the tag enumeration contract of spec.md §6: paginated
// (100/page) listing of a repository's tags, optionally filtered by
// regexp, optionally authorized by a bearer token for extended rate
// limits.
type TagSource interface {
	ListTags(ctx context.Context, repo string, tagPattern *regexp.Regexp) ([]Tag, error)
}

// GitHubTagSource lists tags via the GitHub REST API.
type GitHubTagSource struct {
	Token      string
	HTTPClient *http.Client
}

const githubPageSize = 100

type githubTag struct {
	Name string `json:"name"`
}

func (g *GitHubTagSource) client() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

func (g *GitHubTagSource) ListTags(ctx context.Context, repo string, tagPattern *regexp.Regexp) ([]Tag, error) {
	var out []Tag
	pageNum := 1
	for {
		url := fmt.Sprintf("https://api.github.com/repos/%s/tags?per_page=%d&page=%d", repo, githubPageSize, pageNum)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: tags request: %w", err)
		}
		if g.Token != "" {
			req.Header.Set("Authorization", "Bearer "+g.Token)
		}
		resp, err := g.client().Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch: tags request: %w", err)
		}

		var tags []githubTag
		decErr := json.NewDecoder(resp.Body).Decode(&tags)
		resp.Body.Close()
		if decErr != nil {
			return nil, fmt.Errorf("fetch: decode tags: %w", decErr)
		}
		if len(tags) == 0 {
			break
		}
		for _, t := range tags {
			if tagPattern != nil && !tagPattern.MatchString(t.Name) {
				continue
			}
			out = append(out, Tag{Raw: t.Name, Normalized: version.Normalize(t.Name)})
		}
		if len(tags) < githubPageSize {
			break
		}
		pageNum++
	}
	return out, nil
}
