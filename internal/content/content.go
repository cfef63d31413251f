// Package content renders library components for launched principals.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
)

var embedTmpl = template.Must(template.New("embed").Parse(
	`<iframe src="{{.}}" title="component" style="width:100%;height:100%;border:0" allow="fullscreen"></iframe>`))

// EmbedLoader frames the component from a rendering frontend.
type EmbedLoader struct {
	base string
}

func NewEmbedLoader(baseURL string) *EmbedLoader {
	return &EmbedLoader{base: strings.TrimRight(baseURL, "/")}
}

func (l *EmbedLoader) LoadContent(_ context.Context, key ltitool.UsageKey, _ string) (*ltitool.Fragment, error) {
	src := l.base + "/xblock/" + url.PathEscape(key.String())
	var buf bytes.Buffer
	if err := embedTmpl.Execute(&buf, src); err != nil {
		return nil, err
	}
	return &ltitool.Fragment{Title: key.BlockID, HTML: template.HTML(buf.String())}, nil
}

// HTTPLoader asks a block rendering service for the fragment:
// GET {base}/blocks/{usage key}/fragment?principal=... answering {"title","html"}.
type HTTPLoader struct {
	base   string
	client *http.Client
}

// maxFragment caps rendered fragments at 4MB.
const maxFragment = 4 << 20

func NewHTTPLoader(baseURL string, timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{base: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

func (l *HTTPLoader) LoadContent(ctx context.Context, key ltitool.UsageKey, principal string) (*ltitool.Fragment, error) {
	u := l.base + "/blocks/" + url.PathEscape(key.String()) + "/fragment?" + url.Values{"principal": {principal}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content: fetch %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content: render %s: unexpected status %d", key, resp.StatusCode)
	}
	var body struct {
		Title string `json:"title"`
		HTML  string `json:"html"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFragment)).Decode(&body); err != nil {
		return nil, fmt.Errorf("content: decode %s: %w", key, err)
	}
	logger.Debug("content: rendered %s for %s (%d bytes)", key, principal, len(body.HTML))
	title := body.Title
	if title == "" {
		title = key.BlockID
	}
	// the rendering service is trusted to return sanitized markup
	return &ltitool.Fragment{Title: title, HTML: template.HTML(body.HTML)}, nil
}
