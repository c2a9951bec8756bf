package indexer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxPageBytes caps how much of a page body is read.
const maxPageBytes = 8 << 20

// Loader fetches one source document.
type Loader interface {
	Load(ctx context.Context, url string) (Document, error)
}

var _ Loader = (*WebLoader)(nil)

// WebLoader fetches HTML pages and keeps their visible text.
type WebLoader struct {
	client    *http.Client
	userAgent string
}

// WebLoaderOption is a functional option for [NewWebLoader].
type WebLoaderOption func(*WebLoader)

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) WebLoaderOption {
	return func(l *WebLoader) { l.client = c }
}

// WithUserAgent sets the User-Agent request header.
func WithUserAgent(ua string) WebLoaderOption {
	return func(l *WebLoader) { l.userAgent = ua }
}

// NewWebLoader returns a loader over plain HTTP GET.
func NewWebLoader(opts ...WebLoaderOption) *WebLoader {
	l := &WebLoader{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "aemindex/1.0",
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load implements [Loader].
func (l *WebLoader) Load(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("indexer: build request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := l.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("indexer: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("indexer: GET %s returned status %d", url, resp.StatusCode)
	}

	text, err := ExtractText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Document{}, fmt.Errorf("indexer: parse %s: %w", url, err)
	}
	return Document{Content: text, Source: url, DocType: "web"}, nil
}

// ExtractText returns the visible text of an HTML document, one block per
// line. Script, style and template contents are dropped.
func ExtractText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var (
		out  strings.Builder
		line strings.Builder
	)
	flush := func() {
		if s := strings.Join(strings.Fields(line.String()), " "); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			line.WriteString(n.Data)
			line.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Head:
				return
			}
		}
		block := n.Type == html.ElementNode && isBlock(n.DataAtom)
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()
	return strings.TrimSpace(out.String()), nil
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer,
		atom.Nav, atom.Aside, atom.Li, atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Br,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}
