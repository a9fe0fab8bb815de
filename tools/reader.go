package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/model"
)

const (
	defaultMaxPageBytes = 2 << 20
	// MaxQueryURLs bounds how many links from a query are read per turn.
	MaxQueryURLs = 3
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `]+`)

// ExtractURLs returns the distinct http(s) links in text, in order, at most limit.
func ExtractURLs(text string, limit int) []string {
	var urls []string
	seen := map[string]bool{}
	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:!?)]}")
		if seen[raw] {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			continue
		}
		seen[raw] = true
		urls = append(urls, raw)
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	return urls
}

// URLReader fetches pages and converts their main content to markdown.
type URLReader struct {
	client       *http.Client
	exec         *Executor
	policy       *bluemonday.Policy
	maxBytes     int64
	contentRunes int
}

// NewURLReader creates a reader. A nil client uses a 20s timeout client.
func NewURLReader(client *http.Client, exec *Executor) *URLReader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &URLReader{
		client:       client,
		exec:         exec,
		policy:       bluemonday.UGCPolicy(),
		maxBytes:     defaultMaxPageBytes,
		contentRunes: DefaultContentRunes,
	}
}

// Read fetches each URL under its own span. Pages that fail are skipped.
func (r *URLReader) Read(ctx context.Context, parent *events.Span, urls []string) []model.Source {
	if r == nil {
		return nil
	}
	var sources []model.Source
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		src, ok := Invoke(ctx, r.exec, parent, Call[model.Source]{
			Tool:  ToolURLReader,
			Input: u,
			Run: func(ctx context.Context) (model.Source, error) {
				return r.fetch(ctx, u)
			},
			Describe: func(s model.Source) string {
				return fmt.Sprintf("%q, %d rune(s)", s.Title, len([]rune(s.PageContent)))
			},
		})
		if ok {
			sources = append(sources, src)
		}
	}
	return sources
}

func (r *URLReader) fetch(ctx context.Context, pageURL string) (model.Source, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return model.Source{}, Permanentf("invalid url %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return model.Source{}, Permanent(err)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Source{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if err := checkStatus("fetch "+pageURL, resp); err != nil {
		return model.Source{}, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes))
	if err != nil {
		return model.Source{}, fmt.Errorf("read %s: %w", pageURL, err)
	}

	var title, content string
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/plain", "text/markdown":
		title, content = plainContent(data)
	default:
		title, content = r.htmlContent(data, parsed)
	}

	if content == "" {
		return model.Source{}, Permanentf("no readable content at %s", pageURL)
	}
	if title == "" {
		title = pageURL
	}
	return model.Source{
		URL:         pageURL,
		Title:       title,
		PageContent: truncateRunes(content, r.contentRunes),
	}, nil
}

// htmlContent extracts the main article, sanitizes it and converts it to
// markdown, falling back to the article's plain text.
func (r *URLReader) htmlContent(data []byte, pageURL *url.URL) (title, content string) {
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil || article.Node == nil {
		return "", ""
	}
	title = strings.TrimSpace(article.Title())

	var raw bytes.Buffer
	if err := html.Render(&raw, article.Node); err == nil {
		clean := r.policy.Sanitize(raw.String())
		if md, err := htmltomarkdown.ConvertString(clean); err == nil {
			if text := normalizeContent(md); text != "" {
				return title, text
			}
		}
	}

	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return title, ""
	}
	return title, normalizeContent(buf.String())
}

func plainContent(data []byte) (title, content string) {
	text := normalizeContent(string(data))
	for _, line := range strings.SplitN(text, "\n", 10) {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(rest), text
		}
	}
	return "", text
}

// normalizeContent trims lines and collapses runs of blank lines.
func normalizeContent(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
