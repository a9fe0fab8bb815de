package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/model"
)

type stubRerank struct {
	results []RerankResult
	err     error
}

func (s stubRerank) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	return s.results, s.err
}

func testSources() []model.Source {
	return []model.Source{
		{URL: "https://a.test", Title: "Cooking pasta", PageContent: "boil water and salt", Score: 0.9},
		{URL: "https://b.test", Title: "Golang channels", PageContent: "goroutines communicate over channels", Score: 0.2},
		{URL: "https://c.test", Title: "Gardening", PageContent: "plant seeds in spring", Score: 0.5},
	}
}

func TestCohereRerankClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var req rerankRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "rerank-v3.5" || len(req.Documents) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.8},{"index":0,"relevance_score":0.1}]}`))
	}))
	defer server.Close()

	client, err := NewRerankClient(RerankConfig{Provider: "Cohere", Model: "rerank-v3.5", APIKey: "key", APIURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	results, err := client.Rerank(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(results) != 2 || results[0].Index != 1 || results[0].RelevanceScore != 0.8 {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestRerankClientRejectsBadIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"index":7,"relevance_score":0.8}]}`))
	}))
	defer server.Close()

	client, _ := NewRerankClient(RerankConfig{Provider: "generic", APIURL: server.URL})
	if _, err := client.Rerank(context.Background(), "q", []string{"a"}); !errors.Is(err, ErrPermanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestNewRerankClientValidation(t *testing.T) {
	if _, err := NewRerankClient(RerankConfig{}); err == nil {
		t.Error("expected error for missing provider")
	}
	if _, err := NewRerankClient(RerankConfig{Provider: "generic"}); err == nil {
		t.Error("expected error for generic without url")
	}
	if _, err := NewRerankClient(RerankConfig{Provider: "mystery"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestRerankerUsesCrossEncoder(t *testing.T) {
	r := NewReranker(stubRerank{results: []RerankResult{{Index: 2, RelevanceScore: 0.3}, {Index: 1, RelevanceScore: 0.95}}}, fastExecutor(0))

	var out []model.Source
	stream := runUnderRoot(t, func(root *events.Span) {
		out = r.Rerank(context.Background(), root, "golang channels", testSources())
	})
	if len(out) != 2 || out[0].URL != "https://b.test" || out[0].Score != 0.95 {
		t.Errorf("unexpected order %+v", out)
	}
	if len(toolEvents(stream, ToolRerank)) == 0 {
		t.Error("expected a rerank tool span")
	}
}

func TestRerankerRejectsInvalidIndexes(t *testing.T) {
	cases := map[string][]RerankResult{
		"out of range": {{Index: 7, RelevanceScore: 0.9}},
		"negative":     {{Index: -1, RelevanceScore: 0.9}},
		"duplicate":    {{Index: 1, RelevanceScore: 0.9}, {Index: 1, RelevanceScore: 0.8}},
	}
	for name, results := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewReranker(stubRerank{results: results}, fastExecutor(0))
			out := r.Rerank(context.Background(), nil, "golang channels goroutines", unscored())
			if len(out) != 3 {
				t.Fatalf("expected keyword fallback over all sources, got %d", len(out))
			}
			if out[0].URL != "https://b.test" {
				t.Errorf("expected keyword match first, got %s", out[0].URL)
			}
		})
	}
}

func unscored() []model.Source {
	sources := testSources()
	for i := range sources {
		sources[i].Score = 0
	}
	return sources
}

func TestRerankerFallsBackToKeywords(t *testing.T) {
	r := NewReranker(stubRerank{err: errors.New("503")}, fastExecutor(0))
	out := r.Rerank(context.Background(), nil, "golang channels goroutines", unscored())
	if len(out) != 3 {
		t.Fatalf("expected all sources, got %d", len(out))
	}
	if out[0].URL != "https://b.test" {
		t.Errorf("expected keyword match first, got %s", out[0].URL)
	}
}

func TestRerankerNilClient(t *testing.T) {
	out := NewReranker(nil, nil).Rerank(context.Background(), nil, "plant seeds spring", unscored())
	if out[0].URL != "https://c.test" {
		t.Errorf("expected gardening first, got %s", out[0].URL)
	}
}

func TestRRFCombinesSignals(t *testing.T) {
	// b matches the query best, a has the best search score.
	out := rrfRerank("golang channels goroutines", testSources())
	if out[0].URL != "https://a.test" && out[0].URL != "https://b.test" {
		t.Errorf("expected a or b first, got %s", out[0].URL)
	}
	if out[2].URL != "https://c.test" {
		t.Errorf("expected gardening last, got %s", out[2].URL)
	}
	for i := 1; i < len(out); i++ {
		if out[i].Score > out[i-1].Score {
			t.Fatalf("scores not descending: %+v", out)
		}
	}
}

func TestRRFNoTermsKeepsOrder(t *testing.T) {
	in := testSources()
	out := rrfRerank("a b", in)
	for i := range in {
		if out[i].URL != in[i].URL {
			t.Fatalf("order changed: %+v", out)
		}
	}
}

func TestCapSources(t *testing.T) {
	in := append(testSources(), model.Source{URL: "https://a.test", Title: "dup"})
	out := CapSources(in, 2)
	if len(out) != 2 || out[0].URL != "https://a.test" || out[1].URL != "https://b.test" {
		t.Errorf("unexpected %+v", out)
	}
	if len(CapSources(in, 0)) != 3 {
		t.Error("expected dedupe without cap")
	}
}
