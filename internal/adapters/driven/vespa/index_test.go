package vespa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeVespa records requests and answers with handler.
type fakeVespa struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r recordedRequest)
}

func newFakeVespa(t *testing.T, handler func(w http.ResponseWriter, r recordedRequest)) (*fakeVespa, Config) {
	t.Helper()
	f := &fakeVespa{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Body); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		if f.handler != nil {
			f.handler(w, rec)
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return f, DefaultConfig(srv.URL)
}

func (f *fakeVespa) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func TestChunkIndex_Upsert(t *testing.T) {
	fake, cfg := newFakeVespa(t, nil)
	idx := NewChunkIndex(cfg)

	expires := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	n, err := idx.Upsert(context.Background(), []domain.IndexedDocument{{
		ID:        "f1_0",
		Content:   "Product: Product B | Stock: -50",
		Embedding: []float32{0.1, 0.2},
		Metadata:  domain.ChunkMetadata{Filename: "stock.csv", FileType: domain.SourceTypeCSV, RowNumber: 2},
		OwnerID:   "u1",
		FileID:    "f1",
		ExpiresAt: expires,
	}})
	if err != nil || n != 1 {
		t.Fatalf("Upsert() = %d, %v", n, err)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if reqs[0].Method != http.MethodPost || reqs[0].Path != "/document/v1/supplychain/user_document/docid/f1_0" {
		t.Errorf("unexpected request %s %s", reqs[0].Method, reqs[0].Path)
	}
	fields := reqs[0].Body["fields"].(map[string]any)
	if fields["owner_id"] != "u1" || fields["file_id"] != "f1" {
		t.Errorf("owner/file not fed: %v", fields)
	}
	if fields["expires_at"].(float64) != float64(expires.Unix()) {
		t.Errorf("expires_at = %v", fields["expires_at"])
	}
	var meta domain.ChunkMetadata
	if err := json.Unmarshal([]byte(fields["metadata"].(string)), &meta); err != nil || meta.RowNumber != 2 {
		t.Errorf("metadata not stored as JSON string: %v %v", fields["metadata"], err)
	}
}

func TestChunkIndex_Upsert_PartialRejection(t *testing.T) {
	_, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		if strings.HasSuffix(r.Path, "/bad") {
			http.Error(w, `{"message":"tensor dimension mismatch"}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{}`))
	})
	idx := NewChunkIndex(cfg)

	docs := []domain.IndexedDocument{{ID: "ok1"}, {ID: "bad"}, {ID: "ok2"}}
	n, err := idx.Upsert(context.Background(), docs)
	if err != nil || n != 2 {
		t.Errorf("Upsert() = %d, %v; want 2, nil", n, err)
	}

	n, err = idx.Upsert(context.Background(), []domain.IndexedDocument{{ID: "bad"}})
	var ie *domain.IndexError
	if n != 0 || !errors.As(err, &ie) {
		t.Errorf("all rejected: got %d, %v", n, err)
	}
}

func TestChunkIndex_Upsert_ServerErrorIsTransient(t *testing.T) {
	_, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	idx := NewChunkIndex(cfg)

	_, err := idx.Upsert(context.Background(), []domain.IndexedDocument{{ID: "a"}, {ID: "b"}})
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestChunkIndex_Search(t *testing.T) {
	meta, _ := json.Marshal(domain.ChunkMetadata{Filename: "stock.csv", FileType: domain.SourceTypeCSV, RowNumber: 3})
	fake, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		json.NewEncoder(w).Encode(map[string]any{
			"root": map[string]any{
				"fields": map[string]any{"totalCount": 1},
				"children": []map[string]any{{
					"id":        "id:supplychain:user_document::f1_1",
					"relevance": 0.82,
					"fields": map[string]any{
						"id":            "f1_1",
						"content":       "Product: Product B | Stock: -50",
						"metadata":      string(meta),
						"matchfeatures": map[string]any{"distance(field,embedding)": 0.31},
					},
				}},
			},
		})
	})
	idx := NewChunkIndex(cfg)

	results, err := idx.Search(context.Background(), domain.SearchQuery{
		Text:      `stock "B"`,
		Embedding: []float32{0.5},
		Filter:    domain.DocumentFilter{OwnerID: "u1", FileID: "f1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.RelevanceScore != 0.82 || r.VectorDistance != 0.31 || r.Metadata.RowNumber != 3 || r.Metadata.Filename != "stock.csv" {
		t.Errorf("unexpected result %+v", r)
	}

	body := fake.Requests()[0].Body
	yql := body["yql"].(string)
	for _, want := range []string{
		"select * from user_document where",
		"userQuery()",
		"nearestNeighbor(embedding,embedding)",
		`owner_id contains "u1"`,
		`file_id contains "f1"`,
	} {
		if !strings.Contains(yql, want) {
			t.Errorf("yql %q missing %q", yql, want)
		}
	}
	if body["ranking.profile"] != "hybrid" || body["hits"].(float64) != domain.DefaultTopK {
		t.Errorf("unexpected request %v", body)
	}
	if body["query"] != `stock "B"` {
		t.Errorf("query = %v", body["query"])
	}
}

func TestChunkIndex_Search_NoEmbeddingFallsBackToBM25(t *testing.T) {
	fake, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`{"root":{"fields":{"totalCount":0}}}`))
	})
	idx := NewChunkIndex(cfg)

	results, err := idx.Search(context.Background(), domain.SearchQuery{Text: "stock", Filter: domain.DocumentFilter{OwnerID: "u1"}, TopK: 3})
	if err != nil || len(results) != 0 {
		t.Fatalf("Search() = %v, %v", results, err)
	}
	body := fake.Requests()[0].Body
	if body["ranking.profile"] != "bm25" {
		t.Errorf("ranking.profile = %v", body["ranking.profile"])
	}
	if _, ok := body["input.query(embedding)"]; ok {
		t.Error("embedding sent to bm25 profile")
	}
	if strings.Contains(body["yql"].(string), "nearestNeighbor") {
		t.Error("bm25 query uses nearestNeighbor")
	}
}

func TestChunkIndex_Search_RequiresOwner(t *testing.T) {
	fake, cfg := newFakeVespa(t, nil)
	idx := NewChunkIndex(cfg)

	_, err := idx.Search(context.Background(), domain.SearchQuery{Text: "stock"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("got %v", err)
	}
	if len(fake.Requests()) != 0 {
		t.Error("query sent without owner")
	}
}

func TestChunkIndex_Delete(t *testing.T) {
	fake, cfg := newFakeVespa(t, nil)
	idx := NewChunkIndex(cfg)

	now := time.Unix(1700000000, 0)
	if err := idx.Delete(context.Background(), domain.DocumentFilter{ExpiredAt: &now}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(context.Background(), domain.DocumentFilter{OwnerID: "u1", FileID: "f1"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(context.Background(), domain.DocumentFilter{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty filter: got %v", err)
	}

	reqs := fake.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if reqs[0].Method != http.MethodDelete || reqs[0].Path != "/document/v1/supplychain/user_document/docid/" {
		t.Errorf("unexpected request %s %s", reqs[0].Method, reqs[0].Path)
	}
	if !strings.Contains(reqs[0].Query, "user_document.expires_at%3C1700000000") {
		t.Errorf("expiry selection missing: %s", reqs[0].Query)
	}
	if !strings.Contains(reqs[0].Query, "cluster=supplychain") {
		t.Errorf("cluster missing: %s", reqs[0].Query)
	}
	if !strings.Contains(reqs[1].Query, "user_document.owner_id%3D%3D%22u1%22+and+user_document.file_id%3D%3D%22f1%22") {
		t.Errorf("owner/file selection missing: %s", reqs[1].Query)
	}
}

func TestKnowledgeIndex_UpsertAndSearch(t *testing.T) {
	fake, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Path != "/search/" {
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"root": map[string]any{
				"children": []map[string]any{{
					"id":        "id:supplychain:knowledge::k1",
					"relevance": 1.5,
					"fields": map[string]any{
						"id":         "k1",
						"category":   "inventaire",
						"title":      "Stock de sécurité",
						"content":    "SS = Z × σ × √L",
						"metadata":   `{"source":"manuel"}`,
						"tags":       []string{"stock"},
						"created_at": 1700000000,
					},
				}},
			},
		})
	})
	idx := NewKnowledgeIndex(cfg)
	ctx := context.Background()

	if _, err := idx.Upsert(ctx, []domain.KnowledgeItem{{ID: "k1", Title: "t"}}); err == nil {
		t.Error("expected error for item without embedding")
	}
	n, err := idx.Upsert(ctx, []domain.KnowledgeItem{{
		ID: "k1", Category: "inventaire", Title: "Stock de sécurité", Content: "SS",
		Tags: []string{"stock"}, Metadata: map[string]string{"source": "manuel"},
		Embedding: []float32{0.1},
	}})
	if err != nil || n != 1 {
		t.Fatalf("Upsert() = %d, %v", n, err)
	}

	results, err := idx.Search(ctx, domain.KnowledgeQuery{
		Text: "stock", Embedding: []float32{0.1}, Category: "inventaire", Tags: []string{"stock", "risque"}, TopK: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	item := results[0].Item
	if item.Title != "Stock de sécurité" || item.Metadata["source"] != "manuel" || item.CreatedAt.Unix() != 1700000000 {
		t.Errorf("unexpected item %+v", item)
	}

	reqs := fake.Requests()
	feed := reqs[0]
	if feed.Path != "/document/v1/supplychain/knowledge/docid/k1" {
		t.Errorf("feed path = %s", feed.Path)
	}
	if feed.Body["fields"].(map[string]any)["metadata"] != `{"source":"manuel"}` {
		t.Errorf("metadata = %v", feed.Body["fields"])
	}
	yql := reqs[1].Body["yql"].(string)
	for _, want := range []string{`category contains "inventaire"`, `tags contains "stock"`, `tags contains "risque"`, "select * from knowledge"} {
		if !strings.Contains(yql, want) {
			t.Errorf("yql %q missing %q", yql, want)
		}
	}
}

func TestKnowledgeIndex_Delete(t *testing.T) {
	fake, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"id":"id:supplychain:knowledge::missing"}`))
			return
		}
		w.Write([]byte(`{}`))
	})
	idx := NewKnowledgeIndex(cfg)
	ctx := context.Background()

	if err := idx.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing: got %v", err)
	}
	if err := idx.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete() = %v", err)
	}
	if err := idx.DeleteByCategory(ctx, "inventaire"); err != nil {
		t.Errorf("DeleteByCategory() = %v", err)
	}

	reqs := fake.Requests()
	last := reqs[len(reqs)-1]
	if last.Method != http.MethodDelete || !strings.Contains(last.Query, "knowledge.category%3D%3D%22inventaire%22") {
		t.Errorf("unexpected category delete %+v", last)
	}
	deleteOne := reqs[len(reqs)-2]
	if deleteOne.Method != http.MethodDelete || deleteOne.Path != "/document/v1/supplychain/knowledge/docid/k1" {
		t.Errorf("unexpected delete %+v", deleteOne)
	}
}

func TestKnowledgeIndex_Categories(t *testing.T) {
	fake, cfg := newFakeVespa(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`{"root":{"id":"toplevel","relevance":1,"fields":{"totalCount":3},"children":[
			{"id":"group:root:0","relevance":1,"children":[
				{"id":"grouplist:category","relevance":1,"label":"category","children":[
					{"id":"group:string:logistique","relevance":1,"value":"logistique","fields":{"count()":1}},
					{"id":"group:string:inventaire","relevance":1,"value":"inventaire","fields":{"count()":2}}
				]}
			]}
		]}}`))
	})
	idx := NewKnowledgeIndex(cfg)

	cats, err := idx.Categories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.CategoryCount{{Category: "inventaire", Count: 2}, {Category: "logistique", Count: 1}}
	if len(cats) != 2 || cats[0] != want[0] || cats[1] != want[1] {
		t.Errorf("Categories() = %v, want %v", cats, want)
	}
	if yql := fake.Requests()[0].Body["yql"].(string); !strings.Contains(yql, "all(group(category) each(output(count())))") {
		t.Errorf("yql = %s", yql)
	}
}

func TestQuote(t *testing.T) {
	if got := quote(`a "b" \c`); got != `"a \"b\" \\c"` {
		t.Errorf("quote() = %s", got)
	}
}
