package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   []byte
}

func newTestIndexer(t *testing.T, status int) (*ESIndexer, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewESIndexer(client, "drive-nodes"), &reqs
}

func TestESIndexer_IndexNode(t *testing.T) {
	idx, reqs := newTestIndexer(t, http.StatusCreated)

	err := idx.IndexNode(context.Background(), NodeDocument{ID: "f-1", Kind: "file", Name: "report.pdf", Path: "/alice/docs/report.pdf"})
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/drive-nodes/_doc/f-1", req.path)

	var doc NodeDocument
	require.NoError(t, json.Unmarshal(req.body, &doc))
	assert.Equal(t, "/alice/docs/report.pdf", doc.Path)
}

func TestESIndexer_DeleteMissingIsFine(t *testing.T) {
	idx, _ := newTestIndexer(t, http.StatusNotFound)
	assert.NoError(t, idx.DeleteNode(context.Background(), "gone"))
}

func TestBestEffort_SwallowsErrors(t *testing.T) {
	idx, _ := newTestIndexer(t, http.StatusInternalServerError)
	assert.Error(t, idx.IndexNode(context.Background(), NodeDocument{ID: "x"}))
	assert.NoError(t, BestEffort{Indexer: idx}.IndexNode(context.Background(), NodeDocument{ID: "x"}))
}
