package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lekompozer/wordai-aiservice-sub007/internal/catalog"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/extraction"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/queue"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/vectorstore"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/webhook"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()

	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func newTestQueue(t *testing.T, config queue.Config) *queue.Queue {
	t.Helper()

	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	q, err := queue.New(nc, config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(q.Close)

	return q
}

// fakeFetcher returns fixed document bytes or an error.
type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.data == nil {
		return []byte("document bytes"), nil
	}
	return f.data, nil
}

// fakeProvider returns a fixed extraction result or error.
type fakeProvider struct {
	result map[string]any
	err    error
}

func (f *fakeProvider) Extract(ctx context.Context, documentURL string, meta extraction.Metadata, companyInfo map[string]any, categories []string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeEmbedder returns a fixed vector and can fail for specific texts.
type fakeEmbedder struct {
	mu     sync.Mutex
	failOn map[string]bool
	calls  []string
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.failOn[text] {
		return nil, errors.New("embedding provider unavailable")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeVectorStore records upserted points.
type fakeVectorStore struct {
	mu        sync.Mutex
	points    []vectorstore.Point
	upsertErr error
}

func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, collection string, filter vectorstore.Filter) error {
	return nil
}

func (f *fakeVectorStore) Scroll(ctx context.Context, collection string, filter vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	return nil, nil
}

func (f *fakeVectorStore) stored() []vectorstore.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]vectorstore.Point, len(f.points))
	copy(out, f.points)
	return out
}

// fakeCatalogStore implements catalog.Store in memory.
type fakeCatalogStore struct {
	mu       sync.Mutex
	inserted []catalog.Record
}

func (f *fakeCatalogStore) InsertOne(ctx context.Context, rec catalog.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeCatalogStore) UpdateOne(ctx context.Context, companyID, itemID string, fields map[string]any) error {
	return nil
}

func (f *fakeCatalogStore) DeleteMany(ctx context.Context, companyID, fileID string) (int64, error) {
	return 0, nil
}

// callbackRecorder captures webhook deliveries.
type callbackRecorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	status   int
	server   *httptest.Server
}

func newCallbackRecorder(t *testing.T) *callbackRecorder {
	t.Helper()

	r := &callbackRecorder{status: http.StatusOK}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(req.Body).Decode(&payload)

		r.mu.Lock()
		r.payloads = append(r.payloads, payload)
		status := r.status
		r.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *callbackRecorder) url() string { return r.server.URL }

func (r *callbackRecorder) received() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, len(r.payloads))
	copy(out, r.payloads)
	return out
}

func testNotifier() *webhook.Notifier {
	return webhook.NewNotifier(webhook.Config{
		Secret:      "test-secret",
		MaxAttempts: 3,
		BaseTimeout: 2 * time.Second,
		TimeoutStep: time.Second,
		BackoffUnit: time.Millisecond,
	}, zap.NewNop())
}
