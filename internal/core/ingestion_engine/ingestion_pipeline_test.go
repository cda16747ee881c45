package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/queue"
	"github.com/markdave123-py/docchat/internal/models"
)

const testDim = 3

type fakeExtractor struct {
	text  string
	pages int
	err   error
}

func (f *fakeExtractor) ExtractText(context.Context, []byte) (*core.ExtractedText, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.ExtractedText{Text: f.text, PageCount: f.pages}, nil
}

// recordingEmbedder encodes each text's position in its vector so order can
// be checked after batching. failOnCall makes the n-th request fail.
type recordingEmbedder struct {
	mu         sync.Mutex
	batches    []int
	failOnCall int
	seen       map[string]int
	dim        int
}

func newRecordingEmbedder() *recordingEmbedder {
	return &recordingEmbedder{seen: map[string]int{}, dim: testDim}
}

func (r *recordingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, len(texts))
	if r.failOnCall == len(r.batches) {
		return nil, fmt.Errorf("%w: upstream 503", core.ErrEmbeddingService)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		id, ok := r.seen[t]
		if !ok {
			id = len(r.seen)
			r.seen[t] = id
		}
		v := make([]float32, r.dim)
		v[0] = float32(id)
		out[i] = v
	}
	return out, nil
}

type memObjects struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemObjects() *memObjects { return &memObjects{files: map[string][]byte{}} }

func (m *memObjects) UploadFile(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files["mem://"+key] = data
	return "mem://" + key, nil
}

func (m *memObjects) DeleteFile(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location)
	return nil
}

func (m *memObjects) GetFile(_ context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[location]
	if !ok {
		return nil, core.ErrNotFound
	}
	return data, nil
}

type fixture struct {
	store *db.MemoryClient
	objs  *memObjects
	emb   *recordingEmbedder
	ext   *fakeExtractor
	jobs  *queue.MemoryQueue
	ing   *DocumentIngestor
}

func newFixture(t *testing.T, text string, chunkSize, overlap int) *fixture {
	t.Helper()
	f := &fixture{
		store: db.NewMemoryClient(testDim),
		objs:  newMemObjects(),
		emb:   newRecordingEmbedder(),
		ext:   &fakeExtractor{text: text, pages: 2},
		jobs:  queue.NewMemoryQueue(8),
	}
	ing, err := NewDocumentIngestor(f.store, f.objs, f.emb, f.ext, f.jobs, &IngestConfig{
		ChunkSize: chunkSize, ChunkOverlap: overlap, BatchSize: 100, EmbedDim: testDim,
	})
	require.NoError(t, err)
	f.ing = ing
	return f
}

// pending stores a file and a processing document, as the upload path does
// before enqueueing.
func (f *fixture) pending(t *testing.T, id string) queue.IngestJob {
	t.Helper()
	ctx := context.Background()
	loc, err := f.objs.UploadFile(ctx, id+".pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	require.NoError(t, f.store.CreateDocument(ctx, &models.Document{
		ID: id, UserID: "user_01", FileName: id + ".pdf", StorageURL: loc, Status: models.StatusProcessing, CreatedAt: time.Now(),
	}))
	return queue.IngestJob{DocumentID: id, StorageURL: loc, FileName: id + ".pdf", UserID: "user_01"}
}

func (f *fixture) status(t *testing.T, id string) models.DocumentStatus {
	t.Helper()
	d, err := f.store.GetDocumentByID(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

// uniqueText yields n distinct 4-character windows.
func uniqueText(n int) string {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "%04d", i)
	}
	return sb.String()
}

func TestNewDocumentIngestor_RejectsBadConfig(t *testing.T) {
	cases := []*IngestConfig{
		nil,
		{ChunkSize: 10, ChunkOverlap: 10, BatchSize: 1, EmbedDim: 1},
		{ChunkSize: 10, ChunkOverlap: -1, BatchSize: 1, EmbedDim: 1},
		{ChunkSize: 10, ChunkOverlap: 1, BatchSize: 0, EmbedDim: 1},
		{ChunkSize: 10, ChunkOverlap: 1, BatchSize: 1, EmbedDim: 0},
	}
	for i, cfg := range cases {
		_, err := NewDocumentIngestor(nil, nil, nil, nil, nil, cfg)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration, "case %d", i)
	}
}

func TestEmbedBatches_PreservesOrderAcrossBatches(t *testing.T) {
	emb := newRecordingEmbedder()
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%03d", i)
	}

	vecs, err := EmbedBatches(context.Background(), emb, texts, 100, testDim)
	require.NoError(t, err)
	require.Len(t, vecs, 250)
	assert.Equal(t, []int{100, 100, 50}, emb.batches)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestEmbedBatches_DimensionChecked(t *testing.T) {
	emb := newRecordingEmbedder()
	emb.dim = 2
	_, err := EmbedBatches(context.Background(), emb, []string{"x"}, 10, testDim)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestProcessJob_StoresChunksInOrder(t *testing.T) {
	f := newFixture(t, uniqueText(250), 4, 0)
	job := f.pending(t, "doc-1")

	require.NoError(t, f.ing.ProcessJob(context.Background(), job))
	assert.Equal(t, models.StatusReady, f.status(t, "doc-1"))
	assert.Equal(t, []int{100, 100, 50}, f.emb.batches)

	chunks := f.store.ChunksByDocument("doc-1")
	require.Len(t, chunks, 250)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, fmt.Sprintf("%04d", i), ch.Content)
		assert.Equal(t, float32(i), ch.Embedding[0])
		assert.Equal(t, "user_01", ch.UserID)
	}

	d, err := f.store.GetDocumentByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, d.PageCount)
	assert.Equal(t, 2, *d.PageCount)
}

func TestProcessJob_EmptyTextSkipsEmbedder(t *testing.T) {
	for name, text := range map[string]string{"empty": "", "whitespace": "  \n\t  "} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, text, 4, 1)
			job := f.pending(t, "doc-e")

			require.NoError(t, f.ing.ProcessJob(context.Background(), job))
			assert.Equal(t, models.StatusEmpty, f.status(t, "doc-e"))
			assert.Empty(t, f.store.ChunksByDocument("doc-e"))
			assert.Empty(t, f.emb.batches)
		})
	}
}

func TestProcessJob_FailureInSecondBatchMarksFailed(t *testing.T) {
	f := newFixture(t, uniqueText(250), 4, 0)
	f.emb.failOnCall = 2
	job := f.pending(t, "doc-f")

	err := f.ing.ProcessJob(context.Background(), job)
	require.ErrorIs(t, err, core.ErrEmbeddingService)
	assert.Equal(t, models.StatusFailed, f.status(t, "doc-f"))
	assert.Empty(t, f.store.ChunksByDocument("doc-f"))

	// the stored file stays in place on the background path
	_, err = f.objs.GetFile(context.Background(), job.StorageURL)
	assert.NoError(t, err)
}

func TestProcessJob_ExtractionFailureMarksFailed(t *testing.T) {
	f := newFixture(t, "", 4, 1)
	f.ext.err = fmt.Errorf("%w: corrupt xref", core.ErrExtraction)
	job := f.pending(t, "doc-x")

	err := f.ing.ProcessJob(context.Background(), job)
	assert.ErrorIs(t, err, core.ErrExtraction)
	assert.Equal(t, models.StatusFailed, f.status(t, "doc-x"))
}

func TestProcessJob_DuplicateDeliveryIsNoop(t *testing.T) {
	f := newFixture(t, "some text here", 8, 2)
	job := f.pending(t, "doc-d")

	require.NoError(t, f.ing.ProcessJob(context.Background(), job))
	calls := len(f.emb.batches)
	require.NoError(t, f.ing.ProcessJob(context.Background(), job))
	assert.Equal(t, calls, len(f.emb.batches))
	assert.Equal(t, models.StatusReady, f.status(t, "doc-d"))
}

func TestProcessJob_UnknownDocument(t *testing.T) {
	f := newFixture(t, "text", 4, 1)
	err := f.ing.ProcessJob(context.Background(), queue.IngestJob{DocumentID: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIngest_InlineSuccess(t *testing.T) {
	f := newFixture(t, "hello world, this is a document", 10, 2)

	doc, err := f.ing.Ingest(context.Background(), "", []byte("%PDF"), "mem://x.pdf", "x.pdf", "user_01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, doc.Status)
	assert.Equal(t, "x.pdf", doc.FileName)
	assert.NotEmpty(t, f.store.ChunksByDocument(doc.ID))
}

func TestIngest_KeepsGivenID(t *testing.T) {
	f := newFixture(t, "hello world, this is a document", 10, 2)

	doc, err := f.ing.Ingest(context.Background(), "doc-given", []byte("%PDF"), "mem://doc-given/x.pdf", "x.pdf", "user_01")
	require.NoError(t, err)
	assert.Equal(t, "doc-given", doc.ID)
	assert.Equal(t, models.StatusReady, f.status(t, "doc-given"))
}

func TestIngest_InlineFailureRemovesDocument(t *testing.T) {
	f := newFixture(t, uniqueText(10), 4, 0)
	f.emb.failOnCall = 1

	doc, err := f.ing.Ingest(context.Background(), "", []byte("%PDF"), "mem://x.pdf", "x.pdf", "user_01")
	require.ErrorIs(t, err, core.ErrEmbeddingService)
	assert.Nil(t, doc)

	docs, err := f.store.ListDocumentsByUser(context.Background(), "user_01")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStart_WorkersDrainQueue(t *testing.T) {
	f := newFixture(t, "background ingestion text", 8, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.ing.Start(ctx, 2)
	ids := []string{"bg-1", "bg-2", "bg-3"}
	for _, id := range ids {
		require.NoError(t, f.ing.Enqueue(ctx, f.pending(t, id)))
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if f.status(t, id) != models.StatusReady {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStart_StopsOnQueueClose(t *testing.T) {
	f := newFixture(t, "x", 4, 1)
	f.ing.Start(context.Background(), 1)
	require.NoError(t, f.jobs.Close())
	assert.True(t, errors.Is(f.ing.Enqueue(context.Background(), queue.IngestJob{}), queue.ErrClosed))
}

// ackRecorder notes the document status at the moment each job is acked.
type ackRecorder struct {
	*queue.MemoryQueue
	store *db.MemoryClient

	mu    sync.Mutex
	acked map[string]models.DocumentStatus
}

func (a *ackRecorder) Ack(ctx context.Context, job queue.IngestJob) error {
	d, err := a.store.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked[job.DocumentID] = d.Status
	return nil
}

func (a *ackRecorder) statusAtAck(id string) (models.DocumentStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.acked[id]
	return s, ok
}

func TestStart_AcksOnlyAfterProcessing(t *testing.T) {
	f := newFixture(t, "acknowledged text", 8, 2)
	jobs := &ackRecorder{MemoryQueue: f.jobs, store: f.store, acked: map[string]models.DocumentStatus{}}
	ing, err := NewDocumentIngestor(f.store, f.objs, f.emb, f.ext, jobs, &IngestConfig{
		ChunkSize: 8, ChunkOverlap: 2, BatchSize: 100, EmbedDim: testDim,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ing.Start(ctx, 1)
	require.NoError(t, ing.Enqueue(ctx, f.pending(t, "ack-1")))

	require.Eventually(t, func() bool {
		_, ok := jobs.statusAtAck("ack-1")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	st, _ := jobs.statusAtAck("ack-1")
	assert.Equal(t, models.StatusReady, st)
}

// flakyLoads fails the first document lookup with a transport error.
type flakyLoads struct {
	*db.MemoryClient
	mu    sync.Mutex
	calls int
}

func (f *flakyLoads) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return nil, errors.New("connection reset by peer")
	}
	return f.MemoryClient.GetDocumentByID(ctx, id)
}

func TestProcessJob_LoadFailureMarksFailed(t *testing.T) {
	f := newFixture(t, "text", 4, 1)
	job := f.pending(t, "doc-flaky")
	ing, err := NewDocumentIngestor(&flakyLoads{MemoryClient: f.store}, f.objs, f.emb, f.ext, f.jobs, &IngestConfig{
		ChunkSize: 4, ChunkOverlap: 1, BatchSize: 100, EmbedDim: testDim,
	})
	require.NoError(t, err)

	err = ing.ProcessJob(context.Background(), job)
	require.ErrorContains(t, err, "connection reset")
	assert.Equal(t, models.StatusFailed, f.status(t, "doc-flaky"))
	assert.Empty(t, f.emb.batches)
}
