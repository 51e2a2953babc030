package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/chunking"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/retrieval"
)

const dealTranscript = "The seller agreed to carry a note. We negotiated a five year term. " +
	"The bank wanted a personal guarantee.\n\n" +
	"Due diligence took six weeks. The books were clean. We closed in June."

var testEmbedding = ai.EmbeddingConfig{BaseURL: "http://embed.local", APIKey: "k", Model: "m"}

type transcriptFixture struct {
	transcripts *memTranscripts
	chunks      *memChunks
	jobs        *jobRecorder
	embedder    *keywordEmbedder
	svc         *TranscriptService
}

func newTranscriptFixture(withQueue bool) *transcriptFixture {
	f := &transcriptFixture{
		transcripts: newMemTranscripts(),
		chunks:      &memChunks{},
		embedder:    &keywordEmbedder{},
	}
	indexer := NewTranscriptIndexer(f.transcripts, f.chunks, f.embedder, testEmbedding, chunking.DefaultOptions(), nil)
	var jobs ChunkJobPublisher
	if withQueue {
		f.jobs = &jobRecorder{}
		jobs = f.jobs
	}
	f.svc = NewTranscriptService(f.transcripts, f.chunks, indexer, jobs, nil, nil)
	return f
}

func TestCreateChunksInlineWithoutQueue(t *testing.T) {
	f := newTranscriptFixture(false)

	res, err := f.svc.Create(context.Background(), CreateTranscriptInput{UserID: 1, Title: "Deal review", Content: dealTranscript})
	require.NoError(t, err)

	assert.False(t, res.Chunking.Queued)
	require.NotNil(t, res.Chunking.Result)
	assert.True(t, res.Chunking.Result.Embedded)
	assert.Equal(t, model.ChunkStatusReady, res.Transcript.ChunkStatus)

	stored, err := f.chunks.ListChunks([]uint{res.Transcript.ID})
	require.NoError(t, err)
	require.Len(t, stored, res.Chunking.Result.ChunkCount)
	assert.Equal(t, string(retrieval.ChunkParent), stored[0].ChunkType)
	assert.Nil(t, stored[0].ParentID)
	for _, c := range stored[1:] {
		require.NotNil(t, c.ParentID)
		assert.NotEmpty(t, c.EmbeddingVector())
	}

	saved, _ := f.transcripts.GetByID(res.Transcript.ID)
	assert.Equal(t, model.ChunkStatusReady, saved.ChunkStatus)
	assert.Equal(t, len(stored), saved.ChunkCount)
}

func TestCreateQueuesChunkJob(t *testing.T) {
	f := newTranscriptFixture(true)

	res, err := f.svc.Create(context.Background(), CreateTranscriptInput{UserID: 1, Title: "Deal review", Content: dealTranscript})
	require.NoError(t, err)

	assert.True(t, res.Chunking.Queued)
	assert.NotEmpty(t, res.Chunking.JobID)
	assert.Nil(t, res.Chunking.Result)
	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, res.Transcript.ID, f.jobs.jobs[0].TranscriptID)
	assert.Equal(t, model.ChunkStatusPending, res.Transcript.ChunkStatus)

	stored, _ := f.chunks.ListChunks([]uint{res.Transcript.ID})
	assert.Empty(t, stored)
}

func TestCreateChunksInlineWhenPublishFails(t *testing.T) {
	f := newTranscriptFixture(true)
	f.jobs.err = errors.New("broker down")

	res, err := f.svc.Create(context.Background(), CreateTranscriptInput{UserID: 1, Content: dealTranscript})
	require.NoError(t, err)

	assert.False(t, res.Chunking.Queued)
	require.NotNil(t, res.Chunking.Result)
	assert.Equal(t, "Untitled transcript", res.Transcript.Title)
}

func TestIndexWithoutEmbeddingsWhenEmbedderFails(t *testing.T) {
	f := newTranscriptFixture(false)
	f.embedder.err = errors.New("quota exceeded")

	res, err := f.svc.Create(context.Background(), CreateTranscriptInput{UserID: 1, Content: dealTranscript})
	require.NoError(t, err)

	require.NotNil(t, res.Chunking.Result)
	assert.False(t, res.Chunking.Result.Embedded)
	stored, _ := f.chunks.ListChunks([]uint{res.Transcript.ID})
	require.NotEmpty(t, stored)
	assert.Empty(t, stored[0].Embedding)
}

func TestCreateValidation(t *testing.T) {
	f := newTranscriptFixture(false)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateTranscriptInput{UserID: 1, Content: "   "})
	assert.ErrorIs(t, err, ErrTranscriptEmpty)

	_, err = f.svc.Create(ctx, CreateTranscriptInput{UserID: 1, Content: "text", Source: "podcast"})
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = f.svc.Create(ctx, CreateTranscriptInput{Content: "text"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Upload(ctx, UploadTranscriptInput{UserID: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTranscriptOwnership(t *testing.T) {
	f := newTranscriptFixture(false)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateTranscriptInput{UserID: 1, Content: dealTranscript})
	require.NoError(t, err)
	id := res.Transcript.ID

	_, err = f.svc.Get(2, id)
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
	assert.ErrorIs(t, f.svc.Delete(2, id), ErrTranscriptNotFound)

	chunks, err := f.svc.Chunks(1, id)
	require.NoError(t, err)
	assert.Empty(t, chunks.Transcript.Content)
	assert.NotEmpty(t, chunks.Chunks)
	assert.Positive(t, chunks.Quality.ChunkCount)

	require.NoError(t, f.svc.Delete(1, id))
	_, err = f.svc.Get(1, id)
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestRechunkQueuesAgain(t *testing.T) {
	f := newTranscriptFixture(true)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateTranscriptInput{UserID: 1, Content: dealTranscript})
	require.NoError(t, err)

	schedule, err := f.svc.Rechunk(ctx, 1, res.Transcript.ID)
	require.NoError(t, err)
	assert.True(t, schedule.Queued)
	require.Len(t, f.jobs.jobs, 2)
	assert.NotEqual(t, f.jobs.jobs[0].ID, f.jobs.jobs[1].ID)

	_, err = f.svc.Rechunk(ctx, 2, res.Transcript.ID)
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestTagUntagged(t *testing.T) {
	f := newTranscriptFixture(true)
	ctx := context.Background()

	for _, in := range []CreateTranscriptInput{
		{UserID: 1, Title: "Mastermind hot seat", Content: "peer accountability round"},
		{UserID: 1, Title: "Weekly notes", Content: "nothing relevant here"},
		{UserID: 1, Title: "Tagged", Content: "already labelled", Source: retrieval.CategoryWeb},
		{UserID: 2, Title: "Mastermind", Content: "someone else"},
	} {
		_, err := f.svc.Create(ctx, in)
		require.NoError(t, err)
	}

	res, err := f.svc.TagUntagged(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tagged)
	assert.Equal(t, map[string]int{
		retrieval.CategoryMastermindCall: 1,
		retrieval.CategoryOther:          1,
	}, res.ByCategory)

	list, err := f.svc.List(1, retrieval.CategoryMastermindCall)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Mastermind hot seat", list[0].Title)

	others, err := f.svc.List(2, "")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Empty(t, others[0].Source)
}
