package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"transcript-assistant/internal/chunking"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/pkg/pdfextract"
	"transcript-assistant/internal/repository"
	"transcript-assistant/internal/retrieval"
)

var (
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrTranscriptEmpty    = errors.New("transcript has no text content")
	ErrUnknownSource      = errors.New("unknown source category")
)

type ChunkJobPublisher interface {
	Publish(ctx context.Context, job model.ChunkJob) error
}

type TranscriptService struct {
	transcripts TranscriptStore
	chunks      ChunkStore
	indexer     *TranscriptIndexer
	jobs        ChunkJobPublisher
	classifier  *retrieval.Classifier
	log         *logger.Logger
}

func NewTranscriptService(
	transcripts TranscriptStore,
	chunks ChunkStore,
	indexer *TranscriptIndexer,
	jobs ChunkJobPublisher,
	classifier *retrieval.Classifier,
	log *logger.Logger,
) *TranscriptService {
	if classifier == nil {
		classifier = retrieval.NewClassifier(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TranscriptService{
		transcripts: transcripts,
		chunks:      chunks,
		indexer:     indexer,
		jobs:        jobs,
		classifier:  classifier,
		log:         log,
	}
}

type CreateTranscriptInput struct {
	UserID   uint
	Title    string
	Content  string
	Source   string
	FileName string
}

type UploadTranscriptInput struct {
	UserID   uint
	Title    string
	Source   string
	FileName string
	File     io.Reader
}

// ChunkSchedule tells the caller how re-chunking was carried out.
type ChunkSchedule struct {
	JobID  string       `json:"job_id,omitempty"`
	Queued bool         `json:"queued"`
	Result *IndexResult `json:"result,omitempty"`
}

type CreateTranscriptResult struct {
	Transcript model.Transcript `json:"transcript"`
	Chunking   ChunkSchedule    `json:"chunking"`
}

type TranscriptChunks struct {
	Transcript model.Transcript        `json:"transcript"`
	Chunks     []model.TranscriptChunk `json:"chunks"`
	Quality    chunking.Quality        `json:"quality"`
}

type TagResult struct {
	Tagged     int            `json:"tagged"`
	ByCategory map[string]int `json:"by_category"`
}

func (s *TranscriptService) Create(ctx context.Context, input CreateTranscriptInput) (*CreateTranscriptResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrTranscriptEmpty
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled transcript"
	}
	source := strings.TrimSpace(input.Source)
	if source != "" {
		if _, ok := s.classifier.Catalog().Lookup(source); !ok {
			return nil, ErrUnknownSource
		}
	}

	transcript := &model.Transcript{
		UserID:      input.UserID,
		Title:       title,
		Content:     content,
		Source:      source,
		FileName:    strings.TrimSpace(input.FileName),
		ChunkStatus: model.ChunkStatusPending,
	}
	if err := s.transcripts.Create(transcript); err != nil {
		return nil, err
	}

	schedule, err := s.scheduleChunking(ctx, transcript.ID)
	if err != nil {
		return nil, err
	}
	if schedule.Result != nil {
		transcript.ChunkStatus = model.ChunkStatusReady
		transcript.ChunkCount = schedule.Result.ChunkCount
	}
	return &CreateTranscriptResult{Transcript: *transcript, Chunking: *schedule}, nil
}

// Upload extracts the text of a PDF transcript and stores it like Create.
func (s *TranscriptService) Upload(ctx context.Context, input UploadTranscriptInput) (*CreateTranscriptResult, error) {
	if input.UserID == 0 || input.File == nil {
		return nil, ErrInvalidInput
	}
	text, err := pdfextract.ExtractText(input.File)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(strings.TrimSpace(input.FileName), ".pdf")
	}
	return s.Create(ctx, CreateTranscriptInput{
		UserID:   input.UserID,
		Title:    title,
		Content:  text,
		Source:   input.Source,
		FileName: input.FileName,
	})
}

func (s *TranscriptService) List(userID uint, source string) ([]model.Transcript, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.transcripts.ListDocuments(repository.TranscriptFilter{UserID: userID, Source: strings.TrimSpace(source)})
}

func (s *TranscriptService) Get(userID, transcriptID uint) (*model.Transcript, error) {
	if userID == 0 || transcriptID == 0 {
		return nil, ErrInvalidInput
	}
	transcript, err := s.transcripts.GetByIDAndUserID(transcriptID, userID)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return nil, ErrTranscriptNotFound
	}
	return transcript, nil
}

func (s *TranscriptService) Delete(userID, transcriptID uint) error {
	if _, err := s.Get(userID, transcriptID); err != nil {
		return err
	}
	return s.transcripts.DeleteByIDAndUserID(transcriptID, userID)
}

// Chunks returns the stored chunk tree of a transcript with a quality report over its children.
func (s *TranscriptService) Chunks(userID, transcriptID uint) (*TranscriptChunks, error) {
	transcript, err := s.Get(userID, transcriptID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunks.ListChunks([]uint{transcriptID})
	if err != nil {
		return nil, err
	}
	var children []string
	for _, c := range chunks {
		if c.ChunkType == string(retrieval.ChunkChild) {
			children = append(children, c.Content)
		}
	}
	transcript.Content = ""
	return &TranscriptChunks{
		Transcript: *transcript,
		Chunks:     chunks,
		Quality:    chunking.Analyze(children),
	}, nil
}

func (s *TranscriptService) Rechunk(ctx context.Context, userID, transcriptID uint) (*ChunkSchedule, error) {
	if _, err := s.Get(userID, transcriptID); err != nil {
		return nil, err
	}
	if err := s.transcripts.UpdateChunkState(transcriptID, model.ChunkStatusPending, 0); err != nil {
		return nil, err
	}
	return s.scheduleChunking(ctx, transcriptID)
}

// TagUntagged classifies every transcript of the user that has no source yet and stores the
// category.
func (s *TranscriptService) TagUntagged(ctx context.Context, userID uint) (*TagResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	untagged, err := s.transcripts.ListDocuments(repository.TranscriptFilter{
		UserID:      userID,
		Untagged:    true,
		WithContent: true,
	})
	if err != nil {
		return nil, err
	}

	result := &TagResult{ByCategory: make(map[string]int)}
	for _, t := range untagged {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		cat := s.classifier.Classify(t.Title, t.Content)
		if err := s.transcripts.UpdateSource(t.ID, cat.ID); err != nil {
			return result, err
		}
		result.Tagged++
		result.ByCategory[cat.ID]++
	}
	s.log.Info("transcripts tagged", "user_id", userID, "tagged", result.Tagged)
	return result, nil
}

// scheduleChunking queues a chunk job, or chunks inline when no queue is available or
// publishing fails.
func (s *TranscriptService) scheduleChunking(ctx context.Context, transcriptID uint) (*ChunkSchedule, error) {
	if s.jobs != nil {
		job := model.ChunkJob{ID: uuid.NewString(), TranscriptID: transcriptID, RequestedAt: time.Now()}
		err := s.jobs.Publish(ctx, job)
		if err == nil {
			return &ChunkSchedule{JobID: job.ID, Queued: true}, nil
		}
		s.log.Warn("publish chunk job failed, chunking inline", "transcript_id", transcriptID, "error", err)
	}
	if s.indexer == nil {
		return &ChunkSchedule{}, nil
	}
	result, err := s.indexer.Index(ctx, transcriptID)
	if err != nil {
		return nil, err
	}
	return &ChunkSchedule{Result: result}, nil
}
