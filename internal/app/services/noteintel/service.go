// Package noteintel keeps note embeddings in sync and answers questions from
// a user's own notes.
package noteintel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

const (
	DefaultMaxContextChunks = 6
	MaxContextChars         = 6000
	MinSimilarity           = 0.12
	SnippetLength           = 400

	answerMaxTokens      = 500
	quickAnswerMaxTokens = 400
	quickAnswerTopK      = 6
)

// Canned answers.
const (
	NoNotesAnswer      = "I could not find any saved notes to answer that question."
	NoCompletionAnswer = "I could not generate an answer from the available notes."
	NoQuickNotesAnswer = "No notes available to answer this question."
)

const answerSystemPrompt = "You are a helpful assistant that answers questions strictly using the provided user notes. " +
	"If the notes do not contain the answer, say so. Include specific actionable steps when summarizing tasks. " +
	"Reference sources using [Source X]."

const quickSystemPrompt = "You are an assistant that answers user questions using only the provided user notes. " +
	"If the answer is not contained in the notes, say you don't know. Be concise and reference the notes when appropriate."

// Source is a note excerpt used to answer a question.
type Source struct {
	NoteID    string  `json:"noteId"`
	NoteTitle string  `json:"noteTitle"`
	ChunkID   string  `json:"chunkId"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// Answer is the result of a question over a user's notes.
type Answer struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	UsedFallback bool     `json:"usedFallback"`
}

// Options tunes retrieval.
type Options struct {
	MaxContextChunks int
}

// Service implements embedding sync and retrieval-augmented answers.
type Service struct {
	notes     storage.NoteStore
	chunks    storage.ChunkStore
	completer ai.Completer
	embedder  ai.Embedder
	maxChunks int
	backfill  singleflight.Group
	log       *logging.Logger
}

// New creates the service. With a nil completer or embedder the service is
// unconfigured: sync is a no-op and questions report 503.
func New(notes storage.NoteStore, chunks storage.ChunkStore, completer ai.Completer, embedder ai.Embedder, opts Options, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("noteintel")
	}
	if opts.MaxContextChunks <= 0 {
		opts.MaxContextChunks = DefaultMaxContextChunks
	}
	return &Service{
		notes:     notes,
		chunks:    chunks,
		completer: completer,
		embedder:  embedder,
		maxChunks: opts.MaxContextChunks,
		log:       log,
	}
}

// Configured reports whether embeddings and completions are available.
func (s *Service) Configured() bool {
	return s.completer != nil && s.embedder != nil
}

// SyncNote re-chunks and re-embeds a note, replacing its stored chunks.
func (s *Service) SyncNote(ctx context.Context, n note.Note) error {
	if s.embedder == nil {
		return nil
	}

	texts := ChunkContent(strings.TrimSpace(n.Title + "\n" + n.Content))
	if strings.TrimSpace(n.Content) == "" || len(texts) == 0 {
		return s.chunks.DeleteNoteChunks(ctx, n.ID)
	}

	vectors, err := ai.EmbedAll(ctx, s.embedder, texts)
	if err != nil {
		return fmt.Errorf("embed note %s: %w", n.ID, err)
	}

	chunks := make([]note.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = note.Chunk{
			NoteID:    n.ID,
			UserID:    n.UserID,
			Content:   text,
			Position:  i,
			Embedding: vectors[i],
		}
	}
	if err := s.chunks.ReplaceNoteChunks(ctx, n.ID, chunks); err != nil {
		return fmt.Errorf("store chunks for note %s: %w", n.ID, err)
	}
	return nil
}

// RemoveNote deletes a note's chunks.
func (s *Service) RemoveNote(ctx context.Context, noteID string) error {
	return s.chunks.DeleteNoteChunks(ctx, noteID)
}

// EnsureEmbeddings backfills chunks for a user who has notes but no chunks.
// Concurrent calls for the same user share one run. It returns the number of
// notes synced.
func (s *Service) EnsureEmbeddings(ctx context.Context, userID string) (int, error) {
	if s.embedder == nil {
		return 0, nil
	}
	v, err, _ := s.backfill.Do(userID, func() (interface{}, error) {
		return s.backfillUser(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Service) backfillUser(ctx context.Context, userID string) (int, error) {
	chunkCount, err := s.chunks.CountChunks(ctx, userID)
	if err != nil {
		return 0, err
	}
	if chunkCount > 0 {
		return 0, nil
	}
	notes, err := s.notes.ListAllNotes(ctx, userID)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, n := range notes {
		if err := s.SyncNote(ctx, n); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("note_id", n.ID).Warn("failed to backfill embeddings for note")
			continue
		}
		synced++
	}
	if synced > 0 {
		s.log.WithContext(ctx).WithField("user_id", userID).Infof("backfilled embeddings for %d notes", synced)
	}
	return synced, nil
}

type scoredChunk struct {
	chunk note.Chunk
	score float64
}

// Answer answers question from the user's stored note chunks, falling back
// to a keyword match when nothing is indexed.
func (s *Service) Answer(ctx context.Context, userID, question string) (Answer, error) {
	if !s.Configured() {
		return Answer{}, errors.Unavailable("AI question answering is not configured")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, errors.BadRequest("A question is required")
	}

	if _, err := s.EnsureEmbeddings(ctx, userID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("embedding backfill failed")
	}

	queryVectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil || len(queryVectors) == 0 {
		return Answer{}, errors.Internal("Failed to embed question", err)
	}

	chunks, err := s.chunks.ListChunksByUser(ctx, userID)
	if err != nil {
		return Answer{}, errors.Internal("Failed to load note chunks", err)
	}
	notesByID, err := s.noteIndex(ctx, userID)
	if err != nil {
		return Answer{}, errors.Internal("Failed to load notes", err)
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, scoredChunk{chunk: c, score: CosineSimilarity(queryVectors[0], c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	selected := s.selectChunks(scored)

	var (
		blocks       []string
		sources      []Source
		usedFallback bool
	)
	for i, entry := range selected {
		n := notesByID[entry.chunk.NoteID]
		blocks = append(blocks, contextBlock(i, n, entry.chunk.Content))
		sources = append(sources, Source{
			NoteID:    entry.chunk.NoteID,
			NoteTitle: n.Title,
			ChunkID:   entry.chunk.ID,
			Score:     round4(entry.score),
			Snippet:   head(entry.chunk.Content, SnippetLength),
		})
	}

	if len(selected) == 0 {
		fallback, _, err := s.notes.ListNotes(ctx, storage.NoteQuery{
			UserID: userID,
			Search: question,
			SortBy: storage.SortNewest,
			Limit:  s.maxChunks,
		})
		if err != nil {
			return Answer{}, errors.Internal("Failed to search notes", err)
		}
		if len(fallback) == 0 {
			return Answer{Answer: NoNotesAnswer, Sources: []Source{}}, nil
		}
		usedFallback = true
		for i, n := range fallback {
			blocks = append(blocks, contextBlock(i, n, head(n.Content, ChunkSize)))
			sources = append(sources, Source{
				NoteID:    n.ID,
				NoteTitle: n.Title,
				ChunkID:   "note:" + n.ID,
				Score:     0,
				Snippet:   head(n.Content, SnippetLength),
			})
		}
	}

	userPrompt := strings.Join([]string{
		"Question: " + question,
		"User notes context:\n" + strings.Join(blocks, "\n\n"),
		"Respond with a concise, factual answer derived from the notes. If multiple tasks are found, return them as a bullet list.",
	}, "\n\n")

	reply, err := s.completer.Complete(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: answerSystemPrompt},
		{Role: ai.RoleUser, Content: userPrompt},
	}, ai.CompletionOptions{Temperature: 0, MaxTokens: answerMaxTokens})
	if err != nil {
		return Answer{}, errors.Internal("Failed to generate answer", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = NoCompletionAnswer
	}
	return Answer{Answer: reply, Sources: sources, UsedFallback: usedFallback}, nil
}

// selectChunks picks context chunks in score order within the chunk and size budgets.
func (s *Service) selectChunks(scored []scoredChunk) []scoredChunk {
	var selected []scoredChunk
	chars := 0
	for _, entry := range scored {
		if entry.score <= 0 {
			continue
		}
		if len(selected) >= s.maxChunks {
			break
		}
		size := runeLen(entry.chunk.Content)
		if chars+size > MaxContextChars && len(selected) > 0 {
			continue
		}
		if entry.score < MinSimilarity && len(selected) > 2 {
			continue
		}
		selected = append(selected, entry)
		chars += size
	}
	if len(selected) == 0 && len(scored) > 0 {
		selected = append(selected, scored[0])
	}
	return selected
}

func (s *Service) noteIndex(ctx context.Context, userID string) (map[string]note.Note, error) {
	notes, err := s.notes.ListAllNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]note.Note, len(notes))
	for _, n := range notes {
		index[n.ID] = n
	}
	return index, nil
}

func contextBlock(i int, n note.Note, content string) string {
	title := n.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("Source %d | Note: %s | Created: %s\n%s",
		i+1, title, n.CreatedAt.UTC().Format(time.RFC3339), strings.TrimSpace(content))
}

// QuickAnswer answers from an index built on the fly for this request only.
func (s *Service) QuickAnswer(ctx context.Context, userID, question string) (string, error) {
	if !s.Configured() {
		return "", errors.Unavailable("AI question answering is not configured")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.BadRequest("A question is required")
	}

	notes, err := s.notes.ListAllNotes(ctx, userID)
	if err != nil {
		return "", errors.Internal("Failed to load notes", err)
	}

	var ids, texts []string
	for _, n := range notes {
		body := n.Content
		if body == "" {
			body = n.Title
		}
		for i, piece := range FixedChunks(body, ChunkSize) {
			ids = append(ids, fmt.Sprintf("%s::%d", n.ID, i))
			texts = append(texts, piece)
		}
	}
	if len(texts) == 0 {
		return NoQuickNotesAnswer, nil
	}

	vectors, err := ai.EmbedAll(ctx, s.embedder, append(texts, question))
	if err != nil {
		return "", errors.Internal("Failed to embed notes", err)
	}
	query := vectors[len(vectors)-1]

	scored := make([]scoredChunk, len(texts))
	for i := range texts {
		scored[i] = scoredChunk{
			chunk: note.Chunk{ID: ids[i], Content: texts[i]},
			score: CosineSimilarity(query, vectors[i]),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var lines []string
	for i, entry := range scored {
		if i >= quickAnswerTopK {
			break
		}
		if entry.score > 0 {
			lines = append(lines, "- "+entry.chunk.Content)
		}
	}

	reply, err := s.completer.Complete(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: quickSystemPrompt},
		{Role: ai.RoleUser, Content: "User question: " + question + "\n\nUser notes context:\n" + strings.Join(lines, "\n")},
	}, ai.CompletionOptions{Temperature: 0.2, MaxTokens: quickAnswerMaxTokens})
	if err != nil {
		return "", errors.Internal("Failed to generate answer", err)
	}
	return strings.TrimSpace(reply), nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
