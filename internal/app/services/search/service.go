// Package search ranks a user's notes against free-text queries.
package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

const (
	titleWeight   = 3.0
	contentWeight = 1.0
	phraseBonus   = 5.0

	// SnippetRadius is the number of runes kept on each side of the first hit.
	SnippetRadius = 80
	// MaxResults bounds a single result page.
	MaxResults = 50
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Query describes a search request.
type Query struct {
	UserID    string
	Terms     string
	From      time.Time
	To        time.Time
	SortBy    string
	SortOrder string
	Limit     int
}

// Highlight marks a matched term inside Snippet, in rune offsets.
type Highlight struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is a ranked note.
type Result struct {
	Note       note.Note   `json:"note"`
	Score      float64     `json:"score"`
	Snippet    string      `json:"snippet"`
	Highlights []Highlight `json:"highlights"`
}

// Service searches notes.
type Service struct {
	notes storage.NoteStore
	log   *logging.Logger
}

// New constructs a search service.
func New(notes storage.NoteStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("search")
	}
	return &Service{notes: notes, log: log}
}

// Search returns the user's notes matching q.
func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	terms := Tokenize(q.Terms)
	if len(terms) == 0 {
		return nil, errors.BadRequest("Search query is required")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, errors.BadRequest("Invalid date range")
	}

	notes, err := s.notes.ListAllNotes(ctx, q.UserID)
	if err != nil {
		return nil, errors.Internal("Failed to search notes", err)
	}

	phrase := strings.ToLower(strings.Join(strings.Fields(q.Terms), " "))
	results := make([]Result, 0)
	for _, n := range notes {
		if !q.From.IsZero() && n.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && n.CreatedAt.After(q.To) {
			continue
		}
		score := Score(n, terms, phrase)
		if score <= 0 {
			continue
		}
		snippet, highlights := Snippet(n.Content, terms)
		if snippet == "" {
			snippet, highlights = Snippet(n.Title, terms)
		}
		results = append(results, Result{Note: n, Score: score, Snippet: snippet, Highlights: highlights})
	}

	sortResults(results, q.SortBy, q.SortOrder)

	limit := q.Limit
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	if len(results) > limit {
		results = results[:limit]
	}
	s.log.WithContext(ctx).WithField("results", len(results)).Debug("Note search")
	return results, nil
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// Score weighs term occurrences in the title and content; a verbatim phrase adds a bonus.
func Score(n note.Note, terms []string, phrase string) float64 {
	title := strings.ToLower(n.Title)
	content := strings.ToLower(n.Content)

	var score float64
	for _, t := range terms {
		score += titleWeight * float64(strings.Count(title, t))
		score += contentWeight * float64(strings.Count(content, t))
	}
	if score > 0 && len(terms) > 1 && phrase != "" &&
		(strings.Contains(title, phrase) || strings.Contains(content, phrase)) {
		score += phraseBonus
	}
	return score
}

// Snippet cuts text around the first matched term and returns the highlights inside it.
func Snippet(text string, terms []string) (string, []Highlight) {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	if len(lower) != len(runes) {
		// case folding changed the length; fall back to the raw text
		lower = runes
	}

	first := -1
	for _, t := range terms {
		if i := indexRunes(lower, []rune(t), 0); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	if first < 0 {
		return "", nil
	}

	start := first - SnippetRadius
	if start < 0 {
		start = 0
	}
	end := first + SnippetRadius
	if end > len(runes) {
		end = len(runes)
	}

	window := lower[start:end]
	var highlights []Highlight
	for _, t := range terms {
		tr := []rune(t)
		for i := indexRunes(window, tr, 0); i >= 0; i = indexRunes(window, tr, i+len(tr)) {
			highlights = append(highlights, Highlight{Start: i, End: i + len(tr)})
		}
	}
	sort.Slice(highlights, func(i, j int) bool { return highlights[i].Start < highlights[j].Start })

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
		for i := range highlights {
			highlights[i].Start += 3
			highlights[i].End += 3
		}
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet, highlights
}

func indexRunes(haystack, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func sortResults(results []Result, sortBy, order string) {
	desc := !strings.EqualFold(order, SortAsc)
	switch sortBy {
	case storage.SortDate:
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i].Note.CreatedAt, results[j].Note.CreatedAt
			if desc {
				return a.After(b)
			}
			return a.Before(b)
		})
	case storage.SortTitle:
		// titles read A to Z unless asked otherwise
		desc = strings.EqualFold(order, SortDesc)
		sort.SliceStable(results, func(i, j int) bool {
			a, b := strings.ToLower(results[i].Note.Title), strings.ToLower(results[j].Note.Title)
			if desc {
				return a > b
			}
			return a < b
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i], results[j]
			if a.Score != b.Score {
				if desc {
					return a.Score > b.Score
				}
				return a.Score < b.Score
			}
			return a.Note.CreatedAt.After(b.Note.CreatedAt)
		})
	}
}
