package note

import "time"

// Note is a user-authored note.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chunk is an embedded slice of a note used for retrieval.
type Chunk struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"noteId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
