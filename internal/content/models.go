package content

import "time"

// Text holds one string per portal language.
type Text struct {
	UR string `json:"ur"`
	EN string `json:"en"`
	PS string `json:"ps"`
}

func (t Text) values() []string {
	return []string{t.UR, t.EN, t.PS}
}

func (t Text) empty() bool {
	return t.UR == "" && t.EN == "" && t.PS == ""
}

type Article struct {
	ID          string    `json:"id"`
	Title       Text      `json:"title"`
	Excerpt     *Text     `json:"excerpt,omitempty"`
	Content     Text      `json:"content"`
	CategoryID  string    `json:"category_id"`
	Author      string    `json:"author"`
	Image       string    `json:"image,omitempty"`
	Featured    bool      `json:"featured"`
	Tags        []string  `json:"tags,omitempty"`
	Status      string    `json:"status,omitempty"`
	Views       int       `json:"views"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        Text      `json:"name"`
	Description *Text     `json:"description,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ArticleFilter narrows a listing. Zero values match everything; a zero Limit
// means no limit.
type ArticleFilter struct {
	CategoryID string
	Featured   bool
	Limit      int
	Offset     int
}
