package models

import "time"

type Note struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Date       time.Time  `json:"date"`
	AuthorName string     `json:"authorName,omitempty"`
	NotionURL  string     `json:"notionUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `json:"deletedAt"`
	CreatedBy  *UserRef   `json:"createdBy,omitempty"`
}

func (n *Note) Deleted() bool {
	return n.DeletedAt != nil
}
