package comments

import (
	"time"

	"github.com/google/uuid"
)

// Comment is one note left on an order.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	UserEmail string    `json:"user_email"`
	UserName  string    `json:"user_name"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorLabel is the display name, falling back to the email.
func (c Comment) AuthorLabel() string {
	if c.UserName != "" {
		return c.UserName
	}
	return c.UserEmail
}

// Entry is a comment rendered for a viewer.
type Entry struct {
	ID          string    `json:"id"`
	Index       int       `json:"index"`
	AuthorLabel string    `json:"author"`
	AuthorEmail string    `json:"author_email,omitempty"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// RenderedLog is the newest-first comment list of an order as one viewer sees it.
type RenderedLog struct {
	OrderID   uint    `json:"order_id"`
	CanDelete bool    `json:"can_delete"`
	Entries   []Entry `json:"entries"`
}
