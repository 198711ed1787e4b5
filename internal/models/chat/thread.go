package chat

import (
	"errors"

	"messaging_backend/internal/models"
)

var ErrThreadCycle = errors.New("thread parent chain contains a cycle")

type MessageThread struct {
	models.BaseModel
	ConversationID string  `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	ParentThreadID *string `gorm:"type:varchar(36);index" json:"parent_thread_id,omitempty"`
	RootMessageID  *string `gorm:"type:varchar(36);index" json:"root_message_id,omitempty"`
	Subject        string  `gorm:"size:255" json:"subject"`
	CreatedBy      string  `gorm:"type:varchar(36);not null" json:"created_by"`
}

func (MessageThread) TableName() string {
	return "message_threads"
}

// ThreadDepth counts parent hops starting at threadID. lookup returns the
// parent of a thread (nil at the root). A revisited thread is a cycle.
func ThreadDepth(threadID string, lookup func(id string) (*string, error)) (int, error) {
	visited := map[string]struct{}{threadID: {}}
	depth := 0
	current := threadID
	for {
		parent, err := lookup(current)
		if err != nil {
			return 0, err
		}
		if parent == nil {
			return depth, nil
		}
		if _, seen := visited[*parent]; seen {
			return 0, ErrThreadCycle
		}
		visited[*parent] = struct{}{}
		depth++
		current = *parent
	}
}
