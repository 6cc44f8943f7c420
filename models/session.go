package models

import "time"

// ConversationState is the step one user has reached in a lunchbot conversation
type ConversationState string

const (
	StateAwaitingTime            ConversationState = "AWAITING_TIME"
	StateAwaitingPrice           ConversationState = "AWAITING_PRICE"
	StateAwaitingTagExclude      ConversationState = "AWAITING_TAG_EXCLUDE"
	StateFinished                ConversationState = "FINISHED"
	StateAwaitingAddConfirmation ConversationState = "AWAITING_ADD_CONFIRMATION"
	StateDone                    ConversationState = "DONE"
)

type Session struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	InitiatorID  string        `json:"initiator_id" gorm:"not null;index"`
	ChannelID    string        `json:"channel_id"`
	Dispatched   bool          `json:"dispatched" gorm:"not null;default:false"`
	Participants []Participant `json:"participants" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Participant struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	SessionID string            `json:"session_id" gorm:"not null;uniqueIndex:idx_session_user"`
	UserID    string            `json:"user_id" gorm:"not null;uniqueIndex:idx_session_user;index"`
	Position  int               `json:"position"`
	Finished  bool              `json:"finished" gorm:"not null;default:false"`
	Step      ConversationState `json:"step" gorm:"not null;default:'AWAITING_TIME'"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// UserIDs returns participant ids in invitation order.
func (s Session) UserIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Participant returns the entry for userID, if invited.
func (s Session) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
