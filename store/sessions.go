package store

import (
	"context"
	"errors"
	"fmt"

	"lunchbot/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sessions tracks lunch sessions and the completion of their participants.
type Sessions struct {
	db *gorm.DB
}

func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

// Create opens a session for userIDs, in the given order, with every
// participant at step.
func (s *Sessions) Create(ctx context.Context, initiatorID, channelID string, userIDs []string, step models.ConversationState) (*models.Session, error) {
	if len(userIDs) == 0 {
		return nil, errors.New("create session: no participants")
	}
	session := models.Session{
		ID:          uuid.NewString(),
		InitiatorID: initiatorID,
		ChannelID:   channelID,
	}
	for i, id := range userIDs {
		session.Participants = append(session.Participants, models.Participant{
			UserID:   id,
			Position: i,
			Step:     step,
		})
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

func orderedParticipants(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

func (s *Sessions) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Preload("Participants", orderedParticipants).
		First(&session, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// ActiveFor returns participant entries of userIDs in sessions whose
// suggestions have not been dispatched yet.
func (s *Sessions) ActiveFor(ctx context.Context, userIDs []string) ([]models.Participant, error) {
	var participants []models.Participant
	if len(userIDs) == 0 {
		return participants, nil
	}
	err := s.db.WithContext(ctx).
		Joins("JOIN sessions ON sessions.id = participants.session_id").
		Where("participants.user_id IN ? AND sessions.dispatched = ?", userIDs, false).
		Order("participants.id asc").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("find active sessions: %w", err)
	}
	return participants, nil
}

// InitiatedBy returns the undispatched sessions started by userID.
func (s *Sessions) InitiatedBy(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Preload("Participants", orderedParticipants).
		Where("initiator_id = ? AND dispatched = ?", userID, false).
		Order("created_at asc").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("find sessions initiated by %s: %w", userID, err)
	}
	return sessions, nil
}

// Advance records the step a participant has reached.
func (s *Sessions) Advance(ctx context.Context, sessionID, userID string, step models.ConversationState) error {
	res := s.db.WithContext(ctx).Model(&models.Participant{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Update("step", step)
	if res.Error != nil {
		return fmt.Errorf("advance %s in session %s: %w", userID, sessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFinished marks userID finished in the session. When that completes the
// session, the caller also claims the suggestion dispatch: claimed is true
// for exactly one caller per session, however finish clicks interleave.
func (s *Sessions) MarkFinished(ctx context.Context, sessionID, userID string) (claimed bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Participant{}).
			Where("session_id = ? AND user_id = ?", sessionID, userID).
			Updates(map[string]any{"finished": true, "step": models.StateFinished})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		claimed, err = claimIfComplete(tx, sessionID)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("mark %s finished in session %s: %w", userID, sessionID, err)
	}
	return claimed, err
}

// Leave removes userID from the session. A session left empty is deleted.
// When everyone still in it has finished, the caller claims the dispatch the
// same way MarkFinished does.
func (s *Sessions) Leave(ctx context.Context, sessionID, userID string) (claimed bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).Delete(&models.Participant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var remaining int64
		if err := tx.Model(&models.Participant{}).Where("session_id = ?", sessionID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Delete(&models.Session{}, "id = ?", sessionID).Error
		}
		claimed, err = claimIfComplete(tx, sessionID)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("remove %s from session %s: %w", userID, sessionID, err)
	}
	return claimed, err
}

// claimIfComplete flips dispatched when no participant is unfinished. The
// conditional update lets only one transaction see a changed row.
func claimIfComplete(tx *gorm.DB, sessionID string) (bool, error) {
	var unfinished int64
	err := tx.Model(&models.Participant{}).
		Where("session_id = ? AND finished = ?", sessionID, false).
		Count(&unfinished).Error
	if err != nil || unfinished > 0 {
		return false, err
	}
	res := tx.Model(&models.Session{}).
		Where("id = ? AND dispatched = ?", sessionID, false).
		Update("dispatched", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsComplete reports whether every participant of a loaded session has
// finished. It mirrors the check claimIfComplete runs in SQL.
func IsComplete(session models.Session) bool {
	for _, p := range session.Participants {
		if !p.Finished {
			return false
		}
	}
	return true
}

// Delete removes a session and its participants.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
			return fmt.Errorf("delete participants of %s: %w", id, err)
		}
		res := tx.Delete(&models.Session{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete session %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
