package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/careerquest/backend/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.InterviewSession{},
		&models.Turn{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Interview session operations

// CreateInterviewSession persists a new session together with any turns
// already attached to it (the opening question) in a single transaction.
func (r *GORMRepository) CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create interview session", "error", err)
		return err
	}
	slog.Info("Interview session created", "session_id", session.ID, "user_id", session.UserID, "mode", session.Mode)
	return nil
}

func (r *GORMRepository) GetInterviewSessions(ctx context.Context, userID string) ([]models.InterviewSession, error) {
	var sessions []models.InterviewSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("started_at DESC").Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to get interview sessions", "error", err, "user_id", userID)
		return nil, err
	}
	return sessions, nil
}

// GetInterviewSessionWithTurns loads a session and its turns in turn order,
// scoped to the owning user.
func (r *GORMRepository) GetInterviewSessionWithTurns(ctx context.Context, sessionID string, userID string) (*models.InterviewSession, error) {
	var session models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Preload("Turns", func(db *gorm.DB) *gorm.DB {
			return db.Order("turn_order")
		}).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get interview session with turns", "error", err, "session_id", sessionID, "user_id", userID)
		return nil, err
	}
	return &session, nil
}

// ApplyTurnResult commits the outcome of one model exchange atomically:
// the just-answered turn, the session's running score/status, and the next
// turn if the interview continues. Either all three land or none do, so a
// failed submission can be retried against unchanged state.
func (r *GORMRepository) ApplyTurnResult(ctx context.Context, session *models.InterviewSession, answered *models.Turn, next *models.Turn) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if answered != nil {
			if err := tx.Model(&models.Turn{}).Where("id = ?", answered.ID).Updates(map[string]interface{}{
				"answer":          answered.Answer,
				"written_answer":  answered.WrittenAnswer,
				"facial_analysis": answered.FacialAnalysis,
				"score":           answered.Score,
				"analysis":        answered.Analysis,
				"answered_at":     answered.AnsweredAt,
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.InterviewSession{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
			"overall_score": session.OverallScore,
			"ai_summary":    session.AISummary,
			"weaknesses":    session.Weaknesses,
			"status":        session.Status,
			"ended_at":      session.EndedAt,
		}).Error; err != nil {
			return err
		}

		if next != nil {
			if err := tx.Create(next).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to apply turn result", "error", err, "session_id", session.ID)
		return err
	}
	slog.Info("Turn result applied", "session_id", session.ID, "status", session.Status, "overall_score", session.OverallScore)
	return nil
}

func (r *GORMRepository) DeleteInterviewSession(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.Turn{}).Error; err != nil {
		slog.Error("Failed to delete session turns", "error", err, "session_id", sessionID)
		return err
	}
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.InterviewSession{}).Error; err != nil {
		slog.Error("Failed to delete interview session", "error", err, "session_id", sessionID)
		return err
	}
	slog.Info("Interview session deleted", "session_id", sessionID)
	return nil
}

func (r *GORMRepository) BulkDeleteInterviewSessions(ctx context.Context, sessionIDs []string) (int64, error) {
	if err := r.db.WithContext(ctx).Where("session_id IN ?", sessionIDs).Delete(&models.Turn{}).Error; err != nil {
		slog.Error("Failed to bulk delete session turns", "error", err)
		return 0, err
	}
	result := r.db.WithContext(ctx).Where("id IN ?", sessionIDs).Delete(&models.InterviewSession{})
	if result.Error != nil {
		slog.Error("Failed to bulk delete interview sessions", "error", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkSessionAbandoned flips an in-progress session to abandoned. Completed
// sessions are left untouched.
func (r *GORMRepository) MarkSessionAbandoned(ctx context.Context, sessionID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.InterviewSession{}).
		Where("id = ? AND status = ?", sessionID, models.StatusInProgress).
		Updates(map[string]interface{}{"status": models.StatusAbandoned, "ended_at": &now})
	if result.Error != nil {
		slog.Error("Failed to mark session abandoned", "error", result.Error, "session_id", sessionID)
		return result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("Session marked abandoned", "session_id", sessionID)
	}
	return nil
}

// StaleInProgressSessions returns ids of in-progress sessions with no
// activity since the cutoff, for the janitor to reap.
func (r *GORMRepository) StaleInProgressSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.InterviewSession{}).
		Where("status = ? AND updated_at < ?", models.StatusInProgress, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		slog.Error("Failed to query stale sessions", "error", err)
		return nil, err
	}
	return ids, nil
}
