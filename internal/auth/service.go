// Package auth はIDトークンの検証、スタッフプロフィールの作成、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/staffportal/internal/model"
	"github.com/hitoshi/staffportal/internal/repository"
)

// ログイン後のリダイレクト先
const (
	ChangePasswordPath = "/change-password"
	LandingPath        = "/tasks"
)

// MetricsRecorder は認証イベントを記録するインターフェース。
type MetricsRecorder interface {
	RecordSessionEstablished(newStaff bool)
	RecordAuthFailure(operation, kind string)
	RecordPasswordChanged()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// LoginResult はセッション確立の結果。
type LoginResult struct {
	Session  *model.Session
	Redirect string
}

// Service はセッションゲートウェイのビジネスロジックを提供する。
type Service struct {
	verifier    TokenVerifier
	staffRepo   repository.StaffRepository
	sessionRepo repository.SessionRepository
	metrics     MetricsRecorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	verifier TokenVerifier,
	staffRepo repository.StaffRepository,
	sessionRepo repository.SessionRepository,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier:    verifier,
		staffRepo:   staffRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		config:      config,
		now:         time.Now,
	}
}

// EstablishSession はIDトークンを検証し、セッションを発行する。
// 未登録のスタッフはpassword_changed=falseでプロフィールを作成する。
// 登録済みのスタッフのプロフィールは書き換えない。
func (s *Service) EstablishSession(ctx context.Context, idToken string) (*LoginResult, error) {
	result, err := s.establishSession(ctx, idToken)
	if err != nil {
		s.recordFailure("establish_session", err)
		return nil, err
	}
	return result, nil
}

func (s *Service) establishSession(ctx context.Context, idToken string) (*LoginResult, error) {
	if idToken == "" {
		return nil, newError(KindMissingToken, nil)
	}

	// 1. IDトークンを検証
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, newError(KindInvalidToken, err)
	}

	// 2. プロフィールを検索し、無ければ作成
	staff, created, err := s.findOrCreateStaff(ctx, identity)
	if err != nil {
		slog.Error("failed to load staff profile",
			slog.String("uid", identity.UID),
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindPersistenceFailure, err)
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, identity, staff.PasswordChanged)
	if err != nil {
		slog.Error("failed to create session",
			slog.String("uid", identity.UID),
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindPersistenceFailure, err)
	}

	redirect := LandingPath
	if !staff.PasswordChanged {
		redirect = ChangePasswordPath
	}

	slog.Info("session established",
		slog.String("uid", identity.UID),
		slog.String("email", identity.Email),
		slog.Bool("new_staff", created),
		slog.Bool("password_changed", staff.PasswordChanged),
		slog.String("redirect", redirect),
	)
	if s.metrics != nil {
		s.metrics.RecordSessionEstablished(created)
	}

	return &LoginResult{Session: session, Redirect: redirect}, nil
}

// CompletePasswordChange はIDトークンを再検証し、password_changedをtrueに設定する。
// 現在のセッションにも同じ値を反映する。
//
// トークンのUIDとセッションのUIDは照合しない。不一致は警告ログのみ出力する。
func (s *Service) CompletePasswordChange(ctx context.Context, session *model.Session, idToken string) error {
	if err := s.completePasswordChange(ctx, session, idToken); err != nil {
		s.recordFailure("change_password", err)
		return err
	}
	return nil
}

func (s *Service) completePasswordChange(ctx context.Context, session *model.Session, idToken string) error {
	if idToken == "" {
		return newError(KindMissingToken, nil)
	}
	if session == nil {
		return newError(KindPersistenceFailure, errors.New("no active session"))
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return newError(KindInvalidToken, err)
	}

	if identity.UID != session.UID {
		slog.Warn("password change token does not belong to session owner",
			slog.String("token_uid", identity.UID),
			slog.String("session_uid", session.UID),
		)
	}

	if err := s.staffRepo.MarkPasswordChanged(ctx, identity.UID); err != nil {
		return newError(KindPersistenceFailure, err)
	}

	if err := s.sessionRepo.MarkPasswordChanged(ctx, session.ID); err != nil {
		return newError(KindPersistenceFailure, err)
	}
	session.PasswordChanged = true

	slog.Info("password change completed",
		slog.String("uid", identity.UID),
		slog.String("email", identity.Email),
	)
	if s.metrics != nil {
		s.metrics.RecordPasswordChanged()
	}

	return nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("staff logged out", slog.String("session_id", sessionID))
	return nil
}

// findOrCreateStaff はプロフィールを取得し、存在しなければ作成する。
// 並行する初回ログインで作成が競合した場合は、勝った側の行を読み直す。
func (s *Service) findOrCreateStaff(ctx context.Context, identity *Identity) (*model.Staff, bool, error) {
	staff, err := s.staffRepo.FindByUID(ctx, identity.UID)
	if err != nil {
		return nil, false, err
	}
	if staff != nil {
		return staff, false, nil
	}

	now := s.now()
	staff = &model.Staff{
		UID:             identity.UID,
		Email:           identity.Email,
		PasswordChanged: false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.staffRepo.CreateIfAbsent(ctx, staff)
	if err != nil {
		return nil, false, err
	}
	if created {
		return staff, true, nil
	}

	existing, err := s.staffRepo.FindByUID(ctx, identity.UID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("staff %s vanished after concurrent create", identity.UID)
	}
	return existing, false, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, identity *Identity, passwordChanged bool) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:              sessionID,
		UID:             identity.UID,
		Email:           identity.Email,
		PasswordChanged: passwordChanged,
		ExpiresAt:       now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:       now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) recordFailure(operation string, err error) {
	if s.metrics == nil {
		return
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		s.metrics.RecordAuthFailure(operation, authErr.Kind.String())
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
