package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"gymdesk/internal/models"
)

// ErrMemberNotFound is returned when a member lookup misses.
var ErrMemberNotFound = errors.New("member not found")

// MemberService owns member persistence for the public registration and
// renewal flow.
type MemberService struct {
	db *gorm.DB
}

func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{db: db}
}

func (s *MemberService) Create(ctx context.Context, m *models.Member) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *MemberService) ByID(ctx context.Context, id uint) (*models.Member, error) {
	var m models.Member
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *MemberService) EmailInUse(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (s *MemberService) PhoneInUse(ctx context.Context, phone string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).Where("phone = ?", phone).Count(&count).Error
	return count > 0, err
}

// ConfirmPayment marks the member's current term as settled.
func (s *MemberService) ConfirmPayment(ctx context.Context, memberID uint) error {
	return s.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ?", memberID).
		Update("payment_status", models.PaymentStatusConfirmed).Error
}

// CreateRenewal records a pending renewal request.
func (s *MemberService) CreateRenewal(ctx context.Context, r *models.RenewalRequest) error {
	return s.db.WithContext(ctx).Create(r).Error
}

// ApproveRenewal applies a pending request: the member gets the new plan and
// dates, payment is confirmed, and the request is closed.
func (s *MemberService) ApproveRenewal(ctx context.Context, requestID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.RenewalRequest
		if err := tx.First(&req, requestID).Error; err != nil {
			return err
		}
		if req.Status != models.RenewalPending {
			return errors.New("renewal request already resolved")
		}

		now := time.Now()
		updates := map[string]interface{}{
			"plan":           req.Plan,
			"start_date":     now,
			"end_date":       req.Plan.EndDate(now),
			"payment_method": req.PaymentMethod,
			"payment_status": models.PaymentStatusConfirmed,
		}
		if err := tx.Model(&models.Member{}).Where("id = ?", req.MemberID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Model(&req).Updates(map[string]interface{}{
			"status":      models.RenewalApproved,
			"resolved_at": &now,
		}).Error
	})
}

// RejectRenewal closes a pending request without touching the member.
func (s *MemberService) RejectRenewal(ctx context.Context, requestID uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.RenewalRequest{}).
		Where("id = ? AND status = ?", requestID, models.RenewalPending).
		Updates(map[string]interface{}{
			"status":      models.RenewalRejected,
			"resolved_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("renewal request not pending")
	}
	return nil
}
