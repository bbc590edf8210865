package service

import (
	"context"
	"errors"

	"examreg/internal/registration/models"
	"examreg/internal/registration/store"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/pii"
	"examreg/pkg/requestcontext"
	"examreg/pkg/sentinel"
)

// View is a registration with its PII decrypted and masked for display.
// Ciphertext never leaves the service layer.
type View struct {
	models.Registration
	IDCardMasked string `json:"id_card"`
	PhoneMasked  string `json:"phone"`
}

// Page is one page of an admin listing.
type Page struct {
	Items []View `json:"items"`
	Total int64  `json:"total"`
}

// view decrypts and masks one registration. A row whose ciphertext cannot be
// decrypted keeps a placeholder mask; a bad key must not hide the listing.
func (s *Service) view(ctx context.Context, reg models.Registration) View {
	v := View{Registration: reg, IDCardMasked: "***", PhoneMasked: "***"}
	if idCard, err := s.cipher.Decrypt(reg.IDCardEncrypted); err != nil {
		s.logger.WarnContext(ctx, "failed to decrypt id card",
			"registration_id", reg.ID, "error", err)
	} else {
		v.IDCardMasked = pii.MaskIDCard(idCard)
	}
	if phone, err := s.cipher.Decrypt(reg.PhoneEncrypted); err != nil {
		s.logger.WarnContext(ctx, "failed to decrypt phone",
			"registration_id", reg.ID, "error", err)
	} else {
		v.PhoneMasked = pii.MaskPhone(phone)
	}
	return v
}

func (s *Service) views(ctx context.Context, regs []models.Registration) []View {
	out := make([]View, 0, len(regs))
	for _, reg := range regs {
		out = append(out, s.view(ctx, reg))
	}
	return out
}

// ListMine returns the caller's registrations, newest first.
func (s *Service) ListMine(ctx context.Context) ([]View, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	regs, err := s.regs.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to list registrations")
	}
	return s.views(ctx, regs), nil
}

// ListPending returns registrations awaiting audit, for the admin queue.
func (s *Service) ListPending(ctx context.Context, page, pageSize int) (Page, error) {
	return s.List(ctx, store.ListFilter{
		AuditStatus: models.AuditStatusPending,
		Page:        page,
		PageSize:    pageSize,
	})
}

// List returns a filtered, paginated admin listing.
func (s *Service) List(ctx context.Context, filter store.ListFilter) (Page, error) {
	regs, total, err := s.regs.List(ctx, filter)
	if err != nil {
		return Page{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to list registrations")
	}
	return Page{Items: s.views(ctx, regs), Total: total}, nil
}

// Detail returns one registration. Candidates may only see their own;
// admins may see any.
func (s *Service) Detail(ctx context.Context, regID id.RegistrationID) (View, error) {
	reg, err := s.regs.FindByID(ctx, regID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return View{}, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	if err != nil {
		return View{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load registration")
	}
	if requestcontext.Role(ctx) != requestcontext.RoleAdmin && reg.UserID != requestcontext.UserID(ctx) {
		return View{}, dErrors.New(dErrors.CodeForbidden, "not your registration")
	}
	return s.view(ctx, reg), nil
}

// Stats summarizes the registration pipeline for one exam; a zero examID
// covers all exams.
func (s *Service) Stats(ctx context.Context, examID id.ExamID) (store.Stats, error) {
	stats, err := s.regs.Stats(ctx, examID)
	if err != nil {
		return store.Stats{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load registration stats")
	}
	return stats, nil
}
