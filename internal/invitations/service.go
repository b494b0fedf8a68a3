package invitations

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	docservice "github.com/docsy-app/docsy/backend/go-services/internal/document/service"
	"github.com/docsy-app/docsy/backend/go-services/pkg/logger"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Sender delivers invitation mail. Delivery failures never fail the
// invitation itself; the link can still be shared out of band.
type Sender interface {
	SendInvitation(to, inviterName, docTitle, link string) error
}

// Notifier broadcasts a collaborator-added event to live document sessions.
type Notifier interface {
	NotifyCollaboratorAdded(docID string, c document.Collaborator)
}

// Options carries the issuance policy knobs.
type Options struct {
	TTL            time.Duration
	PerInviterHour int
	PerEmailPerDay int
	LinkBase       string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.PerInviterHour <= 0 {
		o.PerInviterHour = 10
	}
	if o.PerEmailPerDay <= 0 {
		o.PerEmailPerDay = 3
	}
	return o
}

// CreateInput is the request to issue a new invitation.
type CreateInput struct {
	DocID       string
	Email       string
	Role        string
	Notes       string
	InviterID   string
	InviterName string
}

// Service implements the invitation lifecycle: issue, lookup, validate,
// accept, revoke, resend, list and sweep.
type Service struct {
	repo     Repository
	docs     docservice.Service
	counter  Counter
	sender   Sender
	notifier Notifier
	opts     Options
	now      func() time.Time
}

func NewService(repo Repository, docs docservice.Service, counter Counter, sender Sender, notifier Notifier, opts Options) *Service {
	return &Service{
		repo:     repo,
		docs:     docs,
		counter:  counter,
		sender:   sender,
		notifier: notifier,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create issues a new invitation and returns it together with the plaintext
// token (returned exactly once; only its hash is stored).
func (s *Service) Create(ctx context.Context, in CreateInput) (*Invitation, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return nil, "", &ValidationError{Field: "email", Reason: "not a valid email address"}
	}
	role, ok := access.ParseGrantable(in.Role)
	if !ok {
		return nil, "", &ValidationError{Field: "role", Reason: "must be viewer or editor"}
	}

	doc, err := s.docs.Get(ctx, in.DocID)
	if err != nil {
		if errors.Is(err, docservice.ErrNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	// Owners may grant any role; editors may only invite viewers.
	switch inviterRole := doc.RoleOf(in.InviterID); inviterRole {
	case access.RoleOwner:
	case access.RoleEditor:
		if role != access.RoleViewer {
			return nil, "", ErrAccessDenied
		}
	default:
		return nil, "", ErrAccessDenied
	}

	for _, c := range doc.Collaborators {
		if strings.EqualFold(c.Email, email) {
			return nil, "", ErrAlreadyCollaborator
		}
	}

	if existing, err := s.repo.FindPending(ctx, in.DocID, email); err != nil {
		return nil, "", err
	} else if existing != nil && !existing.IsExpired(s.now()) {
		return nil, "", ErrDuplicatePending
	}

	if err := s.checkCaps(ctx, in.DocID, in.InviterID, email); err != nil {
		return nil, "", err
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC()
	inv := &Invitation{
		DocID:     in.DocID,
		Email:     email,
		Role:      role,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.opts.TTL),
		Status:    StatusPending,
		InvitedBy: in.InviterID,
		Notes:     strings.TrimSpace(in.Notes),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, "", err
	}

	// Count after the row is persisted so a storage failure does not burn
	// a slot from the inviter's budget.
	if _, _, err := s.counter.Increment(ctx, inviterKey(in.InviterID), time.Hour); err != nil {
		logger.Warnf("invitations: counter increment failed: %v", err)
	}

	s.deliver(inv, in.InviterName, doc.Title, token)
	return inv, token, nil
}

func (s *Service) checkCaps(ctx context.Context, docID, inviterID, email string) error {
	count, resetAt, err := s.counter.Peek(ctx, inviterKey(inviterID), time.Hour)
	if err != nil {
		return err
	}
	if count >= int64(s.opts.PerInviterHour) {
		return &RateLimitedError{Scope: "inviter", RetryAfter: resetAt.Sub(s.now())}
	}

	recent, err := s.repo.CountRecent(ctx, docID, email, s.now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if recent >= int64(s.opts.PerEmailPerDay) {
		return &RateLimitedError{Scope: "recipient", RetryAfter: 24 * time.Hour}
	}
	return nil
}

func (s *Service) deliver(inv *Invitation, inviterName, docTitle, token string) {
	if s.sender == nil {
		return
	}
	link := fmt.Sprintf("%s/invite/%s", strings.TrimRight(s.opts.LinkBase, "/"), token)
	if err := s.sender.SendInvitation(inv.Email, inviterName, docTitle, link); err != nil {
		logger.Warnf("invitations: mail delivery to %s failed: %v", inv.Email, err)
	}
}

// Lookup resolves a plaintext token to its invitation and document without
// changing any state. Expired-by-clock pending rows are surfaced as expired.
// A revoked token (including one superseded by a resend) resolves to nothing:
// whoever holds the dead link learns no more than a guesser would.
func (s *Service) Lookup(ctx context.Context, token string) (*Invitation, *document.Document, error) {
	inv, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, nil, err
	}
	if inv == nil || inv.Status == StatusRevoked {
		return nil, nil, ErrNotFound
	}
	doc, err := s.docs.Get(ctx, inv.DocID)
	if err != nil && !errors.Is(err, docservice.ErrNotFound) {
		return nil, nil, err
	}
	if inv.IsExpired(s.now()) {
		return inv, doc, ErrExpired
	}
	if inv.Status != StatusPending {
		return inv, doc, ErrAlreadyUsed
	}
	return inv, doc, nil
}

// Validate is a dry-run of Accept for the given principal email. It never
// mutates state; in particular a mismatched email does not burn an attempt.
func (s *Service) Validate(ctx context.Context, token, principalEmail string) (*Invitation, error) {
	inv, _, err := s.Lookup(ctx, token)
	if err != nil {
		return inv, err
	}
	if !inv.AcceptEligible(s.now()) {
		return inv, ErrAlreadyUsed
	}
	if !strings.EqualFold(inv.Email, principalEmail) {
		return inv, ErrEmailMismatch
	}
	return inv, nil
}

// Accept redeems the invitation for the authenticated principal, granting the
// invited role on the document. Accepting an already-accepted invitation with
// the matching email is a no-op success, so client retries are safe.
func (s *Service) Accept(ctx context.Context, token, principalID, principalEmail string) (*Invitation, error) {
	inv, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	now := s.now().UTC()

	if inv.Status == StatusAccepted {
		if strings.EqualFold(inv.Email, principalEmail) {
			return inv, nil
		}
		return nil, ErrAlreadyUsed
	}
	// Expiry wins over the other terminal states: a row force-expired by
	// mismatch attempts must answer expired, not used.
	if inv.IsExpired(now) {
		if inv.Status == StatusPending {
			inv.Status = StatusExpired
			if uerr := s.repo.Update(ctx, inv); uerr != nil {
				logger.Warnf("invitations: lazy expiry of %s failed: %v", inv.ID, uerr)
			}
		}
		return nil, ErrExpired
	}
	if inv.Status != StatusPending {
		return nil, ErrAlreadyUsed
	}

	if !strings.EqualFold(inv.Email, principalEmail) {
		inv.Attempts++
		if inv.Attempts >= MaxAcceptAttempts {
			inv.Status = StatusExpired
		}
		if uerr := s.repo.Update(ctx, inv); uerr != nil {
			return nil, uerr
		}
		if inv.Status == StatusExpired {
			return nil, ErrExpired
		}
		return nil, ErrEmailMismatch
	}

	// Grant first, then flip the status. If the status write fails the
	// invitation stays pending and a retry re-runs the idempotent grant;
	// an accepted invitation without its grant can never exist.
	collab := document.Collaborator{
		UserID: principalID,
		Email:  inv.Email,
		Role:   inv.Role,
	}
	if err := s.docs.AddCollaborator(ctx, inv.DocID, collab); err != nil {
		if errors.Is(err, docservice.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	inv.Status = StatusAccepted
	inv.AcceptedAt = &now
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyCollaboratorAdded(inv.DocID, collab)
	}
	return inv, nil
}

// Revoke invalidates a pending invitation. Owner only; the issuing editor
// lost that authority when the invitation left their hands. Revoking an
// already-revoked invitation succeeds.
func (s *Service) Revoke(ctx context.Context, id, principalID string) (*Invitation, error) {
	inv, err := s.authorizeManage(ctx, id, principalID)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case StatusAccepted:
		return nil, ErrAlreadyAccepted
	case StatusRevoked:
		return inv, nil
	}
	now := s.now().UTC()
	inv.Status = StatusRevoked
	inv.RevokedAt = &now
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Resend revokes the old invitation and issues a replacement with a fresh
// token and a full validity window. Owner only. The old link stops working
// immediately.
func (s *Service) Resend(ctx context.Context, id, principalID, inviterName string) (*Invitation, string, error) {
	old, err := s.authorizeManage(ctx, id, principalID)
	if err != nil {
		return nil, "", err
	}
	if old.Status == StatusAccepted {
		return nil, "", ErrAlreadyAccepted
	}

	if err := s.checkCaps(ctx, old.DocID, principalID, old.Email); err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	if old.Status == StatusPending {
		old.Status = StatusRevoked
		old.RevokedAt = &now
		if err := s.repo.Update(ctx, old); err != nil {
			return nil, "", err
		}
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	fresh := &Invitation{
		DocID:     old.DocID,
		Email:     old.Email,
		Role:      old.Role,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.opts.TTL),
		Status:    StatusPending,
		InvitedBy: principalID,
		Notes:     old.Notes,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, fresh); err != nil {
		return nil, "", err
	}
	if _, _, err := s.counter.Increment(ctx, inviterKey(principalID), time.Hour); err != nil {
		logger.Warnf("invitations: counter increment failed: %v", err)
	}

	var docTitle string
	if doc, derr := s.docs.Get(ctx, old.DocID); derr == nil {
		docTitle = doc.Title
	}
	s.deliver(fresh, inviterName, docTitle, token)
	return fresh, token, nil
}

// List returns every invitation for the document, newest first. Owner only.
func (s *Service) List(ctx context.Context, docID, principalID string) ([]*Invitation, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, docservice.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.RoleOf(principalID) != access.RoleOwner {
		return nil, ErrAccessDenied
	}
	return s.repo.ListByDoc(ctx, docID)
}

// SweepExpired flips every pending invitation past its expiry to expired.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.ExpirePending(ctx, s.now().UTC())
}

// authorizeManage loads the invitation and checks that the principal owns the
// target document. Revoke and resend are owner operations; being the original
// inviter is not enough.
func (s *Service) authorizeManage(ctx context.Context, id, principalID string) (*Invitation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	doc, err := s.docs.Get(ctx, inv.DocID)
	if err != nil {
		if errors.Is(err, docservice.ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}
	if doc.RoleOf(principalID) != access.RoleOwner {
		return nil, ErrAccessDenied
	}
	return inv, nil
}

func inviterKey(inviterID string) string {
	return "inviter:" + inviterID
}
