// Package gate decides whether an authenticating identity may obtain a
// session, and owns invitation issuance and consumption.
package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrEmailRegistered is returned when an invitation targets an email
// that already belongs to a member.
var ErrEmailRegistered = errors.New("email already registered")

// Candidate describes the identity arriving from the sign-in callback.
type Candidate struct {
	Email      string
	Registered bool
}

// Decision is the outcome of an admission check. InvitationID is set
// when admission consumed an invitation.
type Decision struct {
	Admitted     bool
	InvitationID uint
}

type Gate struct {
	db  *gorm.DB
	log zerolog.Logger
}

func New(db *gorm.DB, log zerolog.Logger) *Gate {
	return &Gate{db: db, log: log}
}

// Decide runs the admission checks in priority order:
//
//  1. a handoff token naming a consumable invitation admits, consuming
//     it — returning members included, so a stale invite link is honored
//  2. returning members admit without an invitation
//  3. compatibility fallback: any consumable invitation scoped to the
//     candidate email, else any general one, is consumed
//  4. otherwise deny
//
// Consumption is a conditional update guarded by used_at IS NULL, so two
// sign-ins racing on one token produce exactly one admission.
func (g *Gate) Decide(candidate Candidate, handoffToken string) (Decision, error) {
	now := time.Now()

	if handoffToken != "" {
		var inv models.Invitation
		err := g.db.Where("token = ?", handoffToken).First(&inv).Error
		switch {
		case err == nil:
			if inv.ConsumableBy(candidate.Email, now) {
				ok, cerr := g.consume(inv.ID, now)
				if cerr != nil {
					return Decision{}, cerr
				}
				if ok {
					g.log.Info().Uint("invitation_id", inv.ID).Str("email", candidate.Email).
						Msg("admitted via handoff token")
					return Decision{Admitted: true, InvitationID: inv.ID}, nil
				}
				// lost the race on this token; fall through
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// unknown token is treated as no handoff
		default:
			return Decision{}, fmt.Errorf("look up invitation: %w", err)
		}
	}

	// existing members always get in; invitations only gate new ones
	if candidate.Registered {
		return Decision{Admitted: true}, nil
	}

	// fallback: email-scoped invitations first, then general ones
	if candidate.Email != "" {
		for _, scoped := range []bool{true, false} {
			id, err := g.consumeFirst(candidate.Email, scoped, now)
			if err != nil {
				return Decision{}, err
			}
			if id != 0 {
				g.log.Info().Uint("invitation_id", id).Str("email", candidate.Email).
					Bool("email_scoped", scoped).Msg("admitted via fallback invitation")
				return Decision{Admitted: true, InvitationID: id}, nil
			}
		}
	}

	return Decision{}, nil
}

// consume marks the invitation used. Returns false when another sign-in
// got there first.
func (g *Gate) consume(id uint, now time.Time) (bool, error) {
	res := g.db.Model(&models.Invitation{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("consume invitation: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// consumeFirst finds consumable invitations for the email (scoped) or
// with no email at all (general) and consumes the first it can win.
func (g *Gate) consumeFirst(email string, scoped bool, now time.Time) (uint, error) {
	q := g.db.Model(&models.Invitation{}).
		Where("used_at IS NULL AND expires_at >= ?", now)
	if scoped {
		q = q.Where("email = ?", email)
	} else {
		q = q.Where("email IS NULL")
	}

	var candidates []models.Invitation
	if err := q.Order("id ASC").Find(&candidates).Error; err != nil {
		return 0, fmt.Errorf("find invitations: %w", err)
	}

	for i := range candidates {
		ok, err := g.consume(candidates[i].ID, now)
		if err != nil {
			return 0, err
		}
		if ok {
			return candidates[i].ID, nil
		}
		// a concurrent sign-in consumed this one; try the next
	}
	return 0, nil
}

// CreateInvitation issues a new invitation. A set email must not belong
// to an existing member. expiresInDays <= 0 falls back to 7 days.
func (g *Gate) CreateInvitation(createdBy uint, email *string, expiresInDays int) (*models.Invitation, error) {
	if expiresInDays <= 0 {
		expiresInDays = 7
	}

	if email != nil && *email != "" {
		var count int64
		if err := g.db.Model(&models.User{}).Where("email = ?", *email).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check existing user: %w", err)
		}
		if count > 0 {
			return nil, ErrEmailRegistered
		}
	} else {
		email = nil
	}

	token, err := util.NewInviteToken()
	if err != nil {
		return nil, err
	}

	inv := models.Invitation{
		Token:     token,
		Email:     email,
		CreatedBy: createdBy,
		ExpiresAt: time.Now().AddDate(0, 0, expiresInDays),
	}
	if err := g.db.Create(&inv).Error; err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return &inv, nil
}

// ListInvitations returns the invitations created by the given member,
// newest first.
func (g *Gate) ListInvitations(createdBy uint) ([]models.Invitation, error) {
	var list []models.Invitation
	if err := g.db.Where("created_by = ?", createdBy).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return list, nil
}

// FindByToken returns the invitation carrying the token, if any.
func (g *Gate) FindByToken(token string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := g.db.Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}
