package gate

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/andrepetsch/secret-library/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "gate_test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Invitation{}))
	return db
}

func newTestGate(t *testing.T) (*Gate, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return New(db, zerolog.Nop()), db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		DisplayName:     "Member",
		Provider:        "github",
		ProviderSubject: "subject-" + email,
	}
	if email != "" {
		user.Email = &email
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedInvitation(t *testing.T, db *gorm.DB, email *string, expiresAt time.Time) *models.Invitation {
	t.Helper()
	inv := &models.Invitation{
		Token:     "tok-" + time.Now().Format("150405.000000000"),
		Email:     email,
		CreatedBy: 1,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

func strPtr(s string) *string { return &s }

func TestDecideHandoffConsumesGeneralInvitation(t *testing.T) {
	g, db := newTestGate(t)
	inv := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))

	decision, err := g.Decide(Candidate{Email: "alice@x.com"}, inv.Token)
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, inv.ID, decision.InvitationID)

	var got models.Invitation
	require.NoError(t, db.First(&got, inv.ID).Error)
	require.NotNil(t, got.UsedAt)
}

func TestDecideConsumedTokenDeniesNextCandidate(t *testing.T) {
	g, db := newTestGate(t)
	inv := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))

	first, err := g.Decide(Candidate{Email: "alice@x.com"}, inv.Token)
	require.NoError(t, err)
	require.True(t, first.Admitted)

	// bob presents the now-consumed token, is not registered and no
	// other invitation exists
	second, err := g.Decide(Candidate{Email: "bob@x.com"}, inv.Token)
	require.NoError(t, err)
	assert.False(t, second.Admitted)
}

func TestDecideEmailScopedNeverAdmitsOtherEmail(t *testing.T) {
	g, db := newTestGate(t)
	inv := seedInvitation(t, db, strPtr("alice@x.com"), time.Now().AddDate(0, 0, 7))

	decision, err := g.Decide(Candidate{Email: "mallory@x.com"}, inv.Token)
	require.NoError(t, err)
	assert.False(t, decision.Admitted)

	// the invitation must remain unconsumed
	var got models.Invitation
	require.NoError(t, db.First(&got, inv.ID).Error)
	assert.Nil(t, got.UsedAt)
}

func TestDecideRegisteredMemberAdmitsWithoutInvitation(t *testing.T) {
	g, _ := newTestGate(t)

	decision, err := g.Decide(Candidate{Email: "alice@x.com", Registered: true}, "")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Zero(t, decision.InvitationID)
}

func TestDecideReturningMemberStillConsumesHandoffInvitation(t *testing.T) {
	// a returning member re-using a stale invitation link is honored
	g, db := newTestGate(t)
	inv := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))

	decision, err := g.Decide(Candidate{Email: "alice@x.com", Registered: true}, inv.Token)
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, inv.ID, decision.InvitationID)
}

func TestDecideUnknownTokenFallsThrough(t *testing.T) {
	g, _ := newTestGate(t)

	decision, err := g.Decide(Candidate{Email: "alice@x.com", Registered: true}, "no-such-token")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Zero(t, decision.InvitationID)

	decision, err = g.Decide(Candidate{Email: "bob@x.com"}, "no-such-token")
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
}

func TestDecideFallbackPrefersEmailScopedInvitation(t *testing.T) {
	g, db := newTestGate(t)
	general := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))
	scoped := &models.Invitation{
		Token:     "tok-scoped",
		Email:     strPtr("alice@x.com"),
		CreatedBy: 1,
		ExpiresAt: time.Now().AddDate(0, 0, 7),
	}
	require.NoError(t, db.Create(scoped).Error)

	decision, err := g.Decide(Candidate{Email: "alice@x.com"}, "")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, scoped.ID, decision.InvitationID)

	// the general invitation is still available for someone else
	var got models.Invitation
	require.NoError(t, db.First(&got, general.ID).Error)
	assert.Nil(t, got.UsedAt)
}

func TestDecideFallbackUsesGeneralInvitation(t *testing.T) {
	g, db := newTestGate(t)
	general := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))

	decision, err := g.Decide(Candidate{Email: "carol@x.com"}, "")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, general.ID, decision.InvitationID)
}

func TestDecideExpiredInvitationDenies(t *testing.T) {
	g, db := newTestGate(t)
	inv := seedInvitation(t, db, nil, time.Now().Add(-time.Hour))

	decision, err := g.Decide(Candidate{Email: "alice@x.com"}, inv.Token)
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
}

func TestDecideConcurrentSingleConsume(t *testing.T) {
	g, db := newTestGate(t)
	inv := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))

	const attempts = 10
	decisions := make([]Decision, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = g.Decide(Candidate{Email: "alice@x.com"}, inv.Token)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i, d := range decisions {
		require.NoError(t, errs[i])
		if d.Admitted {
			admitted++
			assert.Equal(t, inv.ID, d.InvitationID)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one concurrent sign-in may consume the token")
}

func TestCreateInvitationRejectsRegisteredEmail(t *testing.T) {
	g, db := newTestGate(t)
	seedUser(t, db, "alice@x.com")

	_, err := g.CreateInvitation(1, strPtr("alice@x.com"), 7)
	assert.ErrorIs(t, err, ErrEmailRegistered)
}

func TestCreateInvitationGeneratesUnguessableToken(t *testing.T) {
	g, _ := newTestGate(t)

	a, err := g.CreateInvitation(1, nil, 7)
	require.NoError(t, err)
	b, err := g.CreateInvitation(1, nil, 7)
	require.NoError(t, err)

	// 32 random bytes, base64url encoded
	assert.Len(t, a.Token, 43)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestCreateInvitationDefaultsToSevenDays(t *testing.T) {
	g, _ := newTestGate(t)

	inv, err := g.CreateInvitation(1, nil, 0)
	require.NoError(t, err)

	want := time.Now().AddDate(0, 0, 7)
	assert.WithinDuration(t, want, inv.ExpiresAt, time.Minute)
}

func TestListInvitationsOnlyOwn(t *testing.T) {
	g, db := newTestGate(t)
	mine := seedInvitation(t, db, nil, time.Now().AddDate(0, 0, 7))
	other := &models.Invitation{
		Token:     "tok-other",
		CreatedBy: 2,
		ExpiresAt: time.Now().AddDate(0, 0, 7),
	}
	require.NoError(t, db.Create(other).Error)

	list, err := g.ListInvitations(1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)
}
