package access

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"helpdesk/internal/models"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Company{}, &models.Permission{}, &models.Role{}, &models.User{},
		&models.Ticket{}, &models.TicketComment{}, &models.TicketAttachment{},
		&models.TicketHistory{},
	))
	return db
}

func makeCompany(t *testing.T, db *gorm.DB, code string) models.Company {
	t.Helper()
	c := models.Company{Name: code + " Inc", Code: code, IsActive: true}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func makeUser(t *testing.T, db *gorm.DB, email string, roles ...models.Role) models.User {
	t.Helper()
	u := models.User{Name: email, Email: email, PasswordHash: "x", IsActive: true, Roles: roles}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func makeTicket(t *testing.T, db *gorm.DB, key, reporterID string, companyID uint) models.Ticket {
	t.Helper()
	tk := models.Ticket{
		TicketKey: key, Title: "t " + key,
		Type: "task", Status: models.StatusOpen, Priority: "medium", Severity: "minor",
		ReporterID: reporterID, CompanyID: companyID,
	}
	require.NoError(t, db.Create(&tk).Error)
	return tk
}

func TestResolveAllowedCompanyIDsUnion(t *testing.T) {
	u := models.User{
		Roles: []models.Role{
			{Companies: []models.Company{{ID: 1}, {ID: 2}}},
			{Companies: []models.Company{{ID: 2}, {ID: 3}}},
		},
	}
	direct := uint(4)
	u.CompanyID = &direct

	got := ResolveAllowedCompanyIDs(&u)
	assert.ElementsMatch(t, []uint{1, 2, 3, 4}, got)
	assert.Len(t, got, 4, "duplicates must collapse")
}

func TestResolveAllowedCompanyIDsEmpty(t *testing.T) {
	u := models.User{Roles: []models.Role{{Name: "Tech Support"}}}
	assert.Empty(t, ResolveAllowedCompanyIDs(&u))
}

func TestIsReporterOnly(t *testing.T) {
	assert.True(t, IsReporterOnly(&models.User{Roles: []models.Role{{Name: ReporterRole}}}))
	assert.False(t, IsReporterOnly(&models.User{Roles: []models.Role{{Name: "Admin"}}}))
	assert.False(t, IsReporterOnly(&models.User{}))
}

func TestTicketScopeFailsClosed(t *testing.T) {
	db := openDB(t)
	c := makeCompany(t, db, "AC")
	staff := makeUser(t, db, "staff@example.com", models.Role{Name: "Tech Support"})
	makeTicket(t, db, "AC-1", staff.ID, c.ID)

	// No allowed companies at all: the scope must match nothing, not everything.
	var rows []models.Ticket
	require.NoError(t, db.Scopes(TicketScope(&staff, nil)).Find(&rows).Error)
	assert.Empty(t, rows)
}

func TestTicketScopeReporterOnly(t *testing.T) {
	db := openDB(t)
	a := makeCompany(t, db, "AA")
	b := makeCompany(t, db, "BB")
	reporter := makeUser(t, db, "reporter@example.com", models.Role{Name: ReporterRole})
	other := makeUser(t, db, "other@example.com")

	mine := makeTicket(t, db, "AA-1", reporter.ID, a.ID)
	makeTicket(t, db, "AA-2", other.ID, a.ID)
	makeTicket(t, db, "BB-1", reporter.ID, b.ID)

	// Reporter restricted to company A: own ticket in B is out of scope too.
	var rows []models.Ticket
	require.NoError(t, db.Scopes(TicketScope(&reporter, []uint{a.ID})).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0].ID)
}

func TestTicketScopeStaffSeesWholeCompany(t *testing.T) {
	db := openDB(t)
	a := makeCompany(t, db, "AA")
	b := makeCompany(t, db, "BB")
	staff := makeUser(t, db, "staff@example.com", models.Role{Name: "Tech Support"})
	reporter := makeUser(t, db, "reporter@example.com", models.Role{Name: ReporterRole})

	makeTicket(t, db, "AA-1", reporter.ID, a.ID)
	makeTicket(t, db, "AA-2", staff.ID, a.ID)
	makeTicket(t, db, "BB-1", reporter.ID, b.ID)

	var rows []models.Ticket
	require.NoError(t, db.Scopes(TicketScope(&staff, []uint{a.ID})).Find(&rows).Error)
	assert.Len(t, rows, 2)
}

// The history feed restricts on VisibleTicketIDs; the rows it returns must
// belong to exactly the tickets the direct scope returns.
func TestVisibleTicketIDsMatchesScope(t *testing.T) {
	db := openDB(t)
	a := makeCompany(t, db, "AA")
	b := makeCompany(t, db, "BB")
	staff := makeUser(t, db, "staff@example.com", models.Role{Name: "Tech Support"})

	var wantIDs []string
	for i := 1; i <= 3; i++ {
		tk := makeTicket(t, db, fmt.Sprintf("AA-%d", i), staff.ID, a.ID)
		wantIDs = append(wantIDs, tk.ID)
		require.NoError(t, db.Create(&models.TicketHistory{
			TicketID: tk.ID, ColumnChanged: "status", NewValue: models.StatusClosed,
		}).Error)
	}
	hidden := makeTicket(t, db, "BB-1", staff.ID, b.ID)
	require.NoError(t, db.Create(&models.TicketHistory{
		TicketID: hidden.ID, ColumnChanged: "status", NewValue: models.StatusClosed,
	}).Error)

	allowed := []uint{a.ID}

	var scoped []models.Ticket
	require.NoError(t, db.Scopes(TicketScope(&staff, allowed)).Find(&scoped).Error)
	var scopedIDs []string
	for _, tk := range scoped {
		scopedIDs = append(scopedIDs, tk.ID)
	}
	assert.ElementsMatch(t, wantIDs, scopedIDs)

	var histories []models.TicketHistory
	require.NoError(t, db.
		Where("ticket_id IN (?)", VisibleTicketIDs(db, &staff, allowed)).
		Find(&histories).Error)
	require.Len(t, histories, 3)
	for _, h := range histories {
		assert.Contains(t, wantIDs, h.TicketID)
	}
}
