package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

type fixture struct {
	db      *gorm.DB
	svc     *Service
	company models.Company
	staff   models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := openDB(t)
	company := models.Company{Name: "Acme", Code: "AC", IsActive: true}
	require.NoError(t, db.Create(&company).Error)
	role := models.Role{Name: "Tech Support", Companies: []models.Company{company}}
	require.NoError(t, db.Create(&role).Error)
	staff := models.User{
		Name: "Staff", Email: "staff@example.com", PasswordHash: "x", IsActive: true,
		Roles: []models.Role{role},
	}
	require.NoError(t, db.Create(&staff).Error)
	// Reload with the associations the visibility scope needs.
	require.NoError(t, db.Preload("Roles.Companies").First(&staff, "id = ?", staff.ID).Error)
	return &fixture{db: db, svc: NewService(db, zap.NewNop().Sugar()), company: company, staff: staff}
}

func (f *fixture) addTicket(t *testing.T, key, status string, assigneeID *string, createdAt time.Time) models.Ticket {
	t.Helper()
	tk := models.Ticket{
		TicketKey: key, Title: "ticket " + key,
		Type: "task", Status: status, Priority: "medium", Severity: "minor",
		ReporterID: f.staff.ID, AssigneeID: assigneeID, CompanyID: f.company.ID,
	}
	require.NoError(t, f.db.Create(&tk).Error)
	// BeforeCreate stamps now; push the row back explicitly for window tests.
	require.NoError(t, f.db.Model(&tk).UpdateColumn("created_at", createdAt).Error)
	return tk
}

func TestBuildStats(t *testing.T) {
	f := setup(t)
	now := time.Now()
	f.addTicket(t, "AC-1", models.StatusOpen, nil, now)
	f.addTicket(t, "AC-2", models.StatusOpen, &f.staff.ID, now)
	f.addTicket(t, "AC-3", models.StatusInProgress, &f.staff.ID, now)
	f.addTicket(t, "AC-4", models.StatusWaiting, nil, now)
	f.addTicket(t, "AC-5", models.StatusClosed, &f.staff.ID, now)

	d, err := f.svc.Build(context.Background(), &f.staff, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, d.Stats.Total)
	assert.EqualValues(t, 2, d.Stats.Open)
	assert.EqualValues(t, 1, d.Stats.InProgress)
	assert.EqualValues(t, 1, d.Stats.Waiting)
	assert.EqualValues(t, 1, d.Stats.Closed)
	assert.EqualValues(t, 2, d.Stats.Unassigned)
}

func TestBuildWindowFiltersStatsButNotMyTickets(t *testing.T) {
	f := setup(t)
	inWindow := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	f.addTicket(t, "AC-1", models.StatusOpen, nil, inWindow)
	f.addTicket(t, "AC-2", models.StatusOpen, &f.staff.ID, outside)

	d, err := f.svc.Build(context.Background(), &f.staff, 2025, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.Stats.Total)
	require.Len(t, d.RecentTickets, 1)
	assert.Equal(t, "AC-1", d.RecentTickets[0].Key)

	// The caller's workload ignores the window entirely.
	require.Len(t, d.MyTickets, 1)
	assert.Equal(t, "AC-2", d.MyTickets[0].Key)
}

func TestBuildMyTicketsExcludesClosed(t *testing.T) {
	f := setup(t)
	now := time.Now()
	f.addTicket(t, "AC-1", models.StatusInProgress, &f.staff.ID, now)
	f.addTicket(t, "AC-2", models.StatusClosed, &f.staff.ID, now)

	d, err := f.svc.Build(context.Background(), &f.staff, 0, 0)
	require.NoError(t, err)
	require.Len(t, d.MyTickets, 1)
	assert.Equal(t, "AC-1", d.MyTickets[0].Key)
}

func TestBuildRecentTicketsCapped(t *testing.T) {
	f := setup(t)
	base := time.Now().Add(-time.Hour)
	for i := 1; i <= cardLimit+2; i++ {
		f.addTicket(t, fmt.Sprintf("AC-%d", i), models.StatusOpen, nil, base.Add(time.Duration(i)*time.Minute))
	}
	d, err := f.svc.Build(context.Background(), &f.staff, 0, 0)
	require.NoError(t, err)
	require.Len(t, d.RecentTickets, cardLimit)
	assert.Equal(t, fmt.Sprintf("AC-%d", cardLimit+2), d.RecentTickets[0].Key)
}

func TestActivityMergesAndTruncates(t *testing.T) {
	f := setup(t)
	base := time.Now().Add(-2 * time.Hour)
	tk := f.addTicket(t, "AC-1", models.StatusOpen, nil, base)

	// Eight history rows and eight comments, interleaved in time.
	for i := 0; i < 8; i++ {
		require.NoError(t, f.db.Create(&models.TicketHistory{
			TicketID: tk.ID, UserID: &f.staff.ID,
			ColumnChanged: "status", OldValue: models.StatusOpen, NewValue: models.StatusInProgress,
			ChangedAt: base.Add(time.Duration(2*i) * time.Minute),
		}).Error)
		c := models.TicketComment{TicketID: tk.ID, UserID: f.staff.ID, CommentText: fmt.Sprintf("note %d", i)}
		require.NoError(t, f.db.Create(&c).Error)
		require.NoError(t, f.db.Model(&c).UpdateColumn("created_at", base.Add(time.Duration(2*i+1)*time.Minute)).Error)
	}

	d, err := f.svc.Build(context.Background(), &f.staff, 0, 0)
	require.NoError(t, err)
	entries := d.Activity
	require.Len(t, entries, activityLimit)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.After(entries[i-1].Timestamp), "activity must be newest first")
	}
	// Both sources survive the merge.
	kinds := map[string]int{}
	for _, e := range entries {
		kinds[e.Type]++
		assert.Equal(t, "AC-1", e.TicketKey)
		assert.Equal(t, f.staff.Name, e.User)
	}
	assert.Positive(t, kinds["history"])
	assert.Positive(t, kinds["comment"])
}

func TestActivityKeepsAllEntriesUnderLimit(t *testing.T) {
	f := setup(t)
	base := time.Now().Add(-time.Hour)
	tk := f.addTicket(t, "AC-1", models.StatusOpen, nil, base)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&models.TicketHistory{
			TicketID: tk.ID, UserID: &f.staff.ID,
			ColumnChanged: "priority", OldValue: "medium", NewValue: "high",
			ChangedAt: base.Add(time.Duration(2*i) * time.Minute),
		}).Error)
		c := models.TicketComment{TicketID: tk.ID, UserID: f.staff.ID, CommentText: fmt.Sprintf("n%d", i)}
		require.NoError(t, f.db.Create(&c).Error)
		require.NoError(t, f.db.Model(&c).UpdateColumn("created_at", base.Add(time.Duration(2*i+1)*time.Minute)).Error)
	}

	d, err := f.svc.Build(context.Background(), &f.staff, 0, 0)
	require.NoError(t, err)
	require.Len(t, d.Activity, 6)
	for i := 1; i < len(d.Activity); i++ {
		assert.False(t, d.Activity[i].Timestamp.After(d.Activity[i-1].Timestamp))
	}
	// Comment and history events alternate in this fixture.
	assert.Equal(t, "comment", d.Activity[0].Type)
	assert.Equal(t, "history", d.Activity[1].Type)
}

func TestActivityHonorsVisibility(t *testing.T) {
	f := setup(t)
	hiddenCo := models.Company{Name: "Hidden", Code: "HD", IsActive: true}
	require.NoError(t, f.db.Create(&hiddenCo).Error)
	hidden := models.Ticket{
		TicketKey: "HD-1", Title: "secret", Type: "task",
		Status: models.StatusOpen, Priority: "medium", Severity: "minor",
		ReporterID: f.staff.ID, CompanyID: hiddenCo.ID,
	}
	require.NoError(t, f.db.Create(&hidden).Error)
	require.NoError(t, f.db.Create(&models.TicketHistory{
		TicketID: hidden.ID, ColumnChanged: "status", NewValue: models.StatusClosed, ChangedAt: time.Now(),
	}).Error)

	d, err := f.svc.Build(context.Background(), &f.staff, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, d.Activity)
}

func TestFormatAction(t *testing.T) {
	cases := []struct {
		column, newValue, want string
	}{
		{"status", "in_progress", "changed status to In_progress"},
		{"priority", "high", "changed priority to High"},
		{"assignee_id", "abc", "reassigned ticket"},
		{"due_date", "", "updated due date"},
	}
	for _, tc := range cases {
		h := models.TicketHistory{ColumnChanged: tc.column, NewValue: tc.newValue}
		assert.Equal(t, tc.want, formatAction(&h))
	}
}

func TestTimeWindow(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	w := timeWindow(2025, 3, now)
	require.True(t, w.set)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), w.from)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), w.to)

	w = timeWindow(2025, 0, now)
	require.True(t, w.set)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), w.from)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), w.to)

	// Month without a year means that month of the current year.
	w = timeWindow(0, 2, now)
	require.True(t, w.set)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), w.from)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), w.to)

	assert.False(t, timeWindow(0, 0, now).set)

	// An out-of-range month is an empty window, not an absent filter.
	w = timeWindow(0, 13, now)
	require.True(t, w.set)
	assert.False(t, w.from.Before(w.to))
	w = timeWindow(2025, -1, now)
	require.True(t, w.set)
	assert.False(t, w.from.Before(w.to))
}

func TestBuildInvalidMonthMatchesNothing(t *testing.T) {
	f := setup(t)
	f.addTicket(t, "AC-1", models.StatusOpen, &f.staff.ID, time.Now())

	d, err := f.svc.Build(context.Background(), &f.staff, 0, 13)
	require.NoError(t, err)
	assert.Zero(t, d.Stats.Total)
	assert.Empty(t, d.RecentTickets)
	// The caller's workload stays live regardless of the filter.
	assert.Len(t, d.MyTickets, 1)
}
