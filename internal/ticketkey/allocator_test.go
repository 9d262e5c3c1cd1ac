package ticketkey

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "helpdesk/internal/errors"
	"helpdesk/internal/models"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Company{}, &models.User{}, &models.Ticket{}))
	return db
}

func makeCompany(t *testing.T, db *gorm.DB, code string) models.Company {
	t.Helper()
	c := models.Company{Name: code, Code: code, IsActive: true}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func makeReporter(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	u := models.User{Name: "r", Email: "reporter@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// allocateAndInsert runs an allocation plus ticket insert the way the ticket
// service does: both inside one transaction.
func allocateAndInsert(t *testing.T, db *gorm.DB, a Allocator, reporterID string, companyID uint) string {
	t.Helper()
	var key string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		key, err = a.Allocate(context.Background(), tx, companyID)
		if err != nil {
			return err
		}
		return tx.Create(&models.Ticket{
			TicketKey: key, Title: key,
			Type: "task", Status: models.StatusOpen, Priority: "medium", Severity: "minor",
			ReporterID: reporterID, CompanyID: companyID,
		}).Error
	})
	require.NoError(t, err)
	return key
}

func TestAllocateSequential(t *testing.T) {
	db := openDB(t)
	a := NewLockingAllocator(zap.NewNop().Sugar())
	c := makeCompany(t, db, "MM")
	r := makeReporter(t, db)

	assert.Equal(t, "MM-1", allocateAndInsert(t, db, a, r.ID, c.ID))
	assert.Equal(t, "MM-2", allocateAndInsert(t, db, a, r.ID, c.ID))
	assert.Equal(t, "MM-3", allocateAndInsert(t, db, a, r.ID, c.ID))
}

func TestAllocateSkipsSoftDeletedKeys(t *testing.T) {
	db := openDB(t)
	a := NewLockingAllocator(zap.NewNop().Sugar())
	c := makeCompany(t, db, "MM")
	r := makeReporter(t, db)

	allocateAndInsert(t, db, a, r.ID, c.ID)
	second := allocateAndInsert(t, db, a, r.ID, c.ID)
	require.NoError(t, db.Where("ticket_key = ?", second).Delete(&models.Ticket{}).Error)

	// MM-2 is burned; the next allocation must not reuse it.
	assert.Equal(t, "MM-3", allocateAndInsert(t, db, a, r.ID, c.ID))
}

func TestAllocatePerCompanyIndependence(t *testing.T) {
	db := openDB(t)
	a := NewLockingAllocator(zap.NewNop().Sugar())
	ca := makeCompany(t, db, "CA")
	cb := makeCompany(t, db, "CB")
	r := makeReporter(t, db)

	assert.Equal(t, "CA-1", allocateAndInsert(t, db, a, r.ID, ca.ID))
	assert.Equal(t, "CB-1", allocateAndInsert(t, db, a, r.ID, cb.ID))
	assert.Equal(t, "CA-2", allocateAndInsert(t, db, a, r.ID, ca.ID))
}

func TestAllocateUnknownCompany(t *testing.T) {
	db := openDB(t)
	a := NewLockingAllocator(zap.NewNop().Sugar())

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := a.Allocate(context.Background(), tx, 999)
		return err
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

// A prefix match alone is not enough: keys of a company whose code extends
// another company's code must not leak into the shorter code's sequence.
func TestAllocateIgnoresForeignPrefixes(t *testing.T) {
	db := openDB(t)
	a := NewLockingAllocator(zap.NewNop().Sugar())
	mm := makeCompany(t, db, "MM")
	mmx := makeCompany(t, db, "MM-EXT")
	r := makeReporter(t, db)

	for i := 0; i < 3; i++ {
		allocateAndInsert(t, db, a, r.ID, mmx.ID)
	}
	assert.Equal(t, "MM-1", allocateAndInsert(t, db, a, r.ID, mm.ID))
}

func TestParseSequence(t *testing.T) {
	cases := []struct {
		code, key string
		want      int
		ok        bool
	}{
		{"MM", "MM-1", 1, true},
		{"MM", "MM-42", 42, true},
		{"MM", "MM-", 0, false},
		{"MM", "MM-x", 0, false},
		{"MM", "XX-1", 0, false},
		{"MM", "MM-EXT-1", 0, false},
		{"MM", "MM--1", 0, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%s", tc.code, tc.key), func(t *testing.T) {
			got, ok := ParseSequence(tc.code, tc.key)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
