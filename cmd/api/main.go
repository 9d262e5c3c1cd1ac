package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"helpdesk/internal/auth"
	"helpdesk/internal/httpserver"
	"helpdesk/internal/logger"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/services/dashboard"
	"helpdesk/internal/services/tickets"
	"helpdesk/internal/storage"
	"helpdesk/internal/ticketkey"
)

func main() {
	_ = godotenv.Load()
	lg := logger.New()
	defer lg.Sync()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		lg.Fatalw("DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(
		&models.Company{}, &models.Permission{}, &models.Role{}, &models.User{},
		&models.Ticket{}, &models.TicketComment{}, &models.TicketAttachment{},
		&models.TicketHistory{}, &models.Session{},
	); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}
	seedPermissionsAndRoles(db, lg)
	seedDefaultAdmin(db, lg)

	files, err := storage.NewLocalStore(os.Getenv("UPLOAD_DIR"))
	if err != nil {
		lg.Fatalw("storage init failed", "error", err)
	}
	dispatch := notify.NewFromEnv(lg)
	ticketSvc := tickets.NewService(db, lg, ticketkey.NewLockingAllocator(lg), files, dispatch)
	dashSvc := dashboard.NewService(db, lg)

	router := httpserver.NewRouter(db, lg, ticketSvc, dashSvc, files)
	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	lg.Infow("listening", "port", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}

// permissionCatalog is every grant the route table checks. Seeding is
// idempotent: reruns add missing rows and never touch existing grants.
var permissionCatalog = []string{
	"dashboard.view",
	"tickets.view", "tickets.create", "tickets.edit", "tickets.delete",
	"users.view", "users.create", "users.edit", "users.delete",
	"roles.view", "roles.create", "roles.edit", "roles.delete",
	"companies.view", "companies.create", "companies.edit", "companies.delete",
	"reports.view",
}

// roleSeeds are the built-in roles. "User" is the reporter role: its holders
// only ever see tickets they submitted.
var roleSeeds = []struct {
	name        string
	assignable  bool
	notifyNew   bool
	notifyOwn   bool
	permissions []string
}{
	{
		name:        "Admin",
		assignable:  true,
		notifyOwn:   true,
		permissions: permissionCatalog,
	},
	{
		name:       "Tech Support",
		assignable: true,
		notifyNew:  true,
		notifyOwn:  true,
		permissions: []string{
			"dashboard.view",
			"tickets.view", "tickets.create", "tickets.edit", "tickets.delete",
			"reports.view",
		},
	},
	{
		name:        "User",
		permissions: []string{"dashboard.view", "tickets.view", "tickets.create"},
	},
}

func seedPermissionsAndRoles(db *gorm.DB, lg *zap.SugaredLogger) {
	for _, name := range permissionCatalog {
		if err := db.Where(models.Permission{Name: name}).FirstOrCreate(&models.Permission{Name: name}).Error; err != nil {
			lg.Fatalw("permission seed failed", "permission", name, "error", err)
		}
	}
	for _, seed := range roleSeeds {
		role := models.Role{
			Name:                 seed.name,
			IsAssignable:         seed.assignable,
			NotifyOnTicketCreate: seed.notifyNew,
			NotifyOnTicketAssign: seed.notifyOwn,
		}
		if err := db.Where(models.Role{Name: seed.name}).FirstOrCreate(&role).Error; err != nil {
			lg.Fatalw("role seed failed", "role", seed.name, "error", err)
		}
		var perms []models.Permission
		if err := db.Where("name IN ?", seed.permissions).Find(&perms).Error; err != nil {
			lg.Fatalw("role permission lookup failed", "role", seed.name, "error", err)
		}
		if err := db.Model(&role).Association("Permissions").Replace(perms); err != nil {
			lg.Fatalw("role permission grant failed", "role", seed.name, "error", err)
		}
	}
	lg.Infow("seeded permissions and roles", "permissions", len(permissionCatalog), "roles", len(roleSeeds))
}

func seedDefaultAdmin(db *gorm.DB, lg *zap.SugaredLogger) {
	email := strings.ToLower(os.Getenv("ADMIN_EMAIL"))
	if email == "" {
		email = "admin@helpdesk.local"
	}
	var count int64
	db.Model(&models.User{}).Where("LOWER(email) = ?", email).Count(&count)
	if count > 0 {
		return
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "changeme123"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		lg.Fatalw("admin password hash failed", "error", err)
	}
	u := models.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(&u).Error; err != nil {
		lg.Errorw("admin seed failed", "error", err)
		return
	}
	var adminRole models.Role
	if err := db.First(&adminRole, "name = ?", "Admin").Error; err == nil {
		_ = db.Model(&u).Association("Roles").Append(&adminRole)
	}
	lg.Infow("seeded default admin", "email", email)
}
