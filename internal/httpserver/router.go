package httpserver

import (
	"net/http"

	"helpdesk/internal/auth"
	"helpdesk/internal/httpserver/handlers"
	"helpdesk/internal/services/dashboard"
	"helpdesk/internal/services/tickets"
	"helpdesk/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, lg *zap.SugaredLogger, ticketSvc *tickets.Service, dashSvc *dashboard.Service, files storage.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	r.Post("/v1/auth/login", handlers.Login(db, lg))
	r.Group(func(protected chi.Router) {
		protected.Use(auth.JWTAuth(db))
		protected.Post("/v1/auth/logout", handlers.Logout(db))
		protected.Post("/v1/auth/password", handlers.ChangePassword(db, lg))
		protected.Get("/v1/me", handlers.Me(db, lg))
		protected.Get("/v1/profile", handlers.GetProfile(db, lg))
		protected.Patch("/v1/profile", handlers.UpdateProfile(db, lg, files))
		protected.Get("/v1/profile/photo", handlers.GetProfilePhoto(db, lg, files))

		protected.With(auth.RequirePermission(db, "dashboard.view")).
			Get("/v1/dashboard", handlers.GetDashboard(db, lg, dashSvc))

		protected.Group(func(t chi.Router) {
			view := auth.RequirePermission(db, "tickets.view")
			t.With(view).Get("/v1/tickets", handlers.ListTickets(db, lg, ticketSvc))
			t.With(view).Get("/v1/tickets/{id}", handlers.GetTicket(db, lg, ticketSvc))
			t.With(view).Get("/v1/tickets/staff", handlers.ListStaff(db, lg, ticketSvc))
			t.With(view).Get("/v1/attachments/{attachmentId}/download", handlers.DownloadAttachment(db, lg, ticketSvc, files))
			t.With(auth.RequirePermission(db, "tickets.create")).
				Post("/v1/tickets", handlers.CreateTicket(db, lg, ticketSvc))
			edit := auth.RequirePermission(db, "tickets.edit")
			t.With(edit).Patch("/v1/tickets/{id}", handlers.UpdateTicket(db, lg, ticketSvc))
			t.With(edit).Post("/v1/tickets/{id}/attachments", handlers.StoreTicketAttachment(db, lg, ticketSvc))
			// Commenting rides on view access: reporters follow up on their
			// own tickets without holding edit rights.
			t.With(view).Post("/v1/tickets/{id}/comments", handlers.StoreTicketComment(db, lg, ticketSvc))
			t.With(auth.RequirePermission(db, "tickets.delete")).
				Delete("/v1/tickets/{id}", handlers.DeleteTicket(db, lg, ticketSvc))
		})

		protected.Group(func(u chi.Router) {
			u.With(auth.RequirePermission(db, "users.view")).Get("/v1/users", handlers.ListUsers(db, lg))
			u.With(auth.RequirePermission(db, "users.view")).Get("/v1/users/{id}", handlers.GetUser(db, lg))
			u.With(auth.RequirePermission(db, "users.create")).Post("/v1/users", handlers.CreateUser(db, lg))
			u.With(auth.RequirePermission(db, "users.edit")).Patch("/v1/users/{id}", handlers.UpdateUser(db, lg))
			u.With(auth.RequirePermission(db, "users.edit")).Post("/v1/users/{id}/reset-password", handlers.ResetUserPassword(db, lg))
			u.With(auth.RequirePermission(db, "users.delete")).Delete("/v1/users/{id}", handlers.DeleteUser(db, lg))
		})

		protected.Group(func(ro chi.Router) {
			ro.With(auth.RequirePermission(db, "roles.view")).Get("/v1/roles", handlers.ListRoles(db, lg))
			ro.With(auth.RequirePermission(db, "roles.view")).Get("/v1/permissions", handlers.ListPermissions(db, lg))
			ro.With(auth.RequirePermission(db, "roles.create")).Post("/v1/roles", handlers.CreateRole(db, lg))
			ro.With(auth.RequirePermission(db, "roles.edit")).Patch("/v1/roles/{id}", handlers.UpdateRole(db, lg))
			ro.With(auth.RequirePermission(db, "roles.delete")).Delete("/v1/roles/{id}", handlers.DeleteRole(db, lg))
		})

		protected.Group(func(c chi.Router) {
			c.With(auth.RequirePermission(db, "companies.view")).Get("/v1/companies", handlers.ListCompanies(db, lg))
			c.With(auth.RequirePermission(db, "companies.create")).Post("/v1/companies", handlers.CreateCompany(db, lg))
			c.With(auth.RequirePermission(db, "companies.edit")).Patch("/v1/companies/{id}", handlers.UpdateCompany(db, lg))
			c.With(auth.RequirePermission(db, "companies.delete")).Delete("/v1/companies/{id}", handlers.DeleteCompany(db, lg))
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
