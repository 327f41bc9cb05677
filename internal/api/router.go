package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Registration and login (no auth required)
		r.Post("/users", s.handleRegister)
		r.Post("/auth", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Delete("/auth", s.handleLogout)

			// User-token routes
			r.Group(func(r chi.Router) {
				r.Use(s.requireUser)

				r.Get("/users", s.handleListUsers)
				r.Get("/users/roles", s.handleListRoles)
				r.Post("/users/invites/wave", s.handleInviteWave)

				r.Route("/user", func(r chi.Router) {
					r.Get("/", s.handleMe)
					r.Patch("/", s.handleChangePassword)
					r.Get("/role", s.handleMyRole)
					r.Get("/invites", s.handleListInvites)
					r.Post("/invites", s.handleIssueInvite)
					r.Get("/keys", s.handleListKeys)
					r.Post("/keys", s.handleAddKey)
					r.Delete("/keys/{keyID}", s.handleDeleteKey)
					r.Get("/spaces", s.handleMySpaces)

					r.Route("/{userID}", func(r chi.Router) {
						r.Get("/", s.handleGetUser)
						r.Delete("/", s.handleDeleteUser)
						r.Get("/role", s.handleGetRole)
						r.Put("/role", s.handlePromote)
						r.Post("/password", s.handleResetPassword)
						r.Get("/spaces", s.handleUserSpaces)
					})
				})

				r.Route("/spaces", func(r chi.Router) {
					r.Post("/", s.handleCreateSpace)

					r.Route("/{spaceID}", func(r chi.Router) {
						r.Get("/", s.handleGetSpace)
						r.Patch("/", s.handleRenameSpace)
						r.Delete("/", s.handleDeleteSpace)
						r.Get("/logs", s.handleSpaceLogs)
						r.Get("/services", s.handleSpaceServices)

						r.Route("/accounts", func(r chi.Router) {
							r.Get("/", s.handleListAccounts)

							r.Route("/{platformID}", func(r chi.Router) {
								r.Get("/", s.handleGetAccount)
								r.Put("/", s.handleUpsertAccount)
								r.Delete("/", s.handleDeleteAccount)
								r.Get("/items", s.handleAccountItems)
							})
						})

						r.Route("/items", func(r chi.Router) {
							r.Get("/", s.handleListItems)
							r.Post("/", s.handleCreateItem)

							r.Route("/{itemID}", func(r chi.Router) {
								r.Get("/", s.handleGetItem)
								r.Patch("/", s.handleRenameItem)
								r.Put("/owner", s.handleReassignItem)
								r.Delete("/", s.handleDeleteItem)
							})
						})
					})
				})

				r.Route("/services", func(r chi.Router) {
					r.Get("/", s.handleListGlobalServices)
					r.Post("/", s.handleCreateService)

					r.Route("/{serviceID}", func(r chi.Router) {
						r.Get("/", s.handleGetService)
						r.Delete("/", s.handleDeleteService)
						r.Post("/tokens", s.handleIssueServiceToken)
						r.Get("/tokens", s.handleCountServiceTokens)
						r.Delete("/tokens", s.handleRevokeServiceTokens)
					})
				})
			})

			// Service-token routes
			r.Route("/service", func(r chi.Router) {
				r.Use(s.requireService)

				r.Post("/ssh/keys", s.handleSSHKeyLookup)
				r.Post("/report", s.handleServiceReport)
				r.Get("/logs", s.handleServiceLogs)
			})
		})
	})

	return r
}
