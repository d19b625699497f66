package server

import (
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-firm-dashboard/users"
	"github.com/rs/zerolog/log"
)

const adminUsersPageSize = 50

// AdminPageData is shared by the admin layout
type AdminPageData struct {
	AppName       string
	UserName      string
	Role          string
	IsAdmin       bool
	ActivePage    string
	IdleTimeoutMs int64
	WarningLeadMs int64
	SocketPath    string
	StatusPath    string
	ExtendPath    string
	LogoutPath    string

	Users  []*users.User
	Offset int
	Next   int
}

// IndexHandler sends visitors to the dashboard, which redirects to login if needed
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteAdminDashboard, http.StatusSeeOther)
	}
}

func (s *Server) adminPageData(r *http.Request, activePage string) (AdminPageData, bool) {
	session, ok := loginSessionFromContext(r.Context())
	if !ok {
		return AdminPageData{}, false
	}
	return AdminPageData{
		AppName:       s.config.GetAppName(),
		UserName:      session.Name,
		Role:          session.Role,
		IsAdmin:       users.Role(session.Role).AtLeast(users.RoleAdmin),
		ActivePage:    activePage,
		IdleTimeoutMs: s.config.GetIdleTimeout().Milliseconds(),
		WarningLeadMs: s.config.GetWarningLead().Milliseconds(),
		SocketPath:    RouteSessionActivity,
		StatusPath:    RouteSessionStatus,
		ExtendPath:    RouteSessionExtend,
		LogoutPath:    RouteAuthLogout,
	}, true
}

// AdminDashboardHandler renders the admin dashboard
func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("admin_layout.html", "admin_dashboard.html")
	if err != nil {
		panic("Failed to parse admin dashboard template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, ok := s.adminPageData(r, "dashboard")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
			log.Err(err).Msg("Failed to render dashboard")
		}
	}
}

// AdminUsersListHandler lists dashboard accounts
func (s *Server) AdminUsersListHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("admin_layout.html", "admin_users.html")
	if err != nil {
		panic("Failed to parse admin users template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, ok := s.adminPageData(r, "users")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset < 0 {
			offset = 0
		}
		list, err := s.repos.Users.List(r.Context(), offset, adminUsersPageSize)
		if err != nil {
			log.Err(err).Msg("Failed to list users")
			http.Error(w, "Failed to list users", http.StatusInternalServerError)
			return
		}
		data.Users = list
		data.Offset = offset
		if len(list) == adminUsersPageSize {
			data.Next = offset + adminUsersPageSize
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
			log.Err(err).Msg("Failed to render users page")
		}
	}
}
