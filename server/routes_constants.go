package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteLogin      = "/login"
	RouteAuthLogin  = "/auth/login"
	RouteOIDCStart  = "/auth/oidc/start"
	RouteAuthLogout = "/auth/logout"
	RouteCallback   = "/callback"

	// Admin Routes
	RouteAdminDashboard = "/admin/dashboard"
	RouteAdminUsers     = "/admin/users"

	// Session Activity Routes
	RouteSessionActivity = "/admin/session/activity"
	RouteSessionStatus   = "/admin/session/status"
	RouteSessionExtend   = "/admin/session/extend"

	// Health
	RouteHealth = "/healthz"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
	RouteStaticJS  = "/js/{file}"
)

// Where the browser lands after an idle sign-out
const sessionExpiredLocation = RouteLogin + "?error=Session+expired"
