package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the session
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// SessionCookieName is the cookie set by the browser QR login endpoint.
const SessionCookieName = "qr_session"

// Owner roles and statuses as stored in the users table.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"

	StatusActive = "active"
)
