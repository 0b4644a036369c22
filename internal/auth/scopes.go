package auth

// Known OAuth scopes used by the booking service.
const (
	ScopeBookingsWrite = "bookings:write"
	ScopeBookingsRead  = "bookings:read"
)
