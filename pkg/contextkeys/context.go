package contextkeys

// Typed key so values set by this module never collide with other packages.
type contextKey string

const (
	// DBContextKey holds the *gorm.DB (pool or request transaction).
	DBContextKey = contextKey("db")

	// Principal fields set by the auth middleware.
	UserIDKey  = contextKey("userID")
	RoleKey    = contextKey("role")
	IsStaffKey = contextKey("isStaff")
)
