package domain

// Roles resolved by the auth layer. The lifecycle engine receives the role
// explicitly; only admins and suppliers may drive order transitions.
const (
	RoleAdmin    = "admin"
	RoleSupplier = "supplier"
	RoleCustomer = "customer"
)

type User struct {
	ID        int64  `json:"id" db:"id"`
	Username  string `json:"username" db:"username"`
	Email     string `json:"email" db:"email"`
	Password  string `json:"password,omitempty" db:"password"`
	Role      string `json:"role" db:"role"`
	CreatedAt string `json:"created_at,omitempty" db:"created_at"`
}
