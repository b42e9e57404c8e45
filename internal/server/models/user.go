package models

// User is the slice of the portal's users table the QR login flow reads.
type User struct {
	ID       string
	UserName string
	FullName string
	Role     string
	Status   string
}
