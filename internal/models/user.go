package models

const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
)

// User struct matches the document in MongoDB
type User struct {
	Email      string `bson:"email" json:"email"`
	Name       string `bson:"name" json:"name"`
	Password   string `bson:"password" json:"-"`
	Role       string `bson:"role" json:"role"`
	HospitalID string `bson:"hospital_id" json:"hospital_id"`
	Status     string `bson:"status" json:"status"`
}
