package helper

import "qlink/internal/models"

func HasRole(role string, allowedRoles ...string) bool {
	for _, allowedRole := range allowedRoles {
		if role == allowedRole {
			return true
		}
	}
	return false
}

// LoginRedirect is the landing page for each role after sign-in.
func LoginRedirect(role string) string {
	switch role {
	case models.RoleAdmin:
		return "admin/"
	case models.RoleStaff:
		return "staff/"
	default:
		return "dashboard.php"
	}
}
