package rbac

import "strings"

type Role string
type Action string

const (
	RoleViewer     Role = "viewer"
	RoleCompanyRep Role = "company_rep"
	RoleReviewer   Role = "reviewer"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionEdit   Action = "edit"
	ActionReview Action = "review"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return action == ActionRead || action == ActionEdit || action == ActionReview
	case RoleCompanyRep:
		return action == ActionRead || action == ActionEdit
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleCompanyRep, RoleReviewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Subject is who is asking to edit.
type Subject struct {
	Role     Role
	Company  string
	Verified bool
}

// CanEditProduct is the edit capability check. Company representatives
// must be verified and may only edit their own company's products.
func CanEditProduct(subject Subject, productCompany string) bool {
	if !Can(subject.Role, ActionEdit) {
		return false
	}
	if subject.Role != RoleCompanyRep {
		return true
	}
	if !subject.Verified || strings.TrimSpace(subject.Company) == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(subject.Company), strings.TrimSpace(productCompany))
}
