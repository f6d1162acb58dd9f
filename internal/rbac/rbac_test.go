package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEdit, allow: false},
		{name: "company rep edit", role: RoleCompanyRep, action: ActionEdit, allow: true},
		{name: "company rep review", role: RoleCompanyRep, action: ActionReview, allow: false},
		{name: "reviewer review", role: RoleReviewer, action: ActionReview, allow: true},
		{name: "reviewer admin", role: RoleReviewer, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCanEditProduct(t *testing.T) {
	cases := []struct {
		name    string
		subject Subject
		company string
		allow   bool
	}{
		{name: "admin any company", subject: Subject{Role: RoleAdmin}, company: "Acme RT", allow: true},
		{name: "reviewer any company", subject: Subject{Role: RoleReviewer}, company: "Acme RT", allow: true},
		{name: "verified rep own company", subject: Subject{Role: RoleCompanyRep, Company: "acme rt", Verified: true}, company: "Acme RT", allow: true},
		{name: "verified rep other company", subject: Subject{Role: RoleCompanyRep, Company: "Other", Verified: true}, company: "Acme RT", allow: false},
		{name: "unverified rep", subject: Subject{Role: RoleCompanyRep, Company: "Acme RT"}, company: "Acme RT", allow: false},
		{name: "viewer", subject: Subject{Role: RoleViewer}, company: "Acme RT", allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanEditProduct(tc.subject, tc.company); got != tc.allow {
				t.Fatalf("CanEditProduct(%+v, %q) = %v, want %v", tc.subject, tc.company, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("company_rep") != RoleCompanyRep {
		t.Fatal("expected company_rep to be kept")
	}
	if Normalize("superuser") != RoleViewer {
		t.Fatal("expected unknown roles to fall back to viewer")
	}
}
