package models

import "testing"

func TestIsValidStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusPending, true},
		{StatusProcessing, true},
		{StatusApproved, true},
		{StatusRejected, true},
		{StatusCompleted, true},
		{"cancelled", false},
		{"Pending", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := IsValidStatus(tt.status); got != tt.want {
				t.Errorf("IsValidStatus(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestIsValidPriority(t *testing.T) {
	tests := []struct {
		priority string
		want     bool
	}{
		{PriorityLow, true},
		{PriorityNormal, true},
		{PriorityHigh, true},
		{PriorityUrgent, true},
		{"critical", false},
		{"URGENT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.priority, func(t *testing.T) {
			if got := IsValidPriority(tt.priority); got != tt.want {
				t.Errorf("IsValidPriority(%q) = %v, want %v", tt.priority, got, tt.want)
			}
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusApproved, true},
		{StatusCompleted, true},
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := IsTerminalStatus(tt.status); got != tt.want {
				t.Errorf("IsTerminalStatus(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClientHelpers(t *testing.T) {
	t.Run("full name", func(t *testing.T) {
		c := &Client{FirstName: "Gulnar", LastName: "Osman"}
		if got := c.FullName(); got != "Gulnar Osman" {
			t.Errorf("FullName() = %q, want %q", got, "Gulnar Osman")
		}
	})

	t.Run("portal account detection", func(t *testing.T) {
		c := &Client{}
		if c.HasPortalAccount() {
			t.Error("HasPortalAccount() = true with nil hash")
		}
		empty := ""
		c.PasswordHash = &empty
		if c.HasPortalAccount() {
			t.Error("HasPortalAccount() = true with empty hash")
		}
		hash := "$2a$10$abcdefgh"
		c.PasswordHash = &hash
		if !c.HasPortalAccount() {
			t.Error("HasPortalAccount() = false with hash set")
		}
	})

	t.Run("public view hides everything but name and email", func(t *testing.T) {
		phone := "+86-991-555-0101"
		c := &Client{FirstName: "Gulnar", LastName: "Osman", Email: "gulnar@example.com", Phone: &phone}
		pub := c.Public()
		if pub.FirstName != "Gulnar" || pub.LastName != "Osman" || pub.Email != "gulnar@example.com" {
			t.Errorf("Public() = %+v, want name and email only", pub)
		}
	})
}

func TestPredefinedRoles(t *testing.T) {
	roles := PredefinedRoles()
	if len(roles) != 4 {
		t.Fatalf("PredefinedRoles() len = %d, want 4", len(roles))
	}

	byName := make(map[string]Role)
	for _, r := range roles {
		if !r.IsSystem {
			t.Errorf("role %q is not marked as system", r.Name)
		}
		if len(r.Permissions) == 0 {
			t.Errorf("role %q has no permissions", r.Name)
		}
		byName[r.Name] = r
	}

	for _, want := range []string{"admin", "operations_manager", "front_desk", "auditor"} {
		if _, ok := byName[want]; !ok {
			t.Errorf("PredefinedRoles() missing role %q", want)
		}
	}

	if byName["admin"].Permissions[0] != "admin" {
		t.Errorf("admin role permissions = %v, want [admin]", byName["admin"].Permissions)
	}

	// Only the auditor role may browse the audit log
	for name, r := range byName {
		hasAudit := false
		for _, p := range r.Permissions {
			if p == "system.audit" {
				hasAudit = true
			}
		}
		if name == "auditor" && !hasAudit {
			t.Error("auditor role missing system.audit")
		}
		if name == "front_desk" && hasAudit {
			t.Error("front_desk role should not have system.audit")
		}
	}
}
