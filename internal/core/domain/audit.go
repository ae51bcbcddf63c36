package domain

import "time"

// AuditLog records an administrative action performed by a tenant.
type AuditLog struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Action       string    `json:"action"`        // e.g., "GENERATE_LICENSE", "RESET_HARDWARE"
	ResourceType string    `json:"resource_type"` // e.g., "APPLICATION", "LICENSE"
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	AuditCreateApplication = "CREATE_APPLICATION"
	AuditGenerateLicense   = "GENERATE_LICENSE"
	AuditBan               = "BAN"
	AuditResetHardware     = "RESET_HARDWARE"

	ResourceApplication = "APPLICATION"
	ResourceLicense     = "LICENSE"
	ResourceBan         = "BAN"
)
