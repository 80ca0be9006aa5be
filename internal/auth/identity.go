package auth

import (
	"github.com/google/uuid"

	"github.com/aura-attendance/backend/internal/models"
)

// OwnerIdentity is the identity of an organization's own account. It holds the admin role.
func OwnerIdentity(org *models.Organization) Identity {
	return Identity{
		OrganizationID: org.ID,
		Partition:      org.PartitionID,
		SubjectID:      org.ID,
		Email:          org.Email,
		Role:           models.RoleAdmin,
	}
}

// MemberIdentity is the identity of a member acting inside orgID's partition.
func MemberIdentity(orgID uuid.UUID, partition string, m *models.Member) Identity {
	return Identity{
		OrganizationID: orgID,
		Partition:      partition,
		SubjectID:      m.ID,
		Email:          m.Email,
		Role:           m.Role,
	}
}
