// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/codestreak/internal/app/store/audit"
)

// listItem is one audit event as returned to the client.
type listItem struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	UserID        string            `json:"user_id,omitempty"`
	UserName      string            `json:"user_name,omitempty"` // resolved from UserID
	ActorID       string            `json:"actor_id,omitempty"`
	ActorName     string            `json:"actor_name,omitempty"` // resolved from ActorID
	IP            string            `json:"ip,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

type listResponse struct {
	Items []listItem `json:"items"`
	Total int64      `json:"total"`
	Limit int64      `json:"limit"`
	Skip  int64      `json:"skip"`
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	authEvents := []string{
		audit.EventRegisterSuccess,
		audit.EventRegisterFailedDuplicate,
		audit.EventLoginSuccess,
		audit.EventLoginFailedUserNotFound,
		audit.EventLoginFailedWrongPassword,
		audit.EventSocialLoginSuccess,
		audit.EventSocialLoginFailed,
		audit.EventSocialUserProvisioned,
		audit.EventSocialAccountLinked,
		audit.EventLogout,
	}

	adminEvents := []string{
		audit.EventPermissionsChanged,
		audit.EventAdminBootstrapped,
	}

	switch category {
	case audit.CategoryAuth:
		return authEvents
	case audit.CategoryAdmin:
		return adminEvents
	case "":
		all := make([]string, 0, len(authEvents)+len(adminEvents))
		all = append(all, authEvents...)
		all = append(all, adminEvents...)
		return all
	default:
		return nil
	}
}

func knownEventType(category, eventType string) bool {
	for _, t := range eventTypesForCategory(category) {
		if t == eventType {
			return true
		}
	}
	return false
}
