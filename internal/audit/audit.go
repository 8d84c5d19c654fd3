package audit

import (
	"time"

	"kitloop-backend/internal/metadata"
)

const (
	KindPermission = "permission"
	KindUpload     = "upload"
)

// Decision is one audited authorization or admission outcome.
type Decision struct {
	Kind      string
	UserID    string
	Role      string
	Subject   string // action for permissions, use case for uploads
	Target    string // resource for permissions, bucket/path for uploads
	Allowed   bool
	Reason    string
	CreatedAt time.Time
}

// Recorder receives decisions after they are made. Implementations must not
// block the caller.
type Recorder interface {
	Record(d Decision)
}

// NoopRecorder discards all decisions. Used when auditing is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(Decision) {}

// PermissionDecision builds the audit record for a permission check.
func PermissionDecision(user *metadata.UserContext, action metadata.Action, resource metadata.Resource, allowed bool) Decision {
	d := Decision{
		Kind:      KindPermission,
		Subject:   string(action),
		Target:    string(resource),
		Allowed:   allowed,
		CreatedAt: time.Now(),
	}
	if user != nil {
		d.UserID = user.ID
		d.Role = string(user.Role)
	}
	if !allowed {
		d.Reason = "denied"
	}
	return d
}

// UploadDecision builds the audit record for an upload admission check.
func UploadDecision(user *metadata.UserContext, req metadata.UploadRequest, result metadata.ValidationResult) Decision {
	d := Decision{
		Kind:      KindUpload,
		Subject:   req.UseCase,
		Target:    req.Bucket + "/" + req.Path,
		Allowed:   result.OK,
		Reason:    string(result.ReasonCode),
		CreatedAt: time.Now(),
	}
	if user != nil {
		d.UserID = user.ID
		d.Role = string(user.Role)
	}
	return d
}
