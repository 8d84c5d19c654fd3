package metadata

import "strings"

// ReasonCode is a stable machine-readable identifier for why an upload was rejected.
type ReasonCode string

const (
	ReasonUnknownUseCase   ReasonCode = "unknown_use_case"
	ReasonMimeNotAllowed   ReasonCode = "mime_not_allowed"
	ReasonInvalidSize      ReasonCode = "invalid_size"
	ReasonFileTooLarge     ReasonCode = "file_too_large"
	ReasonPathNotAllowed   ReasonCode = "path_not_allowed"
	ReasonBucketNotAllowed ReasonCode = "bucket_not_allowed"
	ReasonRuleViolated     ReasonCode = "rule_violated"
)

// UploadRequest describes a proposed upload before any bytes hit storage.
type UploadRequest struct {
	UseCase        string `json:"use_case"`
	MimeType       string `json:"mime_type"`
	SizeBytes      int64  `json:"size_bytes"`
	Path           string `json:"path"`
	ExpectedPrefix string `json:"expected_prefix"`
	Bucket         string `json:"bucket"`
}

// ValidationResult is the binary admission outcome. ReasonCode is only set
// when OK is false.
type ValidationResult struct {
	OK         bool       `json:"ok"`
	ReasonCode ReasonCode `json:"reason_code,omitempty"`
}

// Admit is the accepting result.
func Admit() ValidationResult {
	return ValidationResult{OK: true}
}

// Reject returns a rejecting result carrying the given reason.
func Reject(reason ReasonCode) ValidationResult {
	return ValidationResult{OK: false, ReasonCode: reason}
}

// UploadRule is the admission policy for a single use case.
type UploadRule struct {
	UseCase          string   `json:"use_case"`
	AllowedMimeTypes []string `json:"allowed_mime_types"`
	MaxSizeBytes     int64    `json:"max_size_bytes"`
	Buckets          []string `json:"buckets,omitempty"`
	Folder           string   `json:"folder,omitempty"`
	DenyWhen         string   `json:"deny_when,omitempty"`
	Compiled         any      `json:"-"` // cached compiled deny_when program

	mimeSet map[string]bool
}

// AllowsMime reports whether the normalized MIME type is on the allow-list.
func (r *UploadRule) AllowsMime(mimeType string) bool {
	if r.mimeSet == nil {
		for _, m := range r.AllowedMimeTypes {
			if NormalizeMime(m) == mimeType {
				return true
			}
		}
		return false
	}
	return r.mimeSet[mimeType]
}

// AllowsBucket reports whether the rule admits the bucket. An empty bucket
// list admits any bucket.
func (r *UploadRule) AllowsBucket(bucket string) bool {
	if len(r.Buckets) == 0 {
		return true
	}
	for _, b := range r.Buckets {
		if b == bucket {
			return true
		}
	}
	return false
}

// PrefixFor returns the storage prefix a provider may write under for this use case.
func (r *UploadRule) PrefixFor(providerID string) string {
	if providerID == "" {
		return ""
	}
	if r.Folder == "" {
		return providerID + "/"
	}
	return providerID + "/" + strings.Trim(r.Folder, "/") + "/"
}

func (r *UploadRule) index() {
	r.mimeSet = make(map[string]bool, len(r.AllowedMimeTypes))
	for _, m := range r.AllowedMimeTypes {
		r.mimeSet[NormalizeMime(m)] = true
	}
}

// NormalizeMime lowercases a media type and strips any parameters, so
// "Image/PNG; charset=binary" compares equal to "image/png".
func NormalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}
