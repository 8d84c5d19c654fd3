package engine

import (
	"strings"

	"kitloop-backend/internal/metadata"
)

// RuleSource resolves the upload rule for a use case. *metadata.Registry
// satisfies it.
type RuleSource interface {
	GetUploadRule(useCase string) *metadata.UploadRule
}

// ValidateUploadRequest decides whether a proposed upload may proceed. Checks
// run in a fixed order and only the first failure is reported.
func ValidateUploadRequest(rules RuleSource, req metadata.UploadRequest) metadata.ValidationResult {
	var rule *metadata.UploadRule
	if rules != nil {
		rule = rules.GetUploadRule(req.UseCase)
	}
	if rule == nil {
		return metadata.Reject(metadata.ReasonUnknownUseCase)
	}

	checks := []func(*metadata.UploadRule, metadata.UploadRequest) metadata.ReasonCode{
		checkMime,
		checkSize,
		checkPath,
		checkBucket,
		checkDenyWhen,
	}
	for _, check := range checks {
		if reason := check(rule, req); reason != "" {
			return metadata.Reject(reason)
		}
	}
	return metadata.Admit()
}

func checkMime(rule *metadata.UploadRule, req metadata.UploadRequest) metadata.ReasonCode {
	if !rule.AllowsMime(metadata.NormalizeMime(req.MimeType)) {
		return metadata.ReasonMimeNotAllowed
	}
	return ""
}

// checkSize treats the ceiling as inclusive.
func checkSize(rule *metadata.UploadRule, req metadata.UploadRequest) metadata.ReasonCode {
	if req.SizeBytes < 0 {
		return metadata.ReasonInvalidSize
	}
	if req.SizeBytes > rule.MaxSizeBytes {
		return metadata.ReasonFileTooLarge
	}
	return ""
}

// checkPath keeps callers inside their own namespace. An empty prefix matches
// every path and is rejected, as is any ".." segment.
func checkPath(_ *metadata.UploadRule, req metadata.UploadRequest) metadata.ReasonCode {
	if req.ExpectedPrefix == "" {
		return metadata.ReasonPathNotAllowed
	}
	if !strings.HasPrefix(req.Path, req.ExpectedPrefix) {
		return metadata.ReasonPathNotAllowed
	}
	for _, seg := range strings.Split(req.Path, "/") {
		if seg == ".." {
			return metadata.ReasonPathNotAllowed
		}
	}
	return ""
}

func checkBucket(rule *metadata.UploadRule, req metadata.UploadRequest) metadata.ReasonCode {
	if !rule.AllowsBucket(req.Bucket) {
		return metadata.ReasonBucketNotAllowed
	}
	return ""
}

func checkDenyWhen(rule *metadata.UploadRule, req metadata.UploadRequest) metadata.ReasonCode {
	if rule.DenyWhen == "" {
		return ""
	}
	if EvaluateDenyWhen(rule, req) {
		return metadata.ReasonRuleViolated
	}
	return ""
}
