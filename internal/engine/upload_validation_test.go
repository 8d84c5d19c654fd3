package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitloop-backend/internal/config"
	"kitloop-backend/internal/metadata"
)

const mib = config.MiB

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	err := metadata.LoadUploadRules(map[string]config.UploadRuleConfig{
		"gear_image": {
			AllowedMimeTypes: []string{"image/jpeg", "image/png", "image/webp"},
			MaxSizeBytes:     5 * mib,
			Folder:           "gear",
		},
		"rental_document": {
			AllowedMimeTypes: []string{"application/pdf"},
			MaxSizeBytes:     10 * mib,
			Buckets:          []string{"documents"},
			Folder:           "documents",
			DenyWhen:         `size_bytes < 100 || path endsWith ".exe"`,
		},
	}, reg)
	require.NoError(t, err)
	return reg
}

func gearRequest() metadata.UploadRequest {
	return metadata.UploadRequest{
		UseCase:        "gear_image",
		MimeType:       "image/png",
		SizeBytes:      1 * mib,
		Path:           "provider123/gear/tent.png",
		ExpectedPrefix: "provider123/gear/",
		Bucket:         "gear-images",
	}
}

// ruleMap is a RuleSource over hand-built rules that never went through the
// registry's indexing.
type ruleMap map[string]*metadata.UploadRule

func (m ruleMap) GetUploadRule(useCase string) *metadata.UploadRule { return m[useCase] }

func TestValidateUploadRequest_Accepts(t *testing.T) {
	result := ValidateUploadRequest(testRegistry(t), gearRequest())
	assert.True(t, result.OK)
	assert.Empty(t, result.ReasonCode)
}

func TestValidateUploadRequest_Rejections(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name   string
		mutate func(*metadata.UploadRequest)
		want   metadata.ReasonCode
	}{
		{"pdf for gear image", func(r *metadata.UploadRequest) { r.MimeType = "application/pdf" }, metadata.ReasonMimeNotAllowed},
		{"empty mime", func(r *metadata.UploadRequest) { r.MimeType = "" }, metadata.ReasonMimeNotAllowed},
		{"over ceiling", func(r *metadata.UploadRequest) { r.SizeBytes = 10 * mib }, metadata.ReasonFileTooLarge},
		{"one byte over ceiling", func(r *metadata.UploadRequest) { r.SizeBytes = 5*mib + 1 }, metadata.ReasonFileTooLarge},
		{"negative size", func(r *metadata.UploadRequest) { r.SizeBytes = -1 }, metadata.ReasonInvalidSize},
		{"other provider", func(r *metadata.UploadRequest) { r.Path = "other-provider/gear/example.png" }, metadata.ReasonPathNotAllowed},
		{"parent segment", func(r *metadata.UploadRequest) { r.Path = "provider123/gear/../../other/gear/x.png" }, metadata.ReasonPathNotAllowed},
		{"empty prefix", func(r *metadata.UploadRequest) { r.ExpectedPrefix = "" }, metadata.ReasonPathNotAllowed},
		{"unknown use case", func(r *metadata.UploadRequest) { r.UseCase = "firmware" }, metadata.ReasonUnknownUseCase},
		{"wrong mime and too large", func(r *metadata.UploadRequest) {
			r.MimeType = "application/pdf"
			r.SizeBytes = 50 * mib
		}, metadata.ReasonMimeNotAllowed},
		{"too large and wrong path", func(r *metadata.UploadRequest) {
			r.SizeBytes = 50 * mib
			r.Path = "other-provider/gear/x.png"
		}, metadata.ReasonFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := gearRequest()
			tt.mutate(&req)
			result := ValidateUploadRequest(reg, req)
			assert.False(t, result.OK)
			assert.Equal(t, tt.want, result.ReasonCode)
		})
	}
}

func TestValidateUploadRequest_CeilingIsInclusive(t *testing.T) {
	req := gearRequest()
	req.SizeBytes = 5 * mib
	assert.True(t, ValidateUploadRequest(testRegistry(t), req).OK)

	req.SizeBytes = 0
	assert.True(t, ValidateUploadRequest(testRegistry(t), req).OK)
}

func TestValidateUploadRequest_MimeIsNormalized(t *testing.T) {
	req := gearRequest()
	req.MimeType = "Image/PNG; charset=binary"
	assert.True(t, ValidateUploadRequest(testRegistry(t), req).OK)
}

func TestValidateUploadRequest_Bucket(t *testing.T) {
	reg := testRegistry(t)
	req := metadata.UploadRequest{
		UseCase:        "rental_document",
		MimeType:       "application/pdf",
		SizeBytes:      2 * mib,
		Path:           "provider123/documents/contract.pdf",
		ExpectedPrefix: "provider123/documents/",
		Bucket:         "gear-images",
	}
	assert.Equal(t, metadata.Reject(metadata.ReasonBucketNotAllowed), ValidateUploadRequest(reg, req))

	req.Bucket = "documents"
	assert.Equal(t, metadata.Admit(), ValidateUploadRequest(reg, req))
}

func TestValidateUploadRequest_DenyWhen(t *testing.T) {
	reg := testRegistry(t)
	base := metadata.UploadRequest{
		UseCase:        "rental_document",
		MimeType:       "application/pdf",
		SizeBytes:      2 * mib,
		Path:           "provider123/documents/contract.pdf",
		ExpectedPrefix: "provider123/documents/",
		Bucket:         "documents",
	}

	tiny := base
	tiny.SizeBytes = 10
	assert.Equal(t, metadata.ReasonRuleViolated, ValidateUploadRequest(reg, tiny).ReasonCode)

	exe := base
	exe.Path = "provider123/documents/contract.exe"
	assert.Equal(t, metadata.ReasonRuleViolated, ValidateUploadRequest(reg, exe).ReasonCode)

	assert.True(t, ValidateUploadRequest(reg, base).OK)
}

func TestValidateUploadRequest_BrokenDenyWhenFailsClosed(t *testing.T) {
	rules := ruleMap{
		"gear_image": {
			UseCase:          "gear_image",
			AllowedMimeTypes: []string{"image/png"},
			MaxSizeBytes:     5 * mib,
			DenyWhen:         "size_bytes >",
		},
	}
	result := ValidateUploadRequest(rules, gearRequest())
	assert.Equal(t, metadata.Reject(metadata.ReasonRuleViolated), result)
}

func TestValidateUploadRequest_NilRuleSource(t *testing.T) {
	result := ValidateUploadRequest(nil, gearRequest())
	assert.Equal(t, metadata.ReasonUnknownUseCase, result.ReasonCode)
}

func TestCheckPath(t *testing.T) {
	rule := &metadata.UploadRule{}
	tests := []struct {
		path, prefix string
		ok           bool
	}{
		{"provider123/gear/a.png", "provider123/gear/", true},
		{"provider123/gear/sub/a.png", "provider123/gear/", true},
		{"provider1234/gear/a.png", "provider123/", false},
		{"provider123/gear/a.png", "", false},
		{"provider123/gear/../x.png", "provider123/gear/", false},
		{"Provider123/gear/a.png", "provider123/gear/", false},
	}
	for _, tt := range tests {
		got := checkPath(rule, metadata.UploadRequest{Path: tt.path, ExpectedPrefix: tt.prefix})
		if tt.ok {
			assert.Empty(t, got, "%s under %q", tt.path, tt.prefix)
		} else {
			assert.Equal(t, metadata.ReasonPathNotAllowed, got, "%s under %q", tt.path, tt.prefix)
		}
	}
}
