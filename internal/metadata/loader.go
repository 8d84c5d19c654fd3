package metadata

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"go.uber.org/zap"

	"kitloop-backend/internal/config"
	"kitloop-backend/internal/logging"
)

// LoadUploadRules builds the upload rule table from configuration, compiles
// any deny_when expressions and populates the registry. A rule that fails to
// compile aborts the load so a typo never silently disables a guard.
func LoadUploadRules(uploads map[string]config.UploadRuleConfig, reg *Registry) error {
	names := make([]string, 0, len(uploads))
	for name := range uploads {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]*UploadRule, 0, len(uploads))
	for _, name := range names {
		rc := uploads[name]
		if rc.MaxSizeBytes <= 0 {
			return fmt.Errorf("upload rule %s: max_size_bytes must be positive", name)
		}
		if len(rc.AllowedMimeTypes) == 0 {
			return fmt.Errorf("upload rule %s: allowed_mime_types is empty", name)
		}

		rule := &UploadRule{
			UseCase:          name,
			AllowedMimeTypes: rc.AllowedMimeTypes,
			MaxSizeBytes:     rc.MaxSizeBytes,
			Buckets:          rc.Buckets,
			Folder:           rc.Folder,
			DenyWhen:         rc.DenyWhen,
		}
		if rc.DenyWhen != "" {
			prog, err := expr.Compile(rc.DenyWhen, expr.AsBool())
			if err != nil {
				return fmt.Errorf("upload rule %s: compile deny_when: %w", name, err)
			}
			rule.Compiled = prog
		}
		rules = append(rules, rule)
	}

	reg.Load(rules)

	logging.Info("Loaded upload rules", zap.Int("count", len(rules)), zap.Strings("use_cases", names))
	return nil
}
