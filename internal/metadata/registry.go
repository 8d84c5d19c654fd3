package metadata

import (
	"sort"
	"sync"
)

// Registry holds the upload rule table keyed by use case.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*UploadRule
}

func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]*UploadRule),
	}
}

// GetUploadRule returns the rule for the given use case, or nil.
func (r *Registry) GetUploadRule(useCase string) *UploadRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[useCase]
}

// AllUploadRules returns all registered rules sorted by use case.
func (r *Registry) AllUploadRules() []*UploadRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]*UploadRule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].UseCase < rules[j].UseCase })
	return rules
}

// MaxUploadSize returns the largest size ceiling across all rules.
func (r *Registry) MaxUploadSize() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max int64
	for _, rule := range r.rules {
		if rule.MaxSizeBytes > max {
			max = rule.MaxSizeBytes
		}
	}
	return max
}

// Load replaces all rules in the registry. Each rule is copied and indexed
// before the swap, so readers never see a rule being indexed.
func (r *Registry) Load(rules []*UploadRule) {
	next := make(map[string]*UploadRule, len(rules))
	for _, rule := range rules {
		cp := *rule
		cp.index()
		next[cp.UseCase] = &cp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = next
}
