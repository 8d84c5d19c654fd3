package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/metadata"
)

// CompileExpression compiles a deny_when expression into an expr-lang program.
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

// UploadEnv is the variable set visible to deny_when expressions.
func UploadEnv(req metadata.UploadRequest) map[string]any {
	return map[string]any{
		"use_case":   req.UseCase,
		"mime_type":  metadata.NormalizeMime(req.MimeType),
		"size_bytes": req.SizeBytes,
		"path":       req.Path,
		"bucket":     req.Bucket,
	}
}

// EvaluateDenyWhen runs the rule's deny_when expression against the request.
// The rule is violated when the expression is true. An expression that cannot
// be compiled or evaluated counts as violated so a broken guard fails closed.
func EvaluateDenyWhen(rule *metadata.UploadRule, req metadata.UploadRequest) bool {
	prog, ok := rule.Compiled.(*vm.Program)
	if !ok || prog == nil {
		compiled, err := CompileExpression(rule.DenyWhen)
		if err != nil {
			logging.Warn("deny_when compile failed", zap.String("use_case", rule.UseCase), zap.Error(err))
			return true
		}
		prog = compiled
	}

	result, err := expr.Run(prog, UploadEnv(req))
	if err != nil {
		logging.Warn("deny_when evaluation failed", zap.String("use_case", rule.UseCase), zap.Error(err))
		return true
	}

	violated, ok := result.(bool)
	if !ok {
		return true
	}
	return violated
}
