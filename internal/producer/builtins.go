package producer

import "github.com/joescharf/coderev/internal/models"

// Built-in producer names.
const (
	NameAnalyzer   = "analyzer"
	NameSecurity   = "security"
	NameOptimizer  = "optimizer"
	NameDocumenter = "documenter"
)

// AllNames lists every built-in producer. Cache invalidation and tests rely
// on this enumeration being complete.
var AllNames = []string{NameAnalyzer, NameSecurity, NameOptimizer, NameDocumenter}

// Analyzer finds bugs, logic errors, and code quality issues.
func Analyzer(threshold float64) *Adapter {
	return New(NameAnalyzer, analyzerSystem, func(unit models.CodeUnit, pctx Context) string {
		return buildUserPrompt("bugs, logic errors, and code quality issues", unit, pctx)
	}, threshold)
}

// Security finds exploitable vulnerabilities.
func Security(threshold float64) *Adapter {
	return New(NameSecurity, securitySystem, func(unit models.CodeUnit, pctx Context) string {
		return buildUserPrompt("security vulnerabilities", unit, pctx)
	}, threshold)
}

// Optimizer finds performance bottlenecks.
func Optimizer(threshold float64) *Adapter {
	return New(NameOptimizer, optimizerSystem, func(unit models.CodeUnit, pctx Context) string {
		return buildUserPrompt("performance problems and inefficiencies", unit, pctx)
	}, threshold)
}

// Documenter finds documentation and readability gaps.
func Documenter(threshold float64) *Adapter {
	return New(NameDocumenter, documenterSystem, func(unit models.CodeUnit, pctx Context) string {
		return buildUserPrompt("documentation and readability gaps", unit, pctx)
	}, threshold)
}

// ForOptions returns the producer set selected by the review options.
func ForOptions(opts models.Options) []*Adapter {
	var adapters []*Adapter
	if opts.EnableAnalyzer {
		adapters = append(adapters, Analyzer(opts.ConfidenceThreshold))
	}
	if opts.EnableSecurity {
		adapters = append(adapters, Security(opts.ConfidenceThreshold))
	}
	if opts.EnablePerformance {
		adapters = append(adapters, Optimizer(opts.ConfidenceThreshold))
	}
	if opts.EnableDocumentation {
		adapters = append(adapters, Documenter(opts.ConfidenceThreshold))
	}
	return adapters
}
