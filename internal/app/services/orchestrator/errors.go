package orchestrator

import "fmt"

// UnknownTemplateError is returned by Start when the named template has no
// registration.
type UnknownTemplateError struct {
	TemplateName string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("orchestrator: unknown template %q", e.TemplateName)
}

// InvalidSelectorError is returned by Start when the item selector yields
// zero items for a template that requires items.
type InvalidSelectorError struct {
	TemplateName string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("orchestrator: selector yielded no items for template %q", e.TemplateName)
}

// DependencyCycleError wraps a template registration's graph validation
// failure.
type DependencyCycleError struct {
	TemplateName string
	Cause        error
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("orchestrator: template %q has an invalid dependency graph: %v", e.TemplateName, e.Cause)
}

func (e *DependencyCycleError) Unwrap() error { return e.Cause }

// NotFoundError is returned by Status when execution_id names no execution
// known to the orchestrator or the State Store.
type NotFoundError struct {
	ExecutionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("orchestrator: execution %q not found", e.ExecutionID)
}
