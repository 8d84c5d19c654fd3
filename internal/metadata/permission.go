package metadata

import "fmt"

// Action is an operation kind requested against a resource.
type Action string

const (
	ActionCreate   Action = "create"
	ActionRead     Action = "read"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionOverride Action = "override"
)

// Resource is a protected domain entity category.
type Resource string

const (
	ResourceReservation Resource = "reservation"
	ResourceInventory   Resource = "inventory"
	ResourceCustomer    Resource = "customer"
	ResourceFinancials  Resource = "financials"
)

var allActions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionOverride}

var allResources = []Resource{ResourceReservation, ResourceInventory, ResourceCustomer, ResourceFinancials}

// AllActions returns every action in declaration order.
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// AllResources returns every resource in declaration order.
func AllResources() []Resource {
	out := make([]Resource, len(allResources))
	copy(out, allResources)
	return out
}

func ParseAction(s string) (Action, error) {
	for _, a := range allActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func ParseResource(s string) (Resource, error) {
	for _, r := range allResources {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource %q", s)
}
