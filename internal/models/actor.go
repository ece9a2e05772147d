package models

// Actor identifies who triggered a mutation. ID is nil for storefront customers and
// processor webhooks.
type Actor struct {
	ID   *uint
	Name string
}

var SystemActor = Actor{Name: "system"}
