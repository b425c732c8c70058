package controllers

import (
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseFox/internal/pkg/identity"
)

// FirebaseWebConfig is rendered into the login page for the Firebase JS SDK.
type FirebaseWebConfig struct {
	APIKey     string
	AuthDomain string
	ProjectID  string
}

// Dependencies are the services the handlers work with.
type Dependencies struct {
	Billing  *billing.Service
	Catalog  *catalog.Catalog
	Users    repository.UserRepository
	Verifier identity.Verifier
	Firebase FirebaseWebConfig
	// BaseURL overrides the request host when building the Stripe callback URL.
	BaseURL string
	// DevToken is shown on the login page when the static dev verifier is active.
	DevToken string
}

var deps *Dependencies

// Initialize installs the handler dependencies. Call before serving requests.
func Initialize(d *Dependencies) {
	deps = d
}
