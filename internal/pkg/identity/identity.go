// Package identity verifies Firebase ID tokens sent by the browser.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/gofiber/fiber/v2/log"
	"google.golang.org/api/option"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

var ErrInvalidToken = errors.New("invalid id token")

// Identity is the verified caller.
type Identity struct {
	UID   string
	Email string
}

// Verifier checks an ID token and returns who it belongs to.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
}

// FirebaseVerifier verifies tokens with the Firebase Admin SDK.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrInvalidToken
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id := &Identity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}

// App bundles the Firebase clients used by the application.
type App struct {
	Verifier  Verifier
	Firestore *firestore.Client
}

// Close releases the Firestore connection.
func (a *App) Close() error {
	if a == nil || a.Firestore == nil {
		return nil
	}
	return a.Firestore.Close()
}

// Setup initializes Firebase from FIREBASE_PROJECT_ID and
// FIREBASE_CREDENTIALS_FILE. withFirestore also opens a Firestore client.
func Setup(ctx context.Context, withFirestore bool) (*App, error) {
	projectID := env.GetEnv("FIREBASE_PROJECT_ID", "")
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}

	var opts []option.ClientOption
	if file := env.GetEnv("FIREBASE_CREDENTIALS_FILE", ""); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	authClient, err := fbApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}

	app := &App{Verifier: NewFirebaseVerifier(authClient)}
	if withFirestore {
		fs, err := fbApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}
		app.Firestore = fs
	}
	log.Infof("[Identity] Firebase initialized for project %s (firestore: %t)", projectID, withFirestore)
	return app, nil
}
