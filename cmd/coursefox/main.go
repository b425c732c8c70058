package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/app/repository"
	apiv1 "github.com/ManuelReschke/CourseFox/internal/api/v1"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/identity"
	"github.com/ManuelReschke/CourseFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CourseFox/internal/pkg/mail"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/purchasefeed"
	"github.com/ManuelReschke/CourseFox/internal/pkg/router"
)

// devToken is accepted instead of a Firebase ID token when Firebase is not
// configured in dev mode.
const devToken = "dev-token"

func main() {
	app, shutdown := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
	shutdown()
}

// NewApplication wires all services and returns the app with a cleanup func.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	ctx := context.Background()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/coursefox to project root
		"../../../", // Fallback
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	feedKind, err := purchasefeed.ParseKind(env.GetEnv("PURCHASE_FEED", "redis"))
	if err != nil {
		panic(err)
	}

	verifier, fbApp := setupIdentity(ctx, feedKind != purchasefeed.KindRedis)
	var firestoreFeed purchasefeed.Feed
	if fbApp != nil && fbApp.Firestore != nil {
		firestoreFeed = purchasefeed.NewFirestoreFeed(fbApp.Firestore)
	}
	feed := purchasefeed.New(feedKind, purchasefeed.NewRedisFeed(cache.GetClient()), firestoreFeed)

	gateway := billing.NewStripeGateway(billing.StripeConfig{
		SecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
		PublicKey:     env.GetEnv("STRIPE_PUBLIC_KEY", ""),
		WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	})
	currency := env.GetEnv("STRIPE_CURRENCY", "usd")
	billingRepo := billing.NewRepository(database.GetDB())
	billingService := billing.NewService(billingRepo, repos.Course, gateway,
		billing.WithFeed(feed),
		billing.WithMetrics(metrics.DefaultMetrics),
		billing.WithCurrency(currency),
	)

	// JOB QUEUE
	staleAfter := time.Duration(env.GetEnvInt("PURCHASE_STALE_AFTER_MINUTES", 60)) * time.Minute
	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("JOB_WORKERS", 3))
	queue.RegisterHandler(jobqueue.JobTypeReconcilePurchases, jobqueue.NewReconcileHandler(billingService, staleAfter))
	queue.RegisterHandler(jobqueue.JobTypeSendReceipt, jobqueue.NewReceiptHandler(billingRepo, repos.Course, mail.SendMail, jobqueue.ReceiptConfig{
		BaseURL:  env.GetEnv("APP_BASE_URL", ""),
		Currency: currency,
	}))
	billingService.SetReceiptScheduler(queue)
	manager := jobqueue.NewManager(queue, time.Duration(env.GetEnvInt("RECONCILE_INTERVAL_MINUTES", 15))*time.Minute)
	manager.Start()

	controllers.Initialize(&controllers.Dependencies{
		Billing:  billingService,
		Catalog:  catalog.New(repos.Course, repos.User),
		Users:    repos.User,
		Verifier: verifier,
		Firebase: controllers.FirebaseWebConfig{
			APIKey:     env.GetEnv("FIREBASE_WEB_API_KEY", ""),
			AuthDomain: env.GetEnv("FIREBASE_AUTH_DOMAIN", ""),
			ProjectID:  env.GetEnv("FIREBASE_PROJECT_ID", ""),
		},
		BaseURL:  env.GetEnv("APP_BASE_URL", ""),
		DevToken: devTokenHint(fbApp),
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 1 * 1024 * 1024,
	})

	// ignore and cache favicon
	app.Use(favicon.New(favicon.Config{
		File:         basePath + "public/assets/icons/favicon.ico",
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=604800",
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	metricsAuth := basicauth.New(basicauth.Config{
		Authorizer: metricsAuthorizer(env.GetEnv("METRICS_USER", "admin"), env.GetEnv("METRICS_PASSWORD_HASH", "")),
	})
	app.Get(constants.MetricsRoute, metricsAuth, monitor.New())
	app.Get(constants.MetricsRoute+"/prometheus", metricsAuth, metrics.Handler())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	specPath := basePath + "public/docs/v1/openapi.yml"
	if _, err := apiv1.LoadSpec(specPath); err != nil {
		log.Warnf("[Server] OpenAPI document is invalid: %v", err)
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: constants.DocsRoute,
		FilePath: specPath,
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.Config{
		Verifier: verifier,
		Users:    repos.User,
	})

	shutdown := func() {
		manager.Stop()
		if err := fbApp.Close(); err != nil {
			log.Warnf("[Server] Closing Firebase: %v", err)
		}
	}
	return app, shutdown
}

// setupIdentity initializes Firebase. Without FIREBASE_PROJECT_ID a dev
// instance falls back to a static verifier accepting devToken.
func setupIdentity(ctx context.Context, withFirestore bool) (identity.Verifier, *identity.App) {
	fbApp, err := identity.Setup(ctx, withFirestore)
	if err == nil {
		return fbApp.Verifier, fbApp
	}
	if !env.IsDev() {
		panic(err)
	}
	log.Warnf("[Identity] %v, accepting the dev token %q", err, devToken)
	return identity.StaticVerifier{
		devToken: {UID: "dev-user", Email: env.GetEnv("DEV_USER_EMAIL", "dev@coursefox.local")},
	}, nil
}

func devTokenHint(fbApp *identity.App) string {
	if fbApp != nil {
		return ""
	}
	return devToken
}

// metricsAuthorizer checks the basic auth password against a bcrypt hash.
// An empty hash locks the endpoint.
func metricsAuthorizer(user, passwordHash string) func(string, string) bool {
	return func(u, p string) bool {
		if passwordHash == "" || u != user {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(p)) == nil
	}
}
