package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/schoolsuite/absence-cover-duty/internal/attachments"
	"github.com/schoolsuite/absence-cover-duty/internal/auth"
	"github.com/schoolsuite/absence-cover-duty/internal/cache"
	"github.com/schoolsuite/absence-cover-duty/internal/covers"
	"github.com/schoolsuite/absence-cover-duty/internal/database"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
	"github.com/schoolsuite/absence-cover-duty/internal/drive"
	"github.com/schoolsuite/absence-cover-duty/internal/duty"
	"github.com/schoolsuite/absence-cover-duty/internal/leaves"
	"github.com/schoolsuite/absence-cover-duty/internal/metrics"
	secmiddleware "github.com/schoolsuite/absence-cover-duty/internal/middleware"
	"github.com/schoolsuite/absence-cover-duty/internal/notify"
	"github.com/schoolsuite/absence-cover-duty/internal/schedule"
	"github.com/schoolsuite/absence-cover-duty/internal/scheduler"
	"github.com/schoolsuite/absence-cover-duty/internal/tenantctx"
	"github.com/schoolsuite/absence-cover-duty/internal/webhookingress"
)

// Config holds the application configuration.
type Config struct {
	Port           string
	DatabaseURL    string
	JWTSecret      string
	AccessExpiry   time.Duration
	RefreshExpiry  time.Duration
	AllowedOrigins []string

	RedisURL string

	AttachmentsRoot string

	DriveClientID     string
	DriveClientSecret string
	DriveTenantID     string
	DriveDriveID      string

	DevSMTPAddr string
	DevSMTPFrom string

	LeaveWebhookSecret string

	CoversForwardURL            string
	CoversForwardSecret         string
	CoversForwardSecretHdr      string
	CoversForwardTimeout        time.Duration
	LeaveApprovalWebhookURL     string
	LeaveApprovalWebhookSecret  string
	LeaveApprovalWebhookTimeout time.Duration

	AvailabilityAPIBaseURL string
	AvailabilityTimeout    time.Duration
	AvailabilityCacheTTL   time.Duration
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("invalid LOG_LEVEL, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg := loadConfig()
	ctx := context.Background()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("connected to database")

	attachmentsStore, err := attachments.NewStore(cfg.AttachmentsRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize attachment store")
	}

	availabilityCache, err := cache.NewFromURL(cfg.RedisURL, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to redis, availability lookups will never cache")
	}

	oauthTokens := database.NewOAuthTokenStore(pool)
	tokenCache := newTokenCache(oauthTokens, cfg)
	notifyService := notify.NewService(tokenCache, cfg.DevSMTPAddr, cfg.DevSMTPFrom, log.Logger)

	driveClient := drive.NewClient(cfg.DriveDriveID, tokenCache, "absence", log.Logger)
	archiver := drive.NewArchiver(driveClient, attachmentsStore, log.Logger)

	directoryRepo := directory.NewPostgresRepository(pool.Pool)
	directoryService := directory.NewService(directoryRepo)

	scheduleRepo := schedule.NewPostgresRepository(pool.Pool)

	leavesRepo := leaves.NewPostgresRepository(pool.Pool)
	leavesEngine := leaves.NewEngine(
		leavesRepo,
		attachmentsStore,
		&notifierAdapter{svc: notifyService, profile: "absence"},
		&archiverAdapter{archiver: archiver},
		newLeaveStateWebhookEmitter(cfg.LeaveApprovalWebhookURL, cfg.LeaveApprovalWebhookSecret, cfg.LeaveApprovalWebhookTimeout, log.Logger),
		adminEmailsFunc(directoryService),
		gradeEmailsFunc(directoryService),
	)

	coversRepo := covers.NewPostgresRepository(pool.Pool)
	coversEngine := covers.NewEngine(scheduleRepo, directoryService, &absenceLookup{pool: pool.Pool}, coversRepo, log.Logger)

	dutyRepo := duty.NewPostgresRepository(pool.Pool)
	availabilityClient := duty.NewHTTPAvailabilityClient(
		cfg.AvailabilityAPIBaseURL, "", cfg.AvailabilityTimeout, availabilityCache, cfg.AvailabilityCacheTTL, log.Logger,
	)
	dutyEngine := duty.NewEngine(dutyRepo, directoryService, availabilityClient)

	forwarder := webhookingress.NewHTTPForwarder(
		cfg.CoversForwardURL, cfg.CoversForwardSecret, cfg.CoversForwardSecretHdr, cfg.CoversForwardTimeout, log.Logger,
	)
	webhooksRepo := webhookingress.NewPostgresRepository(pool.Pool)
	webhooksEngine := webhookingress.NewEngine(webhooksRepo, directoryService, forwarder, coversEngine, cfg.LeaveWebhookSecret, log.Logger)

	schedulerRepo := scheduler.NewPostgresRepository(pool.Pool)
	schedulerConfig := scheduler.DefaultConfig()
	if sched := os.Getenv("REMINDER_SWEEP_SCHEDULE"); sched != "" {
		schedulerConfig.ReminderSweepSchedule = sched
	}
	if sched := os.Getenv("BACKFILL_SCHEDULE"); sched != "" {
		schedulerConfig.BackfillSchedule = sched
	}
	if os.Getenv("SCHEDULER_ENABLED") == "false" {
		schedulerConfig.Enabled = false
	}
	backgroundScheduler := scheduler.NewScheduler(schedulerRepo, leavesEngine, webhooksEngine, schedulerConfig, log.Logger)
	if err := backgroundScheduler.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to start scheduler")
	}

	m := metrics.New()
	tokenService := auth.NewTokenService(cfg.JWTSecret, cfg.AccessExpiry, cfg.RefreshExpiry)

	handlers := &Handlers{
		directory:    directoryService,
		scheduleRepo: scheduleRepo,
		leaves:       leavesEngine,
		covers:       coversEngine,
		duty:         dutyEngine,
		webhooks:     webhooksEngine,
		attachments:  attachmentsStore,
		metrics:      m,
		log:          log.Logger,
		catalogs:     make(map[uuid.UUID]*schedule.Catalog),
	}

	r := setupRouter(cfg, handlers, tokenService, m)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down server")

		schedulerCtx := backgroundScheduler.Stop()
		<-schedulerCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("name", name).Str("value", raw).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func loadConfig() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL environment variable required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change-me-in-production"
		log.Warn().Msg("using default JWT_SECRET - change this in production!")
	}

	origins := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}

	attachmentsRoot := os.Getenv("ATTACHMENTS_ROOT")
	if attachmentsRoot == "" {
		attachmentsRoot = "./data"
	}

	return &Config{
		Port:           port,
		DatabaseURL:    dbURL,
		JWTSecret:      jwtSecret,
		AccessExpiry:   15 * time.Minute,
		RefreshExpiry:  7 * 24 * time.Hour,
		AllowedOrigins: allowedOrigins,

		RedisURL: os.Getenv("REDIS_URL"),

		AttachmentsRoot: attachmentsRoot,

		DriveClientID:     os.Getenv("DRIVE_CLIENT_ID"),
		DriveClientSecret: os.Getenv("DRIVE_CLIENT_SECRET"),
		DriveTenantID:     os.Getenv("DRIVE_TENANT_ID"),
		DriveDriveID:      os.Getenv("DRIVE_DRIVE_ID"),

		DevSMTPAddr: os.Getenv("DEV_SMTP_ADDR"),
		DevSMTPFrom: os.Getenv("DEV_SMTP_FROM"),

		LeaveWebhookSecret: os.Getenv("LEAVE_WEBHOOK_SECRET"),

		CoversForwardURL:       os.Getenv("COVERS_FORWARD_URL"),
		CoversForwardSecret:    os.Getenv("COVERS_FORWARD_SECRET"),
		CoversForwardSecretHdr: envOrDefault("COVERS_FORWARD_SECRET_HEADER", "X-Leave-Webhook-Secret"),
		CoversForwardTimeout:   envDuration("COVERS_FORWARD_TIMEOUT", 10*time.Second),

		LeaveApprovalWebhookURL:     os.Getenv("LEAVE_APPROVAL_WEBHOOK_URL"),
		LeaveApprovalWebhookSecret:  os.Getenv("LEAVE_APPROVAL_WEBHOOK_SECRET"),
		LeaveApprovalWebhookTimeout: envDuration("LEAVE_APPROVAL_WEBHOOK_TIMEOUT", 10*time.Second),

		AvailabilityAPIBaseURL: os.Getenv("AVAILABILITY_API_BASE_URL"),
		AvailabilityTimeout:    envDuration("AVAILABILITY_API_TIMEOUT", 5*time.Second),
		AvailabilityCacheTTL:   envDuration("AVAILABILITY_CACHE_TTL", 2*time.Minute),
	}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func setupRouter(cfg *Config, h *Handlers, tokenService *auth.TokenService, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.Metrics(m))

	corsDebug := os.Getenv("CORS_DEBUG") == "true"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Leave-Webhook-Secret"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
		Debug:            corsDebug,
	}))

	if os.Getenv("DEMO_MODE") != "true" {
		rateLimiter := auth.DefaultRateLimiter()
		r.Use(rateLimiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", h.metrics.Handler())

	// The leave-approval-system callback is secret-gated, not JWT-gated;
	// it lives outside /api/v1 so it never picks up the bearer-token
	// middleware chain below.
	r.Post("/external/leave-approvals", h.LeaveApprovalWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(tokenService.Middleware)
			r.Use(tenantctx.Middleware)

			r.Route("/tenants/{tenantID}", func(r chi.Router) {
				r.Get("/teachers", h.ListTeachers)
				r.Get("/teachers/{teacherID}", h.GetTeacher)
				r.Get("/students", h.ListStudentsByHomeroom)
				r.Get("/students/{esisCode}", h.GetStudent)
				r.Get("/schedule/catalog", h.GetScheduleCatalogSummary)

				r.Route("/leaves", func(r chi.Router) {
					r.Get("/", h.ListLeaves)
					r.Post("/", h.SubmitLeave)
					r.Post("/reminder-sweep", h.RunReminderSweep)
					r.Post("/{leaveID}/attachment", h.UploadLeaveAttachment)
					r.Get("/{leaveID}/attachment", h.DownloadLeaveAttachment)
					r.Post("/{leaveID}/acknowledge-no-document", h.AcknowledgeNoDocument)
					r.Post("/{leaveID}/review", h.ReviewLeave)
					r.Get("/{leaveID}/messages", h.ListLeaveMessages)
					r.Post("/{leaveID}/messages", h.PostLeaveMessage)
				})

				r.Route("/covers", func(r chi.Router) {
					r.Get("/", h.ListCovers)
					r.Patch("/{assignmentID}", h.UpdateCover)
					r.Post("/backfill", h.BackfillCovers)
					r.Get("/gaps", h.ListCoverGaps)
				})

				r.Route("/duty/daily", func(r chi.Router) {
					r.Get("/", h.ListDailyWeek)
					r.Post("/", h.AssignDaily)
					r.Delete("/{assignmentID}", h.RemoveDaily)
					r.Post("/{assignmentID}/acknowledge", h.AcknowledgeDaily)
				})

				r.Route("/duty/pods", func(r chi.Router) {
					r.Get("/{grade}/available", h.AvailableForPod)
					r.Put("/{grade}", h.ReplacePod)
					r.Post("/{grade}", h.SingleAssignPod)
					r.Delete("/{assignmentID}", h.RemovePod)
					r.Post("/{assignmentID}/acknowledge", h.AcknowledgePod)
				})
			})
		})
	})

	return r
}
