package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/backup"
	"github.com/dukerupert/cabinshare/internal/billing"
	"github.com/dukerupert/cabinshare/internal/checklist"
	"github.com/dukerupert/cabinshare/internal/config"
	"github.com/dukerupert/cabinshare/internal/email"
	"github.com/dukerupert/cabinshare/internal/functions"
	"github.com/dukerupert/cabinshare/internal/handler"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/llm"
	"github.com/dukerupert/cabinshare/internal/metrics"
	"github.com/dukerupert/cabinshare/internal/middleware"
	"github.com/dukerupert/cabinshare/internal/notify"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/push"
	"github.com/dukerupert/cabinshare/internal/report"
	"github.com/dukerupert/cabinshare/internal/reservation"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
	"github.com/dukerupert/cabinshare/internal/weather"
	ws "github.com/dukerupert/cabinshare/internal/websocket"
)

type Server struct {
	db      *sql.DB
	hub     *ws.Hub
	metrics *metrics.Metrics

	authH         *handler.AuthHandler
	organizationH *handler.OrganizationHandler
	familyGroupH  *handler.FamilyGroupHandler
	rotationH     *handler.RotationHandler
	reservationH  *handler.ReservationHandler
	paymentH      *handler.PaymentHandler
	billH         *handler.BillHandler
	receiptH      *handler.ReceiptHandler
	checklistH    *handler.ChecklistHandler
	imageH        *handler.ImageHandler
	documentH     *handler.DocumentHandler
	noteH         *handler.NoteHandler
	settingsH     *handler.SettingsHandler
	pushH         *handler.PushHandler
	dashboardH    *handler.DashboardHandler
	reportH       *handler.ReportHandler
	functionH     *handler.FunctionHandler
	billingH      *handler.BillingHandler
	supervisorH   *handler.SupervisorHandler

	sessionStore   *store.SessionStore
	magicLinkStore *store.MagicLinkStore
	userStore      *store.UserStore
	orgStore       *store.OrganizationStore
	rateLimiter    *middleware.RateLimiter
	backupManager  *backup.Manager
	pushScheduler  *push.Scheduler
	turnScheduler  *selection.Scheduler
	notifier       *notify.Notifier
	originPatterns []string
	logger         *slog.Logger
}

func New(cfg config.Config, db *sql.DB, logger *slog.Logger) *Server {
	m := metrics.New()
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	orgStore := store.NewOrganizationStore(db)
	sessionStore := store.NewSessionStore(db)
	magicLinkStore := store.NewMagicLinkStore(db)
	familyGroupStore := store.NewFamilyGroupStore(db)
	rotationStore := store.NewRotationStore(db)
	reservationStore := store.NewReservationStore(db)
	paymentStore := store.NewPaymentStore(db)
	billStore := store.NewBillStore(db)
	receiptStore := store.NewReceiptStore(db)
	checklistStore := store.NewChecklistStore(db)
	imageStore := store.NewImageStore(db)
	documentStore := store.NewDocumentStore(db)
	noteStore := store.NewNoteStore(db)
	settingsStore := store.NewSettingsStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)
	trialCodeStore := store.NewTrialCodeStore(db)

	objects := objectstore.New(cfg.S3)
	mailer := email.NewMailer(email.NewSender(cfg.Email, logger.With("component", "email")), cfg.BaseURL)

	// Notifications: web push, email and the websocket feed behind one notifier.
	pushLogger := logger.With("component", "push")
	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Email.FromEmail)
	dispatcher := push.NewDispatcher(pushSvc, pushStore, m, pushLogger)
	var pushSched *push.Scheduler
	if pushSvc.Configured() {
		pushSched = push.NewScheduler(dispatcher, pushStore, paymentStore, settingsStore, time.Hour, pushLogger)
	}
	notifier := notify.New(mailer, dispatcher, hub, familyGroupStore, orgStore, m, logger.With("component", "notify"))

	selectionLogger := logger.With("component", "selection")
	selectionSvc := selection.NewService(rotationStore, reservationStore, notifier, m, selectionLogger)
	reservationSvc := reservation.NewService(reservationStore, rotationStore, familyGroupStore, selectionSvc, logger.With("component", "reservation"))

	backupLogger := logger.With("component", "backup")
	backupMgr := backup.NewManager(backup.Stores{
		Backups:       backupStore,
		Exports:       store.NewExportStore(db),
		Settings:      settingsStore,
		Organizations: orgStore,
		Reservations:  reservationStore,
		FamilyGroups:  familyGroupStore,
	}, objects, cfg.Backups.Passphrase, m, backupLogger, func(s backup.Status) {
		backupLogger.Debug("backup status changed", "state", s.State, "in_progress", s.InProgress, "error", s.Error)
	})

	importer := checklist.NewImporter(checklistStore, llm.New(cfg.LLM), logger.With("component", "checklist"))

	registry := functions.NewRegistry(m, logger.With("component", "functions"))
	functions.RegisterDefaults(registry, functions.Deps{
		Reminders:  ledger.NewReminders(paymentStore, familyGroupStore, orgStore, mailer, logger.With("component", "reminders")),
		Selection:  selectionSvc,
		Backups:    backupMgr,
		Checklists: importer,
	})

	billH := handler.NewBillHandler(billStore, notifier, logger.With("component", "bill"))

	return &Server{
		db:      db,
		hub:     hub,
		metrics: m,

		authH:         handler.NewAuthHandler(userStore, sessionStore, magicLinkStore, orgStore, familyGroupStore, auth.NewInvites(cfg.InviteSecret), mailer, logger.With("component", "auth")),
		organizationH: handler.NewOrganizationHandler(orgStore, sessionStore, familyGroupStore, notifier, logger.With("component", "organization")),
		familyGroupH:  handler.NewFamilyGroupHandler(familyGroupStore, notifier, logger.With("component", "family_group")),
		rotationH:     handler.NewRotationHandler(rotationStore, familyGroupStore, selectionSvc, notifier, logger.With("component", "rotation")),
		reservationH:  handler.NewReservationHandler(reservationSvc, reservationStore, notifier, logger.With("component", "reservation")),
		paymentH:      handler.NewPaymentHandler(paymentStore, familyGroupStore, notifier, logger.With("component", "payment")),
		billH:         billH,
		receiptH:      handler.NewReceiptHandler(receiptStore, familyGroupStore, objects, notifier, logger.With("component", "receipt")),
		checklistH:    handler.NewChecklistHandler(checklistStore, importer, notifier, logger.With("component", "checklist")),
		imageH:        handler.NewImageHandler(imageStore, objects, notifier, logger.With("component", "image")),
		documentH:     handler.NewDocumentHandler(documentStore, objects, notifier, logger.With("component", "document")),
		noteH:         handler.NewNoteHandler(noteStore, notifier, logger.With("component", "note")),
		settingsH:     handler.NewSettingsHandler(settingsStore, notifier, logger.With("component", "settings")),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		dashboardH: handler.NewDashboardHandler(handler.DashboardStores{
			Reservations: reservationStore,
			Rotations:    rotationStore,
			Notes:        noteStore,
			Payments:     paymentStore,
			Groups:       familyGroupStore,
			Settings:     settingsStore,
		}, billH, weather.NewService(), logger.With("component", "dashboard")),
		reportH:     handler.NewReportHandler(report.NewBuilder(familyGroupStore, paymentStore, receiptStore, billStore), logger.With("component", "report")),
		functionH:   handler.NewFunctionHandler(registry, logger.With("component", "functions")),
		billingH:    handler.NewBillingHandler(billing.New(cfg.Stripe, cfg.BaseURL, orgStore, logger.With("component", "billing")), orgStore, userStore, logger.With("component", "billing")),
		supervisorH: handler.NewSupervisorHandler(orgStore, trialCodeStore, backupMgr, logger.With("component", "supervisor")),

		sessionStore:   sessionStore,
		magicLinkStore: magicLinkStore,
		userStore:      userStore,
		orgStore:       orgStore,
		rateLimiter:    middleware.NewRateLimiter(),
		backupManager:  backupMgr,
		pushScheduler:  pushSched,
		turnScheduler:  selection.NewScheduler(selectionSvc, cfg.SchedulerInterval, selectionLogger),
		notifier:       notifier,
		originPatterns: originPatterns(cfg.BaseURL),
		logger:         logger,
	}
}

// originPatterns allows websocket upgrades from the public host.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// MagicLinkStore returns the magic link store for cleanup tasks.
func (s *Server) MagicLinkStore() *store.MagicLinkStore {
	return s.magicLinkStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the payment reminder scheduler, nil when web push
// is not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// TurnScheduler returns the scheduler advancing expired selection turns.
func (s *Server) TurnScheduler() *selection.Scheduler {
	return s.turnScheduler
}

// Notifier returns the notifier, whose background deliveries are drained
// on shutdown.
func (s *Server) Notifier() *notify.Notifier {
	return s.notifier
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("POST /webhooks/stripe", s.billingH.Webhook)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	// Protected routes, wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore, s.orgStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	var h http.Handler = outerMux
	h = middleware.Metrics(s.metrics)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// guard chains the organization requirement with an optional role check.
func guard(h http.HandlerFunc, roles ...func(http.Handler) http.Handler) http.Handler {
	var next http.Handler = h
	for i := len(roles) - 1; i >= 0; i-- {
		next = roles[i](next)
	}
	return middleware.RequireOrganization(next)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	admin := middleware.RequireAdmin
	keeper := middleware.RequireCalendarKeeper
	treasurer := middleware.RequireTreasurer

	// Session and membership routes, no active organization needed
	mux.HandleFunc("POST /logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("POST /api/organizations", s.organizationH.Create)
	mux.HandleFunc("POST /api/organizations/join", s.organizationH.Join)
	mux.HandleFunc("POST /api/organizations/switch", s.authH.SwitchOrganization)
	mux.HandleFunc("POST /invite/accept", s.authH.AcceptInvite)

	// Organization
	mux.Handle("GET /api/organization", guard(s.organizationH.Get))
	mux.Handle("PUT /api/organization", guard(s.organizationH.Update, admin))
	mux.Handle("GET /api/organization/members", guard(s.organizationH.ListMembers))
	mux.Handle("PUT /api/organization/members/{user_id}", guard(s.organizationH.UpdateMember, admin))
	mux.Handle("DELETE /api/organization/members/{user_id}", guard(s.organizationH.RemoveMember, admin))

	// Family groups
	mux.Handle("GET /api/family-groups", guard(s.familyGroupH.List))
	mux.Handle("POST /api/family-groups", guard(s.familyGroupH.Create, admin))
	mux.Handle("PUT /api/family-groups/sort", guard(s.familyGroupH.UpdateSortOrder, admin))
	mux.Handle("GET /api/family-groups/{id}", guard(s.familyGroupH.Get))
	mux.Handle("PUT /api/family-groups/{id}", guard(s.familyGroupH.Update, admin))
	mux.Handle("DELETE /api/family-groups/{id}", guard(s.familyGroupH.Delete, admin))
	mux.Handle("POST /api/family-groups/{id}/invite", guard(s.authH.Invite, admin))

	// Rotation orders and selection turns
	mux.Handle("GET /api/rotation-orders", guard(s.rotationH.ListOrders))
	mux.Handle("GET /api/rotation-orders/{year}", guard(s.rotationH.GetOrder))
	mux.Handle("PUT /api/rotation-orders/{year}", guard(s.rotationH.SaveOrder, admin))
	mux.Handle("POST /api/rotation-orders/{year}/next-year", guard(s.rotationH.NextYear, admin))
	mux.Handle("GET /api/selection/{year}", guard(s.rotationH.SelectionStatus))
	mux.Handle("POST /api/selection/{year}/start", guard(s.rotationH.StartSelection, admin))
	mux.Handle("POST /api/selection/{year}/complete", guard(s.rotationH.CompleteTurn))
	mux.Handle("POST /api/selection/{year}/extend", guard(s.rotationH.ExtendTurn, keeper))

	// Reservations
	mux.Handle("GET /api/calendar", guard(s.reservationH.Calendar))
	mux.Handle("GET /api/reservations", guard(s.reservationH.List))
	mux.Handle("POST /api/reservations", guard(s.reservationH.Create))
	mux.Handle("GET /api/reservations/{id}", guard(s.reservationH.Get))
	mux.Handle("PUT /api/reservations/{id}", guard(s.reservationH.Update))
	mux.Handle("DELETE /api/reservations/{id}", guard(s.reservationH.Delete))
	mux.Handle("POST /api/reservations/{id}/cancel", guard(s.reservationH.Cancel))
	mux.Handle("GET /api/reports/stay-history", guard(s.reservationH.StayHistory))

	// Payments
	mux.Handle("GET /api/payments", guard(s.paymentH.List))
	mux.Handle("GET /api/payments/summary", guard(s.paymentH.Summary))
	mux.Handle("POST /api/payments", guard(s.paymentH.Create, treasurer))
	mux.Handle("GET /api/payments/{id}", guard(s.paymentH.Get))
	mux.Handle("PUT /api/payments/{id}", guard(s.paymentH.Update, treasurer))
	mux.Handle("DELETE /api/payments/{id}", guard(s.paymentH.Delete, treasurer))
	mux.Handle("POST /api/payments/{id}/record", guard(s.paymentH.Record, treasurer))

	// Recurring bills
	mux.Handle("GET /api/bills", guard(s.billH.List))
	mux.Handle("GET /api/bills/upcoming", guard(s.billH.Upcoming))
	mux.Handle("GET /api/bills/projection", guard(s.billH.Projection))
	mux.Handle("POST /api/bills", guard(s.billH.Create, treasurer))
	mux.Handle("GET /api/bills/{id}", guard(s.billH.Get))
	mux.Handle("PUT /api/bills/{id}", guard(s.billH.Update, treasurer))
	mux.Handle("DELETE /api/bills/{id}", guard(s.billH.Delete, treasurer))
	mux.Handle("GET /api/bills/{id}/payments", guard(s.billH.ListPayments))
	mux.Handle("POST /api/bills/{id}/payments", guard(s.billH.RecordPayment, treasurer))

	// Receipts and balances
	mux.Handle("GET /api/receipts", guard(s.receiptH.List))
	mux.Handle("POST /api/receipts", guard(s.receiptH.Create))
	mux.Handle("GET /api/receipts/{id}", guard(s.receiptH.Get))
	mux.Handle("PUT /api/receipts/{id}", guard(s.receiptH.Update, treasurer))
	mux.Handle("DELETE /api/receipts/{id}", guard(s.receiptH.Delete, treasurer))
	mux.Handle("POST /api/receipts/{id}/image", guard(s.receiptH.UploadImage))
	mux.Handle("GET /api/receipts/{id}/image", guard(s.receiptH.Image))
	mux.Handle("GET /api/balances", guard(s.receiptH.Balances))

	// Checklists and check-in sessions
	mux.Handle("GET /api/checklists", guard(s.checklistH.List))
	mux.Handle("POST /api/checklists", guard(s.checklistH.Create, admin))
	mux.Handle("POST /api/checklists/import", guard(s.checklistH.Import, admin))
	mux.Handle("GET /api/checklists/{id}", guard(s.checklistH.Get))
	mux.Handle("PUT /api/checklists/{id}", guard(s.checklistH.Update, admin))
	mux.Handle("DELETE /api/checklists/{id}", guard(s.checklistH.Delete, admin))
	mux.Handle("POST /api/checklists/{id}/items", guard(s.checklistH.AddItem, admin))
	mux.Handle("PUT /api/checklists/{id}/items/order", guard(s.checklistH.ReorderItems, admin))
	mux.Handle("PUT /api/checklist-items/{id}", guard(s.checklistH.UpdateItem, admin))
	mux.Handle("DELETE /api/checklist-items/{id}", guard(s.checklistH.DeleteItem, admin))
	mux.Handle("GET /api/checkin-sessions", guard(s.checklistH.ListSessions))
	mux.Handle("POST /api/checkin-sessions", guard(s.checklistH.CreateSession))
	mux.Handle("GET /api/checkin-sessions/{id}", guard(s.checklistH.GetSession))
	mux.Handle("PUT /api/checkin-sessions/{id}", guard(s.checklistH.UpdateSession))
	mux.Handle("DELETE /api/checkin-sessions/{id}", guard(s.checklistH.DeleteSession))

	// Image library
	mux.Handle("GET /api/images", guard(s.imageH.List))
	mux.Handle("POST /api/images", guard(s.imageH.Upload, admin))
	mux.Handle("POST /api/images/reconcile", guard(s.imageH.Reconcile, admin))
	mux.Handle("GET /api/images/{id}/content", guard(s.imageH.Download))
	mux.Handle("DELETE /api/images/{id}", guard(s.imageH.Delete, admin))

	// Documents
	mux.Handle("GET /api/documents", guard(s.documentH.List))
	mux.Handle("POST /api/documents", guard(s.documentH.Upload, admin))
	mux.Handle("GET /api/documents/{id}/download", guard(s.documentH.Download))
	mux.Handle("DELETE /api/documents/{id}", guard(s.documentH.Delete, admin))

	// Notes
	mux.Handle("GET /api/notes", guard(s.noteH.List))
	mux.Handle("POST /api/notes", guard(s.noteH.Create))
	mux.Handle("PUT /api/notes/{id}", guard(s.noteH.Update))
	mux.Handle("DELETE /api/notes/{id}", guard(s.noteH.Delete))
	mux.Handle("POST /api/notes/{id}/pin", guard(s.noteH.TogglePinned))

	// Settings
	mux.Handle("GET /api/settings", guard(s.settingsH.Get))
	mux.Handle("PUT /api/settings", guard(s.settingsH.Update, admin))

	// Push notifications
	mux.Handle("GET /api/push/vapid-key", guard(s.pushH.GetVAPIDKey))
	mux.Handle("POST /api/push/subscribe", guard(s.pushH.Subscribe))
	mux.Handle("DELETE /api/push/subscriptions/{id}", guard(s.pushH.Unsubscribe))
	mux.Handle("GET /api/push/subscriptions", guard(s.pushH.ListSubscriptions))
	mux.Handle("GET /api/push/preferences", guard(s.pushH.GetPreferences))
	mux.Handle("PUT /api/push/preferences", guard(s.pushH.UpdatePreferences))
	mux.Handle("POST /api/push/test", guard(s.pushH.TestNotification))

	// Dashboard, weather and reports
	mux.Handle("GET /api/dashboard", guard(s.dashboardH.Get))
	mux.Handle("GET /api/weather", guard(s.dashboardH.Weather))
	mux.Handle("GET /api/reports/financial.xlsx", guard(s.reportH.Financial, treasurer))

	// Functions check their own permissions
	mux.Handle("GET /api/functions", guard(s.functionH.List))
	mux.Handle("POST /api/functions/{name}", guard(s.functionH.Call))

	// Billing
	mux.Handle("POST /api/billing/checkout", guard(s.billingH.Checkout, admin))

	// Supervisor
	sup := middleware.RequireSupervisor
	mux.Handle("GET /api/supervisor/organizations", sup(http.HandlerFunc(s.supervisorH.ListOrganizations)))
	mux.Handle("DELETE /api/supervisor/organizations/{id}", sup(http.HandlerFunc(s.supervisorH.DeleteOrganization)))
	mux.Handle("GET /api/supervisor/trial-codes", sup(http.HandlerFunc(s.supervisorH.ListTrialCodes)))
	mux.Handle("POST /api/supervisor/trial-codes", sup(http.HandlerFunc(s.supervisorH.CreateTrialCode)))
	mux.Handle("POST /api/supervisor/trial-codes/{id}/deactivate", sup(http.HandlerFunc(s.supervisorH.DeactivateTrialCode)))
	mux.Handle("GET /api/supervisor/backups", sup(http.HandlerFunc(s.supervisorH.ListBackups)))
	mux.Handle("GET /api/supervisor/backups/{id}/download", sup(http.HandlerFunc(s.supervisorH.DownloadBackup)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))
}
