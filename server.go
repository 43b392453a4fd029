package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/middlewares"
	"github.com/mmdatafocus/pos_sync/models"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/readmodel"
	"github.com/mmdatafocus/pos_sync/reconcile"
	"github.com/mmdatafocus/pos_sync/remote"
	"github.com/mmdatafocus/pos_sync/session"
	"github.com/mmdatafocus/pos_sync/store"
	"github.com/mmdatafocus/pos_sync/syncengine"
	"github.com/mmdatafocus/pos_sync/utils"
)

// reportWindow bounds the remote rows fetched for the orders report.
const reportWindow = 30 * 24 * time.Hour

type server struct {
	store     *store.Store
	sales     *reconcile.SalesReconciler
	expenses  *reconcile.ExpenseReconciler
	inventory *reconcile.InventoryReconciler
	bookings  *reconcile.BookingReconciler
	session   *session.Manager
	remote    remote.Service
	engine    *syncengine.Orchestrator
	queues    syncengine.Queues
}

func main() {
	godotenv.Load(".env")
	logger := config.GetLogger()

	config.ConnectLocalDBWithRetry()
	db := config.GetDB()
	if err := models.MigrateTable(db); err != nil {
		config.LogError(logger, "main", "main", "migrating local tables", nil, err)
	}

	st := store.NewStore(db, logger)
	sess := session.NewManager(logger)
	client, err := remote.NewClient(sess)
	if err != nil {
		logger.Fatal(err)
	}

	queues := syncengine.Queues{
		Sales:     outbox.NewQueue[models.OfflineSale](st, outbox.KeySalesQueue),
		Expenses:  outbox.NewQueue[models.Expense](st, outbox.KeyExpensesQueue),
		Inventory: outbox.NewQueue[models.InventoryMutation](st, outbox.KeyInventoryQueue),
		Bookings:  outbox.NewQueue[models.ServiceBooking](st, outbox.KeyBookingsQueue),
	}

	s := &server{
		store: st,
		sales: &reconcile.SalesReconciler{
			Remote: client, Session: sess, Store: st, Queue: queues.Sales, Logger: logger,
		},
		expenses: &reconcile.ExpenseReconciler{
			Remote: client, Store: st, Queue: queues.Expenses, DB: db, Logger: logger,
		},
		inventory: &reconcile.InventoryReconciler{
			Remote: client, Store: st, Queue: queues.Inventory, Logger: logger,
		},
		bookings: &reconcile.BookingReconciler{
			Remote: client, Store: st, Queue: queues.Bookings, Logger: logger,
		},
		session: sess,
		remote:  client,
		queues:  queues,
	}
	s.engine = syncengine.NewOrchestrator(
		s.sales, s.expenses, s.inventory, s.bookings,
		sess, client, queues, logger,
	)
	go s.engine.Run(context.Background())

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Business-Id", "X-User-Id", "X-Correlation-Id"},
		AllowCredentials: false,
	}))
	r.Use(middlewares.ScopeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/sales/checkout", s.checkout)
		v1.POST("/sales/hold", s.holdSale)
		v1.GET("/sales/held", s.listHeld)
		v1.POST("/sales/held/:id/resume", s.resumeHeld)
		v1.DELETE("/sales/held/:id", s.discardHeld)

		v1.GET("/expenses", s.listExpenses)
		v1.POST("/expenses", s.saveExpense)
		v1.PUT("/expenses/:id", s.saveExpense)
		v1.DELETE("/expenses/:id", s.deleteExpense)

		v1.GET("/inventory", s.listInventory)
		v1.POST("/inventory", s.saveInventory)
		v1.PUT("/inventory/:id", s.saveInventory)
		v1.DELETE("/inventory/:id", s.deleteInventory)

		v1.GET("/bookings", s.listBookings)
		v1.POST("/bookings", s.saveBooking)
		v1.PUT("/bookings/:id", s.saveBooking)
		v1.DELETE("/bookings/:id", s.deleteBooking)

		v1.GET("/sync/status", s.syncStatus)
		v1.POST("/sync/trigger", s.syncTrigger)
		v1.POST("/sync/foreground", s.syncForeground)

		v1.GET("/reports/orders", s.reportOrders)

		v1.POST("/session/signin", s.signIn)
		v1.POST("/session/signout", s.signOut)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8888"
	}
	r.Run(":" + port)
}

// requestScope resolves the tenant scope the middleware put on the request
// context. Every data route refuses to operate without one.
func (s *server) requestScope(c *gin.Context) (store.TenantScope, bool) {
	scope := store.ScopeFromContext(c.Request.Context())
	if scope.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": store.ErrNoTenantScope.Error()})
		return store.TenantScope{}, false
	}
	s.engine.SetActiveScope(scope)
	return scope, true
}

func bindError(c *gin.Context, err error) {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(verrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *server) checkout(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	var input models.NewOfflineSale
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	sale, err := input.Validate()
	if err != nil {
		bindError(c, err)
		return
	}
	if err := s.sales.SubmitSale(c.Request.Context(), scope, sale); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"receipt_id": sale.Meta.ReceiptID,
		"pending":    s.queues.Sales.Has(scope, sale.Meta.ReceiptID),
	})
}

type holdRequest struct {
	Label string                `json:"label"`
	Draft models.NewOfflineSale `json:"draft"`
}

func (s *server) holdSale(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	var input holdRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	id, err := readmodel.Hold(s.store, scope, input.Label, input.Draft)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *server) listHeld(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, readmodel.ListHeld(s.store, scope))
}

func (s *server) resumeHeld(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	held, found := readmodel.Resume(s.store, scope, c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "held sale not found"})
		return
	}
	c.JSON(http.StatusOK, held)
}

func (s *server) discardHeld(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	readmodel.DiscardHeld(s.store, scope, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "discarded"})
}

func (s *server) listExpenses(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.expenses.List(scope))
}

func (s *server) saveExpense(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	var input models.NewExpense
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	if id := c.Param("id"); id != "" {
		input.ID = id
	}
	expense, err := input.Validate()
	if err != nil {
		bindError(c, err)
		return
	}
	if err := s.expenses.Save(c.Request.Context(), scope, expense); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (s *server) deleteExpense(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	if err := s.expenses.Delete(c.Request.Context(), scope, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (s *server) listInventory(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.inventory.List(scope))
}

func (s *server) saveInventory(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	var input models.NewInventoryMutation
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	if id := c.Param("id"); id != "" {
		input.ProductID = id
	}
	mutation, err := input.Validate()
	if err != nil {
		bindError(c, err)
		return
	}
	if err := s.inventory.Save(c.Request.Context(), scope, mutation); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mutation)
}

func (s *server) deleteInventory(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	if err := s.inventory.Delete(c.Request.Context(), scope, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (s *server) listBookings(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.bookings.List(scope))
}

func (s *server) saveBooking(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	var input models.NewServiceBooking
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	if id := c.Param("id"); id != "" {
		input.ID = id
	}
	booking, err := input.Validate()
	if err != nil {
		bindError(c, err)
		return
	}
	if err := s.bookings.Save(c.Request.Context(), scope, booking); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *server) deleteBooking(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	if err := s.bookings.Delete(c.Request.Context(), scope, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (s *server) syncStatus(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  s.engine.Status(),
		"pending": s.queues.Sales.Len(scope) + s.queues.Expenses.Len(scope) + s.queues.Inventory.Len(scope) + s.queues.Bookings.Len(scope),
	})
}

func (s *server) syncTrigger(c *gin.Context) {
	if _, ok := s.requestScope(c); !ok {
		return
	}
	s.engine.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// syncForeground is the app-resume hook: the shell calls it when the POS UI
// returns to the foreground so a pass starts without waiting for a timer.
func (s *server) syncForeground(c *gin.Context) {
	if _, ok := s.requestScope(c); !ok {
		return
	}
	s.engine.Foreground()
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// reportOrders merges the remote rows (or the offline cache when the remote
// is unreachable) with pending queue projections, pending last so an
// unsynced retry of the same receipt wins.
func (s *server) reportOrders(c *gin.Context) {
	scope, ok := s.requestScope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var remoteRows []remote.SaleRow
	rows, err := s.remote.ListSales(ctx, time.Now().Add(-reportWindow))
	if err == nil {
		remoteRows = rows
		readmodel.UpsertCache(s.store, scope, rows)
	} else {
		remoteRows = readmodel.CachedOrders(s.store, scope)
	}

	pending := readmodel.ProjectQueueAsRows(s.queues.Sales.Items(scope))
	c.JSON(http.StatusOK, readmodel.MergeRows(remoteRows, pending))
}

type signInRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

func (s *server) signIn(c *gin.Context) {
	if _, ok := s.requestScope(c); !ok {
		return
	}
	var input signInRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	s.session.SignIn(input.AccessToken, input.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"status": "signed_in"})
}

// signOut tears down the device's local engine state for the given base keys
// across every tenant scope, then clears the session. Queue contents are
// dropped with the rest; an explicit sync should run before signing out.
func (s *server) signOut(c *gin.Context) {
	s.session.SignOut()
	for _, key := range []string{
		outbox.KeySalesQueue,
		outbox.KeyExpensesQueue,
		outbox.KeyInventoryQueue,
		outbox.KeyBookingsQueue,
		reconcile.KeyExpenses,
		reconcile.KeyInventory,
		reconcile.KeyBookings,
		reconcile.KeyLastSaleType,
		readmodel.KeyOrdersCache,
		readmodel.KeyHeldSales,
	} {
		s.store.RemoveAcrossScopes(key)
	}
	s.engine.SetActiveScope(store.TenantScope{})
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}
