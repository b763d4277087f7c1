// Package server exposes the HTTP API: tenant administration, the customer
// and plan catalog, the billing ledger, payments, recovery and the
// subscription lifecycle. Handlers bind and validate input, delegate to the
// domain services and translate sentinel errors into the wire taxonomy.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	"github.com/smallbiznis/netbill/internal/billingevent"
	"github.com/smallbiznis/netbill/internal/config"
	customerdomain "github.com/smallbiznis/netbill/internal/customer/domain"
	enforcementdomain "github.com/smallbiznis/netbill/internal/enforcement/domain"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
	plandomain "github.com/smallbiznis/netbill/internal/plan/domain"
	"github.com/smallbiznis/netbill/internal/providers/pdf"
	recoverydomain "github.com/smallbiznis/netbill/internal/recovery/domain"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	tenantSvc       tenantdomain.Service
	planSvc         plandomain.Service
	customerSvc     customerdomain.Service
	billingSvc      billingdomain.Service
	paymentSvc      paymentdomain.Service
	recoverySvc     recoverydomain.Service
	subscriptionSvc subscriptiondomain.Service
	enforcementSvc  enforcementdomain.Service
	dispatcher      *billingevent.Dispatcher
	pdfRenderer     pdf.Renderer
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	TenantSvc       tenantdomain.Service
	PlanSvc         plandomain.Service
	CustomerSvc     customerdomain.Service
	BillingSvc      billingdomain.Service
	PaymentSvc      paymentdomain.Service
	RecoverySvc     recoverydomain.Service
	SubscriptionSvc subscriptiondomain.Service
	EnforcementSvc  enforcementdomain.Service
	Dispatcher      *billingevent.Dispatcher
	PDFRenderer     pdf.Renderer
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		tenantSvc:       p.TenantSvc,
		planSvc:         p.PlanSvc,
		customerSvc:     p.CustomerSvc,
		billingSvc:      p.BillingSvc,
		paymentSvc:      p.PaymentSvc,
		recoverySvc:     p.RecoverySvc,
		subscriptionSvc: p.SubscriptionSvc,
		enforcementSvc:  p.EnforcementSvc,
		dispatcher:      p.Dispatcher,
		pdfRenderer:     p.PDFRenderer,
	}

	s.registerAPIRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", TenantScopeMiddleware())

	v1.POST("/tenants", s.CreateTenant)
	v1.GET("/tenants", s.ListTenants)
	v1.GET("/tenants/:id", s.GetTenant)
	v1.DELETE("/tenants/:id", s.PurgeTenant)
	v1.POST("/tenants/:id/subscription/activate", s.ActivateSubscription)

	v1.POST("/plans", s.CreatePlan)
	v1.GET("/plans", s.ListPlans)
	v1.GET("/plans/:id", s.GetPlan)

	v1.POST("/customers", s.CreateCustomer)
	v1.GET("/customers", s.ListCustomers)
	v1.GET("/customers/:id", s.GetCustomer)

	v1.POST("/bills", s.CreateBill)
	v1.GET("/bills", s.ListBills)
	v1.GET("/bills/:id", s.GetBill)
	v1.POST("/bills/:id/cancel", s.CancelBill)
	v1.GET("/bills/:id/invoice.pdf", s.BillInvoicePDF)

	v1.POST("/payments", s.ApplyPayment)
	v1.GET("/payments", s.ListPayments)
	v1.GET("/payments/:id", s.GetPayment)
	v1.POST("/payments/:id/refund", s.RefundPayment)
	v1.GET("/payments/:id/receipt.pdf", s.PaymentReceiptPDF)

	v1.POST("/recovery/assignments", s.CreateRecoveryAssignment)
	v1.GET("/recovery/assignments", s.ListRecoveryAssignments)
	v1.GET("/recovery/assignments/:id", s.GetRecoveryAssignment)
	v1.POST("/recovery/assignments/:id/collections", s.RecordRecoveryCollection)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin", TenantScopeMiddleware())

	admin.POST("/sweeps/overdue", s.RunOverdueSweep)
	admin.POST("/sweeps/suspension", s.RunSuspensionSweep)
	admin.POST("/sweeps/subscription-expiry", s.RunSubscriptionExpiry)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
