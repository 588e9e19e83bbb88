package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mealforge/mealforge/internal/achievement"
	achievementdomain "github.com/mealforge/mealforge/internal/achievement/domain"
	"github.com/mealforge/mealforge/internal/billing"
	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	"github.com/mealforge/mealforge/internal/config"
	"github.com/mealforge/mealforge/internal/credits"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/internal/metrics"
	"github.com/mealforge/mealforge/internal/ratelimit"
	"github.com/mealforge/mealforge/internal/streak"
	streakdomain "github.com/mealforge/mealforge/internal/streak/domain"
	"github.com/mealforge/mealforge/internal/usage"
	usagedomain "github.com/mealforge/mealforge/internal/usage/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	credits.Module,
	usage.Module,
	streak.Module,
	achievement.Module,
	billing.Module,
	fx.Provide(registerGin),
	fx.Provide(provideLimiter),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// Limiter throttles per-user traffic and serializes evaluate passes.
type Limiter interface {
	AllowDebit(ctx context.Context, userID string) (bool, error)
	AllowUsage(ctx context.Context, userID string) (bool, error)
	TryLockEvaluate(ctx context.Context, userID string) (string, bool, error)
	ReleaseEvaluate(ctx context.Context, userID, token string) error
}

func provideLimiter(l *ratelimit.RequestLimiter) Limiter {
	return l
}

func NewEngine(log *zap.Logger, m *metrics.Metrics, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(MetricsMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, m *metrics.Metrics, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(log, m, registry)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	genID          *snowflake.Node
	rewards        *config.RewardConfigHolder
	creditSvc      creditsdomain.Service
	usageSvc       usagedomain.Service
	streakSvc      streakdomain.Service
	achievementSvc achievementdomain.Service
	billingAdapter billingdomain.Adapter
	billingSvc     billingdomain.Service
	limiter        Limiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	GenID          *snowflake.Node
	Rewards        *config.RewardConfigHolder
	CreditSvc      creditsdomain.Service
	UsageSvc       usagedomain.Service
	StreakSvc      streakdomain.Service
	AchievementSvc achievementdomain.Service
	BillingAdapter billingdomain.Adapter
	BillingSvc     billingdomain.Service
	Limiter        Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		genID:          p.GenID,
		rewards:        p.Rewards,
		creditSvc:      p.CreditSvc,
		usageSvc:       p.UsageSvc,
		streakSvc:      p.StreakSvc,
		achievementSvc: p.AchievementSvc,
		billingAdapter: p.BillingAdapter,
		billingSvc:     p.BillingSvc,
		limiter:        p.Limiter,
	}
	if svc.limiter == nil {
		// A nil RequestLimiter allows everything.
		svc.limiter = (*ratelimit.RequestLimiter)(nil)
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.AuthRequired())

	v1.POST("/signup", s.Signup)

	v1.GET("/credits", s.GetCredits)
	v1.POST("/credits/debit", s.DebitCredits)
	v1.GET("/credits/ledger", s.ListCreditLedger)

	v1.POST("/recipes/events", s.RecordRecipeEvent)

	v1.POST("/achievements/evaluate", s.EvaluateAchievements)
	v1.GET("/achievements", s.ListAchievements)

	v1.GET("/streak", s.GetStreak)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/billing", s.BillingWebhook)
}
