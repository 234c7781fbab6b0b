package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/middleware"
	"chance-winner-hub/internal/services"
)

type Deps struct {
	JWT     *services.JWTService
	Limiter middleware.RateLimiter // nil disables rate limiting
	Origins []string               // empty allows any origin
	Health  func() error
	User    *UserHandler
	Game    *GameHandler
	Wallet  *WalletHandler
	Lottery *LotteryHandler
	Admin   *AdminHandler
	Hub     *WebSocketHub
	Log     *logrus.Logger
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(d.Origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = d.Origins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(); err != nil {
				if d.Log != nil {
					d.Log.WithError(err).Warn("Health check failed")
				}
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(d.JWT))
	if d.Limiter != nil {
		protected.Use(middleware.RateLimitMiddleware(d.Limiter, d.Log))
	}
	{
		protected.GET("/me", d.User.GetCurrentUser)
		protected.GET("/balance", d.User.GetBalance)
		protected.GET("/transactions", d.User.GetTransactions)
		protected.POST("/account/type", d.User.SwitchAccountType)

		protected.GET("/ws", d.Hub.HandleWebSocket)

		games := protected.Group("/games")
		{
			games.POST("/dice", d.Game.PlayDice)
			games.POST("/scratch", d.Game.PlayScratch)
			games.POST("/wheel", d.Game.SpinWheel)

			crash := games.Group("/crash")
			{
				crash.POST("/start", d.Game.StartCrash)
				crash.POST("/cashout", d.Game.CashoutCrash)
				crash.POST("/abandon", d.Game.AbandonCrash)
				crash.GET("/active", d.Game.GetActiveRounds)
			}

			games.GET("/history", d.Game.GetRoundHistory)
			games.GET("/rounds/:id", d.Game.GetRound)
			games.GET("/verification", d.Game.GetVerificationData)
			games.POST("/client-seed", d.Game.SetClientSeed)
			games.POST("/verify", d.Game.VerifyRound)
		}

		protected.POST("/deposits", d.Wallet.Deposit)
		protected.POST("/withdrawals", d.Wallet.Withdraw)
		protected.GET("/rewards", d.Wallet.ListRewards)
		protected.POST("/rewards/:id/claim", d.Wallet.ClaimReward)
		protected.POST("/referrals", d.Wallet.RegisterReferral)

		protected.GET("/draws", d.Lottery.ListDraws)
		protected.POST("/draws/:id/tickets", d.Lottery.BuyTicket)

		admin := protected.Group("/admin")
		admin.Use(middleware.AdminOnly())
		{
			admin.GET("/withdrawals/pending", d.Admin.PendingWithdrawals)
			admin.POST("/withdrawals/:id/resolve", d.Admin.ResolveWithdrawal)
			admin.POST("/payments/:id/resolve", d.Admin.ResolvePayment)
			admin.POST("/draws", d.Lottery.CreateDraw)
			admin.POST("/draws/:id/run", d.Lottery.RunDraw)
			admin.POST("/seed/rotate", d.Game.RotateSeed)
		}
	}

	return router
}
