package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docsy-app/docsy/backend/go-services/handlers"
	"github.com/docsy-app/docsy/backend/go-services/internal/collab"
	"github.com/docsy-app/docsy/backend/go-services/internal/config"
	"github.com/docsy-app/docsy/backend/go-services/internal/database"
	docservice "github.com/docsy-app/docsy/backend/go-services/internal/document/service"
	"github.com/docsy-app/docsy/backend/go-services/internal/email"
	"github.com/docsy-app/docsy/backend/go-services/internal/invitations"
	"github.com/docsy-app/docsy/backend/go-services/internal/models"
	"github.com/docsy-app/docsy/backend/go-services/internal/oidc"
	"github.com/docsy-app/docsy/backend/go-services/internal/storage"
	"github.com/docsy-app/docsy/backend/go-services/internal/tokens"
	"github.com/docsy-app/docsy/backend/go-services/pkg/logger"
	"github.com/docsy-app/docsy/backend/go-services/pkg/metrics"
	"github.com/docsy-app/docsy/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v smtp=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.SMTP.Host != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond
	// to OPTIONS. Production deployments should front this with a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// Connect to Redis early so the rate-limiter and invitation counters can
	// use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional transport rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// shared runtime vars used by handlers/readiness
	var verifier middleware.Verifier
	var docsSvc docservice.Service
	var mongoBacked bool

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["storage"] = docsSvc != nil
		deps["mongo"] = mongoBacked
		if docsSvc == nil {
			ready = false
		}

		if verifier == nil {
			deps["auth"] = false
			ready = false
		} else {
			deps["auth"] = true
		}

		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		status := http.StatusOK
		label := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			label = "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Credential verifier selection: Keycloak OIDC, then shared-secret HMAC,
	// then (opt-in, integration only) signature-less parsing.
	ctx := context.Background()
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := strings.TrimRight(cfg.Keycloak.URL, "/")
		if cfg.Keycloak.Realm != "" {
			issuer += "/realms/" + cfg.Keycloak.Realm
		}
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil && cfg.JWT.Secret != "" {
		verifier = oidc.NewHMACVerifier(cfg.JWT.Secret)
		logger.Infof("using HMAC token verifier")
	}
	if verifier == nil {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
			logger.Warnf("enabling insecure token verifier (integration mode)")
			verifier = oidc.NewInsecureVerifier()
		}
	}

	// MongoDB-backed stores with retry/backoff to tolerate startup races;
	// in-memory fallback keeps local development working without a database.
	var invRepo invitations.Repository
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)
			docsSvc = docservice.NewMongoService(db.Collection("documents"))
			invRepo = invitations.NewMongoRepository(db.Collection("invitations"))
			mongoBacked = true
		}
	}
	if docsSvc == nil {
		logger.Warnf("using in-memory document and invitation stores; data will not survive restarts")
		docsSvc = docservice.NewMemoryService()
		invRepo = invitations.NewMemoryRepository()
	}

	// invitation issuance counters: shared via Redis when available
	var counter invitations.Counter
	if redisClient != nil {
		counter = invitations.NewRedisCounter(redisClient)
	} else {
		counter = invitations.NewMemoryCounter()
	}

	// invitation mail is best effort; without SMTP config links are only
	// returned through the API response
	var sender invitations.Sender
	mail := email.NewService(email.Config{
		Host: cfg.SMTP.Host, Port: cfg.SMTP.Port,
		Username: cfg.SMTP.Username, Password: cfg.SMTP.Password,
		From: cfg.SMTP.From, FromName: cfg.SMTP.FromName,
	})
	if mail.IsConfigured() {
		sender = mail
	} else {
		logger.Warnf("SMTP not configured; invitation mail disabled")
	}

	// optional snapshot archive
	var archiver collab.SnapshotArchiver
	if os.Getenv("MINIO_ENDPOINT") != "" {
		store, err := storage.NewMinIOStorage(storage.LoadMinIOConfig())
		if err != nil {
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			archiver = store
			logger.Infof("snapshot archive enabled")
		}
	}

	hub := collab.NewHub()
	invSvc := invitations.NewService(invRepo, docsSvc, counter, sender, hub, invitations.Options{
		TTL:            cfg.Invites.TTL,
		PerInviterHour: cfg.Invites.PerInviterHour,
		PerEmailPerDay: cfg.Invites.PerEmailPerDay,
		LinkBase:       cfg.Invites.LinkBase,
	})

	if verifier != nil {
		gateway := collab.NewGateway(hub, docsSvc, verifier, archiver)
		r.GET("/ws", gateway.Handle)

		handlers.RegisterInvitationRoutes(r, handlers.NewInvitationHandler(invSvc, cfg.Invites.LinkBase), verifier)

		// session-refresh tokens for long-lived editors, HMAC deployments only
		if cfg.JWT.Secret != "" {
			r.POST("/api/tokens/refresh", middleware.AuthMiddleware(verifier), func(c *gin.Context) {
				claims, _ := middleware.ClaimsFrom(c)
				u := models.PrincipalFromClaims(claims)
				if u == nil {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "claims carry no subject", "kind": "auth_error"})
					return
				}
				tok, err := tokens.GenerateAccessToken(cfg, u, cfg.JWT.AccessTokenTTL)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token", "kind": "storage_error"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"accessToken": tok, "expiresIn": int(cfg.JWT.AccessTokenTTL.Seconds())})
			})
		}
	} else {
		logger.Warnf("no credential verifier configured; realtime and invitation routes not registered")
	}

	handlers.RegisterSwagger(r)

	// periodic invitation expiry sweep; lookups also self-check on read
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := invSvc.SweepExpired(sctx)
			cancel()
			if err != nil {
				logger.Warnf("invitation sweep failed: %v", err)
			} else if n > 0 {
				logger.Infof("invitation sweep expired %d invitations", n)
			}
		}
	}()

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting collaboration service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
