package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/config"
	"github.com/iliyamo/departure-seat-lock/internal/database"
	"github.com/iliyamo/departure-seat-lock/internal/handler"
	"github.com/iliyamo/departure-seat-lock/internal/middleware"
	"github.com/iliyamo/departure-seat-lock/internal/queue"
	"github.com/iliyamo/departure-seat-lock/internal/repository"
	"github.com/iliyamo/departure-seat-lock/internal/router"
	"github.com/iliyamo/departure-seat-lock/internal/service"
)

// seatStore is what the server needs from either store driver.
type seatStore interface {
	booking.Store
	booking.DepartureRegistry
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Infof("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			j := log.JSON{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			}
			if owner := middleware.OwnerRef(c); owner != "" {
				j["owner_ref"] = owner
			}
			if v.Error != nil {
				j["error"] = v.Error.Error()
				c.Logger().Errorj(j)
				return nil
			}
			c.Logger().Infoj(j)
			return nil
		},
	}))

	sinks := booking.MultiSink{booking.NewLogSink(e.Logger)}
	var publisher *service.Publisher
	if cfg.QueueEnabled {
		publisher = service.NewPublisher(cfg.AMQPURL, cfg.HoldQueue, 0)
		sinks = append(sinks, publisher)
	}

	mgr := booking.NewManager(store, clockwork.NewRealClock(), sinks, booking.Config{HoldTTL: cfg.HoldTTL})

	// Redis is optional; without it rate limiting and caching are off.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warnf("redis unavailable: rate limiting and availability cache disabled")
	} else {
		defer rdb.Close()
	}

	var ready echo.HandlerFunc
	if db != nil {
		ready = handler.Ready(db)
	} else {
		ready = handler.Ready(nil)
	}
	router.RegisterRoutes(e, ready)
	router.RegisterBooking(e,
		handler.NewHoldHandler(mgr),
		handler.NewDepartureHandler(store),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Infof("listening on %s (env=%s, store=%s, hold_ttl=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.HoldTTL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.SweepInterval > 0 {
		sweeper := booking.NewSweeper(mgr, cfg.SweepInterval)
		g.Go(func() error { return sweeper.Run(gctx) })
	}
	if publisher != nil {
		g.Go(func() error { return ignoreCancel(publisher.Run(gctx)) })
		g.Go(func() error {
			return ignoreCancel(queue.StartHoldConsumer(gctx, cfg.AMQPURL, cfg.HoldQueue, cfg.HoldLogDir))
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Info("server stopped")
}

// openStore returns the configured store and, for mysql, its handle.
func openStore(ctx context.Context, cfg config.Config) (seatStore, *sql.DB) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warnf("using in-memory store: state is lost on exit and not shared between nodes")
		return booking.NewMemoryStore(cfg.LockWait), nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if cfg.DBMigrate {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := database.Migrate(mctx, db); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
	}
	return repository.NewStore(db, cfg.LockWait), db
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
