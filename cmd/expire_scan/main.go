// Command expire_scan runs one expiration scan and exits. It enqueues every lot
// whose window has closed; the API process's workers expire them. Point an
// external scheduler at it when EXPIRATION_SWEEPER_ENABLED=false.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promos/internal/config"
	applogger "promos/internal/logger"
	"promos/internal/queue"
	"promos/internal/repositories"
	"promos/internal/repositories/cache"
	"promos/internal/services/ledger"
	"promos/internal/services/lots"
	"promos/internal/services/sweeper"
	"promos/internal/services/wallet"

	"github.com/sirupsen/logrus"
)

func main() {
	at := flag.Int64("at", 0, "scan as of this unix millisecond instant (default now)")
	recoverInFlight := flag.Bool("recover", false, "move abandoned in-flight batches back to the queue first")
	flag.Parse()

	config.LoadEnv()
	cfg := config.Load()
	log := applogger.New("promos-expire-scan", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.InitDB(cfg.DB, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	store := repositories.NewGormStore(db)
	lotService := lots.NewService(store, log)
	ledgerService := ledger.NewService(cfg.Ledger, store, wallet.NewService(store, nil, log), lotService, log, nil)
	expirations := queue.NewRedisQueue(redisClient, cfg.Sweeper.QueueName, cfg.Sweeper.PollTimeout)

	if *recoverInFlight {
		n, err := expirations.Recover(ctx)
		if err != nil {
			log.WithError(err).Fatal("failed to recover in-flight batches")
		}
		log.WithField("batches", n).Info("recovered in-flight batches")
	}

	now := time.Now()
	if *at > 0 {
		now = time.UnixMilli(*at)
	}

	sweep := sweeper.New(cfg.Sweeper, store, ledgerService, lotService, expirations, log, nil)
	result, err := sweep.Scan(ctx, now)
	if err != nil {
		log.WithError(err).Fatal("expiration scan failed")
	}
	log.WithFields(logrus.Fields{
		"lots":    result.Lots,
		"batches": result.Batches,
	}).Info("expiration scan enqueued")
}
