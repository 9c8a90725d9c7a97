package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fifobook/api/grpcserver"
	"fifobook/api/httpserver"
	"fifobook/config"
	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
	"fifobook/infra/kafka"
	"fifobook/infra/outbox"
	"fifobook/infra/sequence"
	entrywal "fifobook/infra/wal/entry"
	"fifobook/jobs/broadcaster"
	"fifobook/pkg/logger"
	"fifobook/service"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.WithError(err).Fatal("invalid configuration")
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Component("main")
	log.WithField("config", cfg.String()).Info("starting fifobook")

	// ---------------- Entry WAL ----------------

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.Storage.WALDir,
		SegmentSize:     cfg.Storage.SegmentSize,
		SegmentDuration: cfg.Storage.SegmentDuration,
	})
	if err != nil {
		log.WithError(err).Fatal("entry WAL init failed")
	}
	defer entryWAL.Close()

	// ---------------- Outbox ----------------

	var store service.MatchStore
	var box *outbox.Outbox
	if cfg.Kafka.PublishMatches {
		box, err = outbox.Open(cfg.Storage.OutboxDir)
		if err != nil {
			log.WithError(err).Fatal("outbox init failed")
		}
		defer box.Close()
		store = box
	}

	// ---------------- Domain ----------------

	book := orderbook.NewOrderBook(orderbook.WithObserver(orderbook.ObserverFunc(func(m orderbook.Match) {
		if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
			logger.Component("book").WithFields(logrus.Fields{
				"buy_order_id":  m.BuyID,
				"sell_order_id": m.SellID,
				"price":         m.Price,
				"quantity":      m.Qty,
			}).Debug("match")
		}
	})))

	// ---------------- Service + recovery ----------------

	svc := service.NewOrderService(book, sequence.New(0), entryWAL, store)
	if err := svc.Recover(cfg.Storage.SnapshotDir); err != nil {
		log.WithError(err).Fatal("recovery failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Background Jobs ----------------

	if cfg.Storage.SnapshotInterval > 0 {
		svc.StartSnapshotJob(ctx, cfg.Storage.SnapshotDir, cfg.Storage.SnapshotInterval)
	}

	if box != nil {
		bc, err := broadcaster.New(box, cfg.Kafka.Brokers, cfg.Kafka.MatchTopic, cfg.Kafka.BroadcastInterval)
		if err != nil {
			log.WithError(err).Fatal("broadcaster init failed")
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	if cfg.Kafka.ConsumeQueries {
		results := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ResultTopic)
		defer results.Close()

		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.QueryTopic,
			GroupID: cfg.Kafka.GroupID,
		}, results, func(ctx context.Context, src codec.Source, q orderbook.Query) (uint64, []orderbook.Match, error) {
			res, err := svc.SubmitFrom(ctx, src, q)
			return res.Seq, res.Matches, err
		})
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.WithError(err).Error("query consumer stopped")
				stop()
			}
		}()
	}

	// ---------------- gRPC ----------------

	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(svc, cfg.Engine.DepthLimit))
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.WithError(err).Fatal("gRPC listen failed")
		}
		go func() {
			log.WithField("addr", cfg.Server.GRPCAddr).Info("gRPC listening")
			if err := grpcSrv.Serve(lis); err != nil {
				log.WithError(err).Error("gRPC server exited")
				stop()
			}
		}()
	}

	// ---------------- HTTP ----------------

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpserver.NewRouter(httpserver.NewHandler(svc, cfg.Engine.PriceScale, cfg.Engine.DepthLimit)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.Server.HTTPAddr != "" {
		go func() {
			log.WithField("addr", cfg.Server.HTTPAddr).Info("HTTP listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP server exited")
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	if cfg.Storage.SnapshotInterval > 0 {
		if _, err := svc.TakeSnapshot(cfg.Storage.SnapshotDir); err != nil {
			log.WithError(err).Warn("final snapshot failed")
		}
	}
}
