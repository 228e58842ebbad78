package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/browser"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/config"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/email"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/ffmpeg"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/imgur"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/metrics"
	miniostorage "github.com/yash6967/BuyWhatYouSee-V01/internal/infra/minio"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/postgres"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/rabbitmq"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/serpapi"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/tracing"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/vision"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/usecase"
	"github.com/yash6967/BuyWhatYouSee-V01/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting bwys-pipeline-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    cfg.MinIOEndpoint,
		AccessKey:   cfg.MinIOAccessKey,
		SecretKey:   cfg.MinIOSecretKey,
		UseSSL:      cfg.MinIOUseSSL,
		MediaBucket: cfg.MinIOMediaBucket,
		CropBucket:  cfg.MinIOCropBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	resultPub := rabbitmq.NewResultPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	runRepo := postgres.NewRunRepository(pool)
	checkoutRepo := postgres.NewCheckoutRepository(pool)
	sampler := ffmpeg.NewSampler("png", log)
	detector := vision.NewClient(cfg.DetectorEndpoint, time.Duration(cfg.DetectorTimeoutSec)*time.Second, log)
	host := imgur.NewClient(cfg.ImgurBaseURL, cfg.ImgurClientID, time.Duration(cfg.ImgurTimeoutSec)*time.Second)
	resolver := serpapi.NewClient(serpapi.Config{
		BaseURL:       cfg.SerpAPIBaseURL,
		APIKey:        cfg.SerpAPIKey,
		Country:       cfg.SerpAPICountry,
		RetailDomains: cfg.RetailDomains,
		Timeout:       time.Duration(cfg.SerpAPITimeoutSec) * time.Second,
		RatePerSec:    cfg.SerpAPIRatePerSec,
	})
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)
	browsers := browser.NewFactory(cfg.BrowserHeadless, log)

	// Use cases
	processUC := usecase.NewProcessMediaUseCase(
		runRepo, storage, sampler, detector, host, resolver,
		resultPub, dlqPub, notifier,
		log,
		usecase.ProcessMediaConfig{
			TempDir:         cfg.TempDir,
			MaxRetries:      cfg.MaxRetries,
			FrameSkip:       cfg.FrameSkip,
			ConfThreshold:   cfg.ConfThreshold,
			IoUThreshold:    cfg.IoUThreshold,
			CandidateFanout: cfg.CandidateFanout,
		},
	)

	checkoutUC := usecase.NewCheckoutUseCase(
		browsers, checkoutRepo, resultPub, dlqPub, log,
		usecase.CheckoutConfig{
			SignInURL: cfg.RetailSignInURL,
			Credentials: usecase.RetailCredentials{
				Email:    cfg.RetailEmail,
				Password: cfg.RetailPassword,
			},
			Selectors: usecase.RetailSelectors{
				EmailField:      cfg.SelEmailField,
				PasswordField:   cfg.SelPasswordField,
				SignInSubmit:    cfg.SelSignInSubmit,
				ContinueButton:  cfg.SelContinueButton,
				BuyNow:          cfg.SelBuyNow,
				AddToCart:       cfg.SelAddToCart,
				ProceedCheckout: cfg.SelProceedCheckout,
			},
			StepTimeout: time.Duration(cfg.CheckoutStepSec) * time.Second,
		},
	)

	// Metrics server
	metricsSrv := metrics.NewServer(cfg.MetricsPort, log)
	metricsSrv.Start()

	// Consumers (worker pools)
	processConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQProcessQueue,
		RoutingKey:  "media.process",
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		ResultQueue: cfg.RabbitMQResultQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, processUC.Execute, log)
	fatalOnErr(err, "create process consumer")

	// The browser session is exclusive to one checkout attempt at a
	// time: one worker, no sharing.
	checkoutConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQCheckoutQueue,
		RoutingKey:  "checkout.request",
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		ResultQueue: cfg.RabbitMQResultQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, checkoutUC.Execute, log)
	fatalOnErr(err, "create checkout consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("bwys-pipeline-service started, consuming messages")

	go func() {
		if err := checkoutConsumer.Start(ctx); err != nil {
			log.Error("checkout consumer error", zap.Error(err))
		}
	}()

	if err := processConsumer.Start(ctx); err != nil {
		log.Error("process consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	processConsumer.Close()
	checkoutConsumer.Close()
	log.Info("bwys-pipeline-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
