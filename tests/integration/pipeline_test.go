package integration

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/email"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/ffmpeg"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/imgur"
	miniostorage "github.com/yash6967/BuyWhatYouSee-V01/internal/infra/minio"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/postgres"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/rabbitmq"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/serpapi"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/vision"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/usecase"
	"github.com/yash6967/BuyWhatYouSee-V01/pkg/logger"
)

// stubExternalServices stands in for the detector, the image host and
// the visual-search provider so the end-to-end path needs no network.
func stubExternalServices(t *testing.T) (detector, host, search *httptest.Server) {
	t.Helper()

	detector = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"x1": 10, "y1": 10, "x2": 60, "y2": 60, "confidence": 0.95, "class": 39},
				{"x1": 70, "y1": 10, "x2": 120, "y2": 60, "confidence": 0.81, "class": 41},
			},
		})
	}))
	t.Cleanup(detector.Close)

	host = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"link": "https://i.imgur.com/" + uuid.NewString()[:7] + ".png"},
		})
	}))
	t.Cleanup(host.Close)

	search = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"visual_matches": []map[string]any{
				{"title": "Stainless Steel Bottle", "link": "https://www.amazon.in/dp/B0TEST"},
				{"title": "Bottle review blog", "link": "https://bottleblog.example/post"},
			},
		})
	}))
	t.Cleanup(search.Close)

	return detector, host, search
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 160, 120))))
	return path
}

func TestProcessImageEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("bwys"),
		tcpostgres.WithUsername("bwys_user"),
		tcpostgres.WithPassword("bwys_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// Setup MinIO storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    minioEndpoint,
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		UseSSL:      false,
		MediaBucket: "uploads",
		CropBucket:  "crops",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Upload test image to MinIO
	testImagePath := writeTestImage(t)

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	mediaKey := "testuser/scene.png"
	_, err = minioClient.FPutObject(ctx, "uploads", mediaKey, testImagePath, miniogo.PutObjectOptions{
		ContentType: "image/png",
	})
	require.NoError(t, err)

	// Stub the external HTTP services
	detectorSrv, hostSrv, searchSrv := stubExternalServices(t)

	// Setup RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "bwys.media")
	require.NoError(t, err)

	resultPub := rabbitmq.NewResultPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "media.process.dlq")

	// Setup DB pool
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	// Setup use case
	log, _ := logger.New("debug")
	repo := postgres.NewRunRepository(pool)
	sampler := ffmpeg.NewSampler("png", log)
	detector := vision.NewClient(detectorSrv.URL, 30*time.Second, log)
	imgHost := imgur.NewClient(hostSrv.URL, "test-client-id", 30*time.Second)
	resolver := serpapi.NewClient(serpapi.Config{
		BaseURL:       searchSrv.URL,
		APIKey:        "test-key",
		Country:       "in",
		RetailDomains: []string{"www.amazon", "www.flipkart"},
		Timeout:       30 * time.Second,
		RatePerSec:    50,
	})
	notifier := email.NewSMTPNotifier("localhost", 1025, "noreply@bwys.local", log)

	uc := usecase.NewProcessMediaUseCase(
		repo, storage, sampler, detector, imgHost, resolver,
		resultPub, dlqPub, notifier,
		log,
		usecase.ProcessMediaConfig{
			TempDir:         t.TempDir(),
			MaxRetries:      3,
			FrameSkip:       30,
			ConfThreshold:   0.6,
			IoUThreshold:    0.3,
			CandidateFanout: 2,
		},
	)

	// Setup consumer
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "media.process",
		RoutingKey:  "media.process",
		Exchange:    "bwys.media",
		DLQ:         "media.process.dlq",
		ResultQueue: "media.result",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	// Start consumer in background
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	// Publish processing message
	runID := uuid.New()
	imageInfo, _ := os.Stat(testImagePath)
	processMsg := entity.MediaProcessMessage{
		RunID:     runID,
		UserID:    "testuser",
		MediaKey:  mediaKey,
		MediaKind: entity.MediaKindImage,
		FileSize:  imageInfo.Size(),
		UserEmail: "test@test.local",
	}
	msgBody, err := json.Marshal(processMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"bwys.media",
		"media.process",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for result message on media.result queue
	resultCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer resultCh.Close()

	resultMsgs, err := resultCh.Consume("media.result", "", true, false, false, false, nil)
	require.NoError(t, err)

	var resultMsg entity.MediaResultMessage
	select {
	case delivery := <-resultMsgs:
		err = json.Unmarshal(delivery.Body, &resultMsg)
		require.NoError(t, err)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for result message")
	}

	// Assert result
	assert.Equal(t, runID, resultMsg.RunID)
	assert.Equal(t, entity.RunStatusCompleted, resultMsg.Status)
	assert.Equal(t, 1, resultMsg.FrameCount)
	require.Len(t, resultMsg.Candidates, 2)

	for _, cand := range resultMsg.Candidates {
		assert.Equal(t, entity.CandidateStatusMatched, cand.Status)
		require.NotNil(t, cand.Published)
		assert.NotEmpty(t, cand.Published.URL)
		require.Len(t, cand.Matches, 2)
		assert.Equal(t, entity.MatchDomainRetail, cand.Matches[0].Domain)
		assert.Equal(t, entity.MatchDomainOther, cand.Matches[1].Domain)
		require.Len(t, cand.RetailMatches(), 1)
	}

	// Verify crop artifacts landed in the crops bucket
	for _, cand := range resultMsg.Candidates {
		require.NotEmpty(t, cand.CropKey)
		stat, err := minioClient.StatObject(ctx, "crops", cand.CropKey, miniogo.StatObjectOptions{})
		require.NoError(t, err)
		assert.Greater(t, stat.Size, int64(0))
	}

	// Verify run record in database
	var dbStatus string
	var dbCandidates, dbMatched int
	err = pool.QueryRow(ctx,
		"SELECT status, candidate_count, matched_count FROM pipeline_runs WHERE id=$1", runID,
	).Scan(&dbStatus, &dbCandidates, &dbMatched)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 2, dbCandidates)
	assert.Equal(t, 2, dbMatched)

	var dbResults int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM candidate_results WHERE run_id=$1", runID,
	).Scan(&dbResults)
	require.NoError(t, err)
	assert.Equal(t, 2, dbResults)

	// Redeliver the same message: the run must complete again and the
	// result save must overwrite, not duplicate or exhaust retries.
	pubCh, err = rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"bwys.media",
		"media.process",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	var redeliveredMsg entity.MediaResultMessage
	select {
	case delivery := <-resultMsgs:
		err = json.Unmarshal(delivery.Body, &redeliveredMsg)
		require.NoError(t, err)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for redelivered result message")
	}
	assert.Equal(t, entity.RunStatusCompleted, redeliveredMsg.Status)
	require.Len(t, redeliveredMsg.Candidates, 2)

	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM candidate_results WHERE run_id=$1", runID,
	).Scan(&dbResults)
	require.NoError(t, err)
	assert.Equal(t, 2, dbResults)

	// Stop consumer
	consumerCancel()

	t.Logf("Test passed: %d candidates resolved for run %s", len(resultMsg.Candidates), runID)
}

func TestProcessMediaMalformedMessageGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start PostgreSQL
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("bwys"),
		tcpostgres.WithUsername("bwys_user"),
		tcpostgres.WithPassword("bwys_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// MinIO (no media upload needed for this test)
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    minioEndpoint,
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		UseSSL:      false,
		MediaBucket: "uploads",
		CropBucket:  "crops",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	detectorSrv, hostSrv, searchSrv := stubExternalServices(t)

	// Setup
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	log, _ := logger.New("debug")
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "bwys.media")
	require.NoError(t, err)

	resultPub := rabbitmq.NewResultPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "media.process.dlq")

	repo := postgres.NewRunRepository(pool)
	sampler := ffmpeg.NewSampler("png", log)
	detector := vision.NewClient(detectorSrv.URL, 30*time.Second, log)
	imgHost := imgur.NewClient(hostSrv.URL, "test-client-id", 30*time.Second)
	resolver := serpapi.NewClient(serpapi.Config{
		BaseURL:    searchSrv.URL,
		APIKey:     "test-key",
		Country:    "in",
		Timeout:    30 * time.Second,
		RatePerSec: 50,
	})
	notifier := email.NewSMTPNotifier("localhost", 1025, "noreply@bwys.local", log)

	uc := usecase.NewProcessMediaUseCase(
		repo, storage, sampler, detector, imgHost, resolver,
		resultPub, dlqPub, notifier,
		log,
		usecase.ProcessMediaConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "media.process",
		RoutingKey:  "media.process",
		Exchange:    "bwys.media",
		DLQ:         "media.process.dlq",
		ResultQueue: "media.result",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()
	time.Sleep(500 * time.Millisecond)

	// Publish malformed message
	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"bwys.media",
		"media.process",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("media.process.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	consumerCancel()
	t.Log("Test passed: malformed message sent to DLQ")
}
