// Package writer archives flushed market batches as parquet files in S3,
// partitioned by date, for offline odds analysis and dispute replay.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "betflow/config"
	"betflow/logger"
	"betflow/models"
)

// ParquetRecord is one price rung of one runner, flattened for columnar
// storage. A market snapshot expands into one row per rung.
type ParquetRecord struct {
	BatchID     string  `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarketID    string  `parquet:"name=market_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status      string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	InPlay      bool    `parquet:"name=in_play, type=BOOLEAN"`
	SelectionID string  `parquet:"name=selection_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RunnerName  string  `parquet:"name=runner_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side        string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Odds        float64 `parquet:"name=odds, type=DOUBLE"`
	Amount      float64 `parquet:"name=amount, type=DOUBLE"`
	Level       int32   `parquet:"name=level, type=INT32"`
	Timestamp   int64   `parquet:"name=timestamp, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

type archiveWriter struct {
	config      *appconfig.Config
	batches     <-chan models.MarketBatch
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	rows        []ParquetRecord
	flushTicker *time.Ticker
}

// ArchiveWriter is an exported alias for archiveWriter allowing external
// packages to interact with the writer while keeping the underlying
// implementation private.
type ArchiveWriter = archiveWriter

func newArchiveWriter(cfg *appconfig.Config, batches <-chan models.MarketBatch) (*archiveWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archive_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	w := &archiveWriter{
		config:   cfg,
		batches:  batches,
		s3Client: s3.NewFromConfig(awsConfig),
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
		"prefix": cfg.Storage.S3.Prefix,
	}).Info("archive writer initialized")

	return w, nil
}

// NewArchiveWriter constructs a new ArchiveWriter instance.
func NewArchiveWriter(cfg *appconfig.Config, batches <-chan models.MarketBatch) (*ArchiveWriter, error) {
	return newArchiveWriter(cfg, batches)
}

func (w *archiveWriter) start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting archive writer")

	interval := w.config.Storage.S3.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	w.flushTicker = time.NewTicker(interval)

	w.wg.Add(1)
	go w.consumeWorker()
	w.wg.Add(1)
	go w.flushWorker()

	log.Info("archive writer started successfully")
	return nil
}

func (w *archiveWriter) stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *archiveWriter) consumeWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "consume"})
	log.Info("starting consume worker")

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.batches:
			if !ok {
				log.Info("batch channel closed, worker stopping")
				return
			}
			w.addBatch(batch)
		}
	}
}

// addBatch flattens a market batch into parquet rows, one per price rung.
func (w *archiveWriter) addBatch(batch models.MarketBatch) {
	ts := batch.FlushedAt.UnixMilli()
	var rows []ParquetRecord
	for _, m := range batch.Markets {
		for _, r := range m.Runners {
			for i, ps := range r.Back {
				rows = append(rows, ParquetRecord{
					BatchID:     batch.BatchID,
					MarketID:    m.MarketID,
					Status:      m.Status,
					InPlay:      m.InPlay,
					SelectionID: r.SelectionID,
					RunnerName:  r.Name,
					Side:        "back",
					Odds:        ps.Odds,
					Amount:      ps.Amount,
					Level:       int32(i + 1),
					Timestamp:   ts,
				})
			}
			for i, ps := range r.Lay {
				rows = append(rows, ParquetRecord{
					BatchID:     batch.BatchID,
					MarketID:    m.MarketID,
					Status:      m.Status,
					InPlay:      m.InPlay,
					SelectionID: r.SelectionID,
					RunnerName:  r.Name,
					Side:        "lay",
					Odds:        ps.Odds,
					Amount:      ps.Amount,
					Level:       int32(i + 1),
					Timestamp:   ts,
				})
			}
		}
	}
	if len(rows) == 0 {
		return
	}
	w.mu.Lock()
	w.rows = append(w.rows, rows...)
	w.mu.Unlock()
}

func (w *archiveWriter) flushWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flushRows("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flushRows("interval")
		}
	}
}

func (w *archiveWriter) flushRows(reason string) {
	w.mu.Lock()
	rows := w.rows
	w.rows = nil
	w.mu.Unlock()

	if len(rows) == 0 {
		return
	}

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"rows":   len(rows),
		"reason": reason,
	})
	log.Info("flushing archive rows")

	key := w.generateS3Key(time.Now())
	log = log.WithFields(logger.Fields{"s3_key": key})

	data, err := w.createParquetFile(rows)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.uploadToS3(key, data); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).
			Error("failed to upload to S3")
		return
	}
	logger.IncrementArchiveWrite(int64(len(data)))

	log.WithFields(logger.Fields{"file_size": len(data)}).Info("archive flushed and uploaded successfully")
}

func (w *archiveWriter) generateS3Key(ts time.Time) string {
	ts = ts.UTC()
	key := filepath.Join(
		w.config.Storage.S3.Prefix,
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("markets_%s_%s.parquet", ts.Format("20060102150405"), uuid.New().String()),
	)
	return filepath.ToSlash(key)
}

func (w *archiveWriter) createParquetFile(rows []ParquetRecord) ([]byte, error) {
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"rows":      len(rows),
		"operation": "create_parquet_file",
	})
	log.Debug("creating parquet file")

	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Storage.S3.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (w *archiveWriter) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"compression":     w.config.Storage.S3.Compression,
			"betflow-version": w.config.Betflow.Version,
		},
	}

	ctx := context.WithoutCancel(w.ctx)
	if _, err := w.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}

// Start exposes the start method of archiveWriter.
func (w *ArchiveWriter) Start(ctx context.Context) error { return w.start(ctx) }

// Stop exposes the stop method of archiveWriter.
func (w *ArchiveWriter) Stop() { w.stop() }
