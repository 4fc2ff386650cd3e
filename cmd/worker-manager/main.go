// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"decision-workers/internal/alerting"
	awsx "decision-workers/internal/common/aws"
	"decision-workers/internal/common/camunda"
	"decision-workers/internal/common/config"
	"decision-workers/internal/common/database"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/observability"
	"decision-workers/internal/confirmation"
	"decision-workers/internal/conversation"
	"decision-workers/internal/events"
	"decision-workers/internal/intent"
	"decision-workers/internal/notify"
	"decision-workers/pkg/registry"

	cs "decision-workers/internal/workers/alerting/classify-severity"
	ci "decision-workers/internal/workers/conversation/classify-intent"
	ucs "decision-workers/internal/workers/conversation/update-conversation-state"
	ea "decision-workers/internal/workers/decision/execute-action"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"app":         cfg.App.Name,
		"environment": cfg.App.Environment,
	})

	zapLog.Info("Starting worker manager...", zap.String("version", cfg.App.Version))

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.UsePlaintext,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.Timeout),
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	hub := events.NewHub()

	// --- Severity classifier ---
	def := alerting.DefinitionFromConfig(cfg.Alerts)
	if cfg.Alerts.RegistryPath != "" {
		file, err := registry.LoadRegistry(cfg.Alerts.RegistryPath)
		if err != nil {
			zapLog.Fatal("alert rules registry unreadable", zap.String("path", cfg.Alerts.RegistryPath), zap.Error(err))
		}
		if problems := file.Lint(); len(problems) > 0 {
			zapLog.Fatal("alert rules registry invalid", zap.Error(errors.Join(problems...)))
		}
		def = def.Merge(alerting.DefinitionFromFile(file))
	}
	rules, err := alerting.Build(def)
	if err != nil {
		zapLog.Fatal("alert rules invalid", zap.Error(err))
	}
	ingestor := alerting.NewIngestor(
		alerting.NewClassifier(rules, log),
		alerting.NewRedisDeduper(rdb.Cmdable(), config.GetDuration(cfg.Alerts.DedupTTL)),
		hub,
		log,
	)

	// --- Alert notifications ---
	var smsClient awsx.SNSService
	var emailClient awsx.SESService
	if cfg.Notifications.SMS.Enabled {
		var c *sns.Client
		if c, err = awsx.NewSNSClient(ctx, cfg.Notifications.AWS.Region); err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		smsClient = c
	}
	if cfg.Notifications.Email.Enabled {
		var c *ses.Client
		if c, err = awsx.NewSESClient(ctx, cfg.Notifications.AWS.Region); err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		emailClient = c
	}
	notifier, err := notify.NewNotifier(cfg.Notifications, smsClient, emailClient, log)
	if err != nil {
		zapLog.Fatal("notifier config invalid", zap.Error(err))
	}
	alertSub := notifier.Subscribe(hub.Alerts)
	defer alertSub.Unsubscribe()

	// --- Intent classifier ---
	completer, err := intent.NewCompleter(cfg.LLM, log)
	if err != nil {
		zapLog.Fatal("completer config invalid", zap.Error(err))
	}
	intentOpts := []intent.Option{intent.WithTimeout(config.GetDuration(cfg.LLM.Timeout))}
	if cfg.LLM.CacheTTL > 0 {
		intentOpts = append(intentOpts, intent.WithCache(intent.NewRedisCache(rdb.Cmdable(), config.GetDuration(cfg.LLM.CacheTTL))))
	}
	classifier := intent.NewClassifier(completer, log, intentOpts...)

	// --- Conversation state and decisions ---
	sessions := conversation.NewSessions(log, conversation.WithPublisher(hub.PendingActions))
	pins := events.NewPinboard(hub.Pins)
	executor := confirmation.NewExecutor(cfg.Actions, log)
	coordinator := confirmation.NewCoordinator(executor.Execute, hub, log)

	// --- Idle session sweep ---
	idleTimeout := config.GetDuration(cfg.Conversation.IdleTimeout)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Conversation.SweepSchedule, func() {
		for _, id := range sessions.Sweep(idleTimeout) {
			pins.Clear(id)
		}
	}); err != nil {
		zapLog.Fatal("invalid conversation.sweep_schedule", zap.String("schedule", cfg.Conversation.SweepSchedule), zap.Error(err))
	}
	scheduler.Start()
	zapLog.Info("Session sweep scheduled",
		zap.String("schedule", cfg.Conversation.SweepSchedule),
		zap.Duration("idleTimeout", idleTimeout),
	)

	// --- Workers ---
	workers := camunda.NewWorkerSet(zeebe.GetClient(), log)

	if csCfg := cs.NewConfig(cfg); csCfg.Enabled {
		handler, err := cs.NewHandler(cs.HandlerOptions{
			Config:        csCfg,
			Ingestor:      ingestor,
			Publisher:     zeebe,
			Observability: obs,
			Logger:        log,
		})
		if err != nil {
			zapLog.Fatal("failed to create classify-severity handler", zap.Error(err))
		}
		workers.Open(cs.TaskType, handler, camunda.WorkerOptions{MaxJobsActive: csCfg.MaxJobsActive, Timeout: csCfg.Timeout})
	}

	if ciCfg := ci.NewConfig(cfg); ciCfg.Enabled {
		handler, err := ci.NewHandler(ci.HandlerOptions{
			Config:        ciCfg,
			Classifier:    classifier,
			Sessions:      sessions,
			Observability: obs,
			Logger:        log,
		})
		if err != nil {
			zapLog.Fatal("failed to create classify-intent handler", zap.Error(err))
		}
		workers.Open(ci.TaskType, handler, camunda.WorkerOptions{MaxJobsActive: ciCfg.MaxJobsActive, Timeout: ciCfg.Timeout})
	}

	if ucsCfg := ucs.NewConfig(cfg); ucsCfg.Enabled {
		handler, err := ucs.NewHandler(ucs.HandlerOptions{
			Config:        ucsCfg,
			Sessions:      sessions,
			Pins:          pins,
			Observability: obs,
			Logger:        log,
		})
		if err != nil {
			zapLog.Fatal("failed to create update-conversation-state handler", zap.Error(err))
		}
		workers.Open(ucs.TaskType, handler, camunda.WorkerOptions{MaxJobsActive: ucsCfg.MaxJobsActive, Timeout: ucsCfg.Timeout})
	}

	if eaCfg := ea.NewConfig(cfg); eaCfg.Enabled {
		handler, err := ea.NewHandler(ea.HandlerOptions{
			Config:        eaCfg,
			Coordinator:   coordinator,
			Sessions:      sessions,
			Observability: obs,
			Logger:        log,
		})
		if err != nil {
			zapLog.Fatal("failed to create execute-action handler", zap.Error(err))
		}
		workers.Open(ea.TaskType, handler, camunda.WorkerOptions{MaxJobsActive: eaCfg.MaxJobsActive, Timeout: eaCfg.Timeout})
	}

	zapLog.Info("Workers registered", zap.Strings("taskTypes", workers.TaskTypes()))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := zeebe.HealthCheck(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		if err := rdb.Ping(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers.Close()
	<-scheduler.Stop().Done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
