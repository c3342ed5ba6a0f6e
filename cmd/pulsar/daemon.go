package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/manifest"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/offline"
	"github.com/oriys/pulsar/internal/push"
	"github.com/oriys/pulsar/internal/realtime"
)

func daemonCmd() *cobra.Command {
	var (
		listenAddr string
		originURL  string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the Pulsar edge gateway daemon",
		Long:  "Run Pulsar as the offline caching gateway, with the optional realtime delivery client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("listen") {
				cfg.Edge.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("origin") {
				cfg.Edge.OriginURL = originURL
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}

			logging.Init(cfg.Logging.Format, cfg.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    cfg.Tracing.Exporter,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New(cfg.Metrics.Namespace)
			}

			// The cache store: Redis when configured, so every edge
			// instance shares one cache and sees activation broadcasts;
			// in-memory otherwise.
			var (
				store       cache.Store
				invalidator *cache.Invalidator
			)
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				if err := client.Ping(context.Background()).Err(); err != nil {
					return fmt.Errorf("redis ping: %w", err)
				}
				store = cache.NewRedisStoreFromClient(client, "")
				invalidator = cache.NewInvalidator(store, client)
				go invalidator.Start(context.Background())
				defer invalidator.Close()
				logging.Op().Info("using redis cache store", "addr", cfg.Redis.Addr)
			} else {
				store = cache.NewMemoryStore()
				logging.Op().Info("using in-memory cache store")
			}
			defer store.Close()

			assets := manifest.Default()
			if cfg.Cache.ManifestPath != "" {
				var err error
				assets, err = manifest.Load(cfg.Cache.ManifestPath)
				if err != nil {
					return fmt.Errorf("load asset manifest: %w", err)
				}
			}

			mgrCfg := offline.Config{
				Store:     store,
				Namespace: cfg.Cache.Version,
				Origin:    cfg.Edge.OriginURL,
				APIPrefix: cfg.Edge.APIPrefix,
				Manifest:  assets,
				Metrics:   m,
			}
			if invalidator != nil {
				mgrCfg.Publisher = invalidator
			}
			manager, err := offline.New(mgrCfg)
			if err != nil {
				return fmt.Errorf("create cache manager: %w", err)
			}

			// Install primes the core assets, activate retires previous
			// cache generations. Priming is best effort; a cold origin
			// only delays the first cache-first hit.
			installCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := manager.Install(installCtx); err != nil {
				logging.Op().Warn("install pass failed", "error", err)
			}
			if err := manager.Activate(installCtx); err != nil {
				cancel()
				return fmt.Errorf("activate cache generation: %w", err)
			}
			cancel()

			var rt *realtime.Client
			if cfg.Realtime.Enabled {
				rt = startRealtime(cfg, m)
				defer rt.Disconnect()
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				if err := store.Ping(r.Context()); err != nil {
					http.Error(w, "cache store unreachable", http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "ok")
			})
			if m != nil {
				mux.Handle("/metrics", m.Handler())
			}
			mux.Handle("/", observability.HTTPMiddleware(manager))

			srv := &http.Server{
				Addr:              cfg.Edge.ListenAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Op().Info("pulsar edge gateway started",
					"addr", cfg.Edge.ListenAddr, "origin", cfg.Edge.OriginURL,
					"namespace", cfg.Cache.Version)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				logging.Op().Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8090", "Listen address")
	cmd.Flags().StringVar(&originURL, "origin", "", "Origin backend base URL")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	return cmd
}

// startRealtime connects the delivery client and bridges its
// notification channels into the push display pipeline. The connection
// is established in the background so a dead backend does not block
// gateway startup.
func startRealtime(cfg *config.Config, m *metrics.Metrics) *realtime.Client {
	displayer := push.NewLogDisplayer(m)

	client := realtime.NewClient(realtime.Config{
		Endpoint:             cfg.Realtime.Endpoint,
		Origin:               cfg.Edge.OriginURL,
		TokenSource:          tokenSource(cfg.Realtime),
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		BackoffBase:          cfg.Realtime.BackoffBase,
		Metrics:              m,
	})

	client.On(realtime.ChannelRealTimeNotification, func(payload any) {
		n, ok := payload.(realtime.RealTimeNotification)
		if !ok {
			return
		}
		p := push.Payload{Title: n.Title, Body: n.Body}
		p.Data.URL = n.URL
		if err := displayer.Display(context.Background(), p.Notification()); err != nil {
			logging.Op().Warn("display notification", "error", err)
		}
	})
	client.On(realtime.ChannelNotification, func(payload any) {
		n, ok := payload.(realtime.Notification)
		if !ok {
			return
		}
		logging.Op().Info("user notification",
			"id", n.ID, "kind", n.Kind, "actor", n.ActorID)
	})
	client.On(realtime.ChannelAuthError, func(any) {
		logging.Op().Warn("realtime session invalid, reconnect with a fresh token")
	})

	go func() {
		if err := client.Connect(context.Background(), resolveToken(cfg.Realtime)); err != nil {
			logging.Op().Warn("realtime connect", "error", err)
		}
	}()
	return client
}

// tokenSource re-reads the token file on every connection attempt so an
// externally rotated credential is picked up without a restart.
func tokenSource(cfg config.RealtimeConfig) realtime.TokenSource {
	return realtime.TokenSourceFunc(func() string {
		return resolveToken(cfg)
	})
}

func resolveToken(cfg config.RealtimeConfig) string {
	if cfg.TokenFile != "" {
		if data, err := os.ReadFile(cfg.TokenFile); err == nil {
			if tok := strings.TrimSpace(string(data)); tok != "" {
				return tok
			}
		} else {
			logging.Op().Warn("read token file", "path", cfg.TokenFile, "error", err)
		}
	}
	return cfg.Token
}
