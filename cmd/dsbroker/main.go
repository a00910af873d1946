package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dsbroker/broker/internal/adminapi"
	"github.com/dsbroker/broker/internal/audit"
	"github.com/dsbroker/broker/internal/config"
	"github.com/dsbroker/broker/internal/events"
	"github.com/dsbroker/broker/internal/metrics"
	"github.com/dsbroker/broker/internal/node"
	"github.com/dsbroker/broker/internal/runtime"
	"github.com/dsbroker/broker/internal/upstream"
	"github.com/dsbroker/broker/pkg/log"
	"github.com/dsbroker/broker/pkg/permission"
	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var flagGops bool
	var flagConfigFile, flagEnvFile string
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options with those specified in `config.json`")
	flag.StringVar(&flagEnvFile, "env", "./.env", "Load environment variables from `file`")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err)
		}
	}

	if err := runtime.LoadEnv(flagEnvFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing %q failed: %s", flagEnvFile, err)
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}
	cfg := config.Keys

	auditLog, err := audit.Open(cfg.AuditDB)
	if err != nil {
		log.Fatalf("opening audit log: %s", err)
	}
	defer auditLog.Close()

	eventPublisher, err := events.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatalf("connecting to nats: %s", err)
	}
	defer eventPublisher.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	root := node.New("", node.Internal)
	root.SetList(permission.List{
		{Group: permission.DefaultGroup, Level: permission.Read},
	})

	sys := node.New("sys", node.Internal)
	root.AddChild(sys)
	sysUpstream := node.New("upstream", node.Internal)
	sys.AddChild(sysUpstream)
	dataUpstream := node.New("upstream", node.Internal)
	root.AddChild(dataUpstream)

	registry, err := upstream.New(upstream.Config{
		StorageRoot: cfg.StorageRoot,
		SysParent:   sysUpstream,
		DataParent:  dataUpstream,
		Metrics:     collector,
		Hooks: &upstream.Hooks{
			OnLifecycle: func(ev upstream.LifecycleEvent) {
				auditLog.RecordLifecycle(ev.Name, ev.Kind.String())
				eventPublisher.PublishUpstreamLifecycle(ev.Name, ev.Kind.String())
				switch ev.Kind {
				case upstream.Disabled:
					collector.ObservePendingAction(upstream.PendingStop.String())
				case upstream.Reset:
					collector.ObservePendingAction(upstream.PendingReset.String())
				case upstream.Deleted:
					collector.ObservePendingAction(upstream.PendingDelete.String())
				}
			},
		},
	})
	if err != nil {
		log.Fatalf("building upstream registry: %s", err)
	}

	if err := registry.EnsureStorage(); err != nil {
		log.Fatalf("preparing storage root: %s", err)
	}
	if err := registry.Load(); err != nil {
		log.Fatalf("loading upstream entries: %s", err)
	}
	registry.Start()
	defer registry.Shutdown()

	var wg sync.WaitGroup
	var admin *adminapi.Server

	if cfg.AdminAddr != "" {
		admin = adminapi.New(cfg.AdminAddr, root, registry, auditLog, collector, eventPublisher)
		adminErrc := admin.Start()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := <-adminErrc; err != nil && err != http.ErrServerClosed {
				log.Errorf("adminapi: %s", err)
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("metrics: listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics: %s", err)
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtime.SystemdNotify(true, "running")
	<-sigs

	runtime.SystemdNotify(false, "shutting down")
	if admin != nil {
		admin.Shutdown()
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(ctx)
		cancel()
	}
	wg.Wait()
	log.Print("shutdown complete")
}
