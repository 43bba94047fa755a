package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/linode-vlan/ipallocator/internal/allocator"
	"github.com/linode-vlan/ipallocator/internal/cloudinventory"
	"github.com/linode-vlan/ipallocator/internal/config"
	"github.com/linode-vlan/ipallocator/internal/handler"
	"github.com/linode-vlan/ipallocator/internal/health"
	"github.com/linode-vlan/ipallocator/internal/metrics"
	"github.com/linode-vlan/ipallocator/internal/refresh"
	"github.com/linode-vlan/ipallocator/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	metrics.Register()

	cfg, err := config.LoadFromFileOrEnv(config.DefaultConfigPath())
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	storeClient := store.NewClient(cfg.EtcdEndpoints)

	cloudClient, err := cloudinventory.NewClient(cloudinventory.Config{
		Token:                      cfg.LinodeToken,
		MaxAttempts:                cfg.CloudMaxAttempts,
		MaxConcurrentConfigFetches: cfg.CloudMaxConcurrent,
	})
	if err != nil {
		log.Fatalf("cloud inventory client error: %v", err)
	}

	alloc, err := allocator.New(storeClient, cloudClient, cfg.Region, cfg.EtcdPrefix, cfg.Subnet, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("allocator init error: %v", err)
	}

	k8sClient, err := inClusterClientset()
	if err != nil {
		log.Printf("warning: kubernetes client unavailable, refresh endpoints will error: %v", err)
	}
	var refreshOrchestrator *refresh.Orchestrator
	if k8sClient != nil {
		refreshOrchestrator = refresh.New(k8sClient, cfg.Namespace, cfg.RefreshManifestPath)
	}

	healthAggregator := health.New(cfg.HealthTimeout,
		&health.StoreChecker{StatusFunc: storeClient.Status},
		&health.CloudChecker{ProbeFunc: func(ctx context.Context) error {
			return cloudClient.ProbeRegion(ctx, cfg.Region)
		}},
		health.NewResourceChecker(resourceProbe()),
	)

	r := buildRouter(alloc, healthAggregator, refreshOrchestrator)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		fmt.Println("shutdown signal received, draining HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			fmt.Printf("error during graceful shutdown: %v\n", err)
		}
	}()

	fmt.Printf("vlan ip allocator %s (%s) starting on %s, region=%s\n", version, commit, srv.Addr, cfg.Region)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("server failed to start: %v\n", err)
	}
}

func buildRouter(alloc *allocator.Allocator, healthAgg *health.Aggregator, refreshOrch *refresh.Orchestrator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handler.RequestIDMiddleware())
	r.Use(handler.CORSMiddleware())
	r.Use(metrics.GinMiddleware())

	allocateHandler := handler.NewAllocateHandler(alloc)
	healthHandler := handler.NewHealthHandler(healthAgg)

	r.POST("/allocate", allocateHandler.Allocate)
	r.POST("/release", allocateHandler.Release)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/api/v1")
	v1.GET("/vlan-ips", allocateHandler.ListVLANIPs)

	if refreshOrch != nil {
		refreshHandler := handler.NewRefreshHandler(refreshOrch)
		v1.POST("/refresh", refreshHandler.StartRefresh)
		v1.GET("/refresh/:run/detail", refreshHandler.GetRefreshDetail)
	}

	return r
}

func inClusterClientset() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

func resourceProbe() health.ResourceProbe {
	return health.LinuxProbe{}
}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.Signal(15)}
}
