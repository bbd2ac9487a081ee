package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/etcd"
	"github.com/ivy-net/Ivynet-sub000/internal/heartbeat"
	"github.com/ivy-net/Ivynet-sub000/internal/ingress"
	"github.com/ivy-net/Ivynet-sub000/internal/logger"
	"github.com/ivy-net/Ivynet-sub000/internal/notify"
	"github.com/ivy-net/Ivynet-sub000/internal/store"
	"github.com/ivy-net/Ivynet-sub000/internal/sweepelect"
)

func main() {
	app := &cli.App{
		Name:    "ivynet-ingress",
		Usage:   "Ivynet ingress - receives agent reports and derives alerts",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "0.0.0.0",
				EnvVars: []string{"IVYNET_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				EnvVars: []string{"IVYNET_PORT"},
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "Database connection string (sqlite://path/to/db.sqlite or postgresql://...)",
				Value:   "sqlite://./data/ingress.db",
				EnvVars: []string{"IVYNET_DATABASE"},
			},
			&cli.Int64Flag{
				Name:    "single-tenant-org-id",
				Usage:   "Organisation ID newly registered machines are assigned to",
				Value:   1,
				EnvVars: []string{"IVYNET_ORG_ID"},
			},
			&cli.StringSliceFlag{
				Name:    "etcd-endpoints",
				Usage:   "Etcd endpoints for sweep-leader election (comma-separated). If empty, runs in single-instance mode",
				EnvVars: []string{"IVYNET_ETCD_ENDPOINTS"},
			},
			&cli.DurationFlag{
				Name:    "heartbeat-ttl",
				Value:   heartbeat.DefaultTTL,
				EnvVars: []string{"IVYNET_HEARTBEAT_TTL"},
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Value:   heartbeat.DefaultSweepInterval,
				EnvVars: []string{"IVYNET_SWEEP_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "sendgrid-api-key",
				EnvVars: []string{"IVYNET_SENDGRID_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "alert-from-email",
				Value:   "alerts@ivynet.example",
				EnvVars: []string{"IVYNET_ALERT_FROM_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "pagerduty-events-url",
				EnvVars: []string{"IVYNET_PAGERDUTY_EVENTS_URL"},
			},
			&cli.StringFlag{
				Name:    "pagerduty-source",
				Value:   "ivynet-ingress",
				EnvVars: []string{"IVYNET_PAGERDUTY_SOURCE"},
			},
		},
		Action: runIngress,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runIngress(c *cli.Context) error {
	ctx, log := logger.PrepareLogger(context.Background())
	defer log.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	st, err := store.Open(ctx, c.String("database"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	versions := store.NewVersionCache(st)
	tracker := heartbeat.NewTracker(c.Duration("heartbeat-ttl"))
	dispatcher := notify.NewDispatcher(st, log)

	if apiKey := c.String("sendgrid-api-key"); apiKey != "" {
		email, err := notify.NewEmailAdapter(notify.EmailConfig{
			APIKey:    apiKey,
			FromEmail: c.String("alert-from-email"),
			FromName:  "Ivynet Alerts",
		})
		if err != nil {
			return fmt.Errorf("build email adapter: %w", err)
		}
		dispatcher.Register(ctx, email)
	}
	dispatcher.Register(ctx, notify.NewChatAdapter())
	dispatcher.Register(ctx, notify.NewPagingAdapter(c.String("pagerduty-events-url"), c.String("pagerduty-source")))

	server := ingress.NewServer(ingress.Deps{
		Store:      st,
		Versions:   versions,
		Heartbeats: tracker,
		Notifier:   dispatcher,
		Accounts:   ingress.DefaultAccountResolver{OrganisationID: c.Int64("single-tenant-org-id")},
		Logger:     log,
	})

	var etcdClient *etcd.Client
	if endpoints := c.StringSlice("etcd-endpoints"); len(endpoints) > 0 {
		etcdClient, err = etcd.NewClient(etcd.Config{Endpoints: endpoints, DialTimeout: 5 * time.Second})
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
	}

	coordinator := sweepelect.NewCoordinator(etcdClient, log)
	go func() {
		if err := coordinator.Campaign(ctx); err != nil {
			log.Error("sweep-leader campaign failed", zap.Error(err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-coordinator.Elected():
		}
		log.Info("holding sweep-leader seat, starting heartbeat sweep")
		stop := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stop)
		}()
		tracker.Run(stop, c.Duration("sweep-interval"), func(miss heartbeat.Miss) {
			server.HandleHeartbeatMiss(ctx, miss)
		})
	}()

	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	log.Info("ingress listening", zap.String("addr", addr))
	if err := server.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	log.Info("ingress stopped")
	return nil
}
