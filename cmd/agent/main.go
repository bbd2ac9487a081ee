package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/agent"
	"github.com/ivy-net/Ivynet-sub000/internal/config"
	"github.com/ivy-net/Ivynet-sub000/internal/dispatch"
	"github.com/ivy-net/Ivynet-sub000/internal/dockerwatch"
	"github.com/ivy-net/Ivynet-sub000/internal/identity"
	"github.com/ivy-net/Ivynet-sub000/internal/ingressclient"
	"github.com/ivy-net/Ivynet-sub000/internal/logger"
	"github.com/ivy-net/Ivynet-sub000/internal/metrics"
)

func main() {
	app := &cli.App{
		Name:    "ivynet-agent",
		Usage:   "Ivynet agent - scrapes local AVS nodes and reports to ingress",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ingress-url",
				Usage:   "Base URL of the ingress this agent reports to",
				Value:   "http://localhost:8080",
				EnvVars: []string{"IVYNET_INGRESS_URL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the agent's node configuration document",
				Value:   "./config/nodes.yaml",
				EnvVars: []string{"IVYNET_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "identity-file",
				Usage:   "Path where this machine's keypair and UUID are persisted across restarts",
				Value:   "./data/identity.key",
				EnvVars: []string{"IVYNET_IDENTITY_FILE"},
			},
			&cli.DurationFlag{
				Name:    "scrape-interval",
				Value:   agent.DefaultScrapeInterval,
				EnvVars: []string{"IVYNET_SCRAPE_INTERVAL"},
			},
			&cli.DurationFlag{
				Name:    "heartbeat-interval",
				Value:   agent.DefaultHeartbeatInterval,
				EnvVars: []string{"IVYNET_HEARTBEAT_INTERVAL"},
			},
			&cli.IntFlag{
				Name:    "dispatch-queue-capacity",
				Value:   256,
				EnvVars: []string{"IVYNET_DISPATCH_QUEUE_CAPACITY"},
			},
		},
		Action: runAgent,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runAgent(c *cli.Context) error {
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

	signer, err := loadOrGenerateSigner(c.String("identity-file"))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.Info("agent identity", zap.String("machine_id", signer.MachineID.String()), zap.String("operator_address", signer.Address().String()))

	doc, err := os.ReadFile(c.String("config"))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	nodes, err := config.Parse(doc)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("connect docker: %w", err)
	}
	defer dockerClient.Close()

	introspector := dockerwatch.NewIntrospector(dockerClient)
	scraper := metrics.NewScraper()
	caller := ingressclient.New(c.String("ingress-url"))
	bus := dispatch.NewBus(c.Int("dispatch-queue-capacity"), log)

	runner := agent.NewRunner(agent.Config{
		Signer:            signer,
		Caller:            caller,
		Bus:               bus,
		Docker:            introspector,
		Scraper:           scraper,
		Nodes:             nodes,
		Logger:            log,
		ScrapeInterval:    c.Duration("scrape-interval"),
		HeartbeatInterval: c.Duration("heartbeat-interval"),
	})

	go bus.Run(ctx)
	runner.Run(ctx)

	log.Info("agent stopped")
	return nil
}

// loadOrGenerateSigner reads a previously persisted machine UUID and
// private key from path, or generates and persists a fresh pair if the
// file doesn't exist yet. The file is machine UUID (36 bytes, raw ASCII)
// followed by a newline and the hex-encoded 32-byte private key, so an
// operator can read it with ordinary tools.
func loadOrGenerateSigner(path string) (*identity.Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseIdentityFile(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	if err != nil {
		return nil, fmt.Errorf("generate signer: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create identity dir: %w", err)
		}
	}
	if err := os.WriteFile(path, encodeIdentityFile(signer), 0o600); err != nil {
		return nil, fmt.Errorf("write identity file: %w", err)
	}
	return signer, nil
}

func encodeIdentityFile(s *identity.Signer) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n", s.MachineID.String(), hex.EncodeToString(s.PrivateKeyBytes()))
	return buf.Bytes()
}

func parseIdentityFile(data []byte) (*identity.Signer, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return nil, fmt.Errorf("parse identity file: missing machine id line")
	}
	machineID, err := uuid.Parse(scanner.Text())
	if err != nil {
		return nil, fmt.Errorf("parse machine id: %w", err)
	}

	if !scanner.Scan() {
		return nil, fmt.Errorf("parse identity file: missing private key line")
	}
	keyBytes, err := hex.DecodeString(scanner.Text())
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	privKey := secp256k1.PrivKeyFromBytes(keyBytes)
	return identity.NewSigner(machineID, privKey), nil
}
