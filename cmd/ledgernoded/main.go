// Command ledgernoded runs the Client Authentication Endpoint: it
// loads the node's configuration and private key, assembles the
// handshake/command/router stack, and serves it over HTTP until
// interrupted.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/universa-net/ledgernode/command"
	sagecrypto "github.com/universa-net/ledgernode/crypto"
	"github.com/universa-net/ledgernode/crypto/keys"
	"github.com/universa-net/ledgernode/endpoint"
	"github.com/universa-net/ledgernode/handshake"
	"github.com/universa-net/ledgernode/internal/config"
	"github.com/universa-net/ledgernode/internal/logger"
	"github.com/universa-net/ledgernode/internal/metrics"
	"github.com/universa-net/ledgernode/internal/roster"
	"github.com/universa-net/ledgernode/router"
	"github.com/universa-net/ledgernode/session"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "ledgernoded",
	Short: "Client Authentication Endpoint node daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to node config YAML")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file of overrides")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgernoded: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return err
	}

	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	nodeKey, err := loadNodeKey(cfg.Node.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("ledgernoded: load node key: %w", err)
	}

	peers, err := roster.Load(cfg.Node.RosterFile)
	if err != nil {
		return fmt.Errorf("ledgernoded: load roster: %w", err)
	}

	registry := session.NewRegistry()
	hs := handshake.New(registry, nodeKey)
	cmdDispatcher := command.New(nil)
	rt := router.New(registry, hs, cmdDispatcher, peers, cfg.Router.UploadLimit, cfg.Router.ThreadPoolSize, log)

	var admin *endpoint.AdminRotation
	if cfg.AdminRotation.BearerSecret != "" {
		admin = endpoint.NewAdminRotation(hs, cfg.AdminRotation.BearerSecret, cfg.AdminRotation.TokenTTL, log)
	} else {
		log.Warn("admin_rotation.bearer_secret unset: /admin/rotate is disabled")
	}

	ep := endpoint.New(nodeKey, cfg.Listen.Address, rt, admin, log)

	if cfg.Metrics.Enabled && cfg.Metrics.Address != cfg.Listen.Address {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- ep.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ledgernoded: serve: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Info("shutting down", logger.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ep.Shutdown(ctx); err != nil {
			return fmt.Errorf("ledgernoded: shutdown: %w", err)
		}
		return nil
	}
}

// loadNodeKey reads a raw 64-byte Ed25519 private key, base58-encoded,
// from path (written by ledgerauthctl keygen). The node's identity is
// Ed25519-only; there is no PEM/JWK layer to carry over here, so the
// file format is kept as plain as the roster's key encoding.
func loadNodeKey(path string) (sagecrypto.KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := base58.Decode(string(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed key file: %w", err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d-byte Ed25519 private key, got %d", ed25519.PrivateKeySize, len(decoded))
	}
	return keys.NewEd25519KeyPair(ed25519.PrivateKey(decoded), "")
}
