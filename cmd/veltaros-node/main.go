package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veltarosnet/veltaros/internal/api"
	"github.com/veltarosnet/veltaros/internal/blockchain"
	"github.com/veltarosnet/veltaros/internal/bus"
	"github.com/veltarosnet/veltaros/internal/collaborators"
	"github.com/veltarosnet/veltaros/internal/config"
	"github.com/veltarosnet/veltaros/internal/identity"
	"github.com/veltarosnet/veltaros/internal/ledger"
	"github.com/veltarosnet/veltaros/internal/logging"
	"github.com/veltarosnet/veltaros/internal/peers"
	"github.com/veltarosnet/veltaros/internal/schema"
	"github.com/veltarosnet/veltaros/internal/storage"
	"github.com/veltarosnet/veltaros/internal/transport"
)

func main() {
	parsed, err := config.ParseNodeFlags(os.Args[1:])
	if err != nil {
		exitWithError(err)
	}
	cfg := parsed.Config

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	entry := log.WithField("component", "node")

	err = storage.EnsureLayout(cfg.Storage.DataDir,
		cfg.Storage.PeerDBPath, cfg.Storage.BlockStorePath, cfg.Storage.NonceStorePath)
	if err != nil {
		exitWithError(err)
	}

	identityKeyPath := filepath.Join(cfg.Storage.DataDir, "identity.key")
	identityRecordPath := filepath.Join(cfg.Storage.DataDir, "identity.json")
	priv, err := identity.LoadOrCreateKey(identityKeyPath)
	if err != nil {
		exitWithError(err)
	}
	if err := identity.EnsureRecord(identityRecordPath, priv); err != nil {
		exitWithError(err)
	}

	db, err := storage.Open(cfg.Storage.PeerDBPath)
	if err != nil {
		exitWithError(err)
	}
	defer func() { _ = db.Close() }()
	store := storage.NewGormStore(db)

	schemaBag, err := schema.NewBag()
	if err != nil {
		exitWithError(err)
	}

	directory := peers.NewDirectory(store, schemaBag, entry.WithField("component", "peers"), peers.Config{
		Seeds:              resolveSeeds(cfg.Network.Seeds),
		MinVersion:         cfg.Network.MinVersion,
		MaxUpdatePeers:     cfg.Network.MaxUpdatePeers,
		RefreshInterval:    cfg.Network.RefreshInterval,
		BanManagerInterval: cfg.Network.BanManagerInterval,
		WriteQueueDepth:    cfg.Network.WriteQueueDepth,
	})
	defer directory.Close()

	balances := ledger.New()
	blocks := collaborators.NewBlocks(entry.WithField("component", "blocks"), cfg.Storage.BlockStorePath)
	txs := collaborators.NewTransactions(entry.WithField("component", "transactions"), balances, cfg.Storage.NonceStorePath)
	dapps := collaborators.NewDapps(entry.WithField("component", "dapps"))
	delegates := collaborators.NewDelegates(entry.WithField("component", "delegates"))
	system := collaborators.NewSystem(blocks)

	eventBus := bus.New(entry.WithField("component", "bus"))

	tr := transport.New(transport.Config{
		Nethash:        cfg.Network.Nethash,
		CurrentVersion: cfg.Network.CurrentVersion,
		MinVersion:     cfg.Network.MinVersion,
		OS:             cfg.Network.OS,
		Port:           cfg.Network.Port,
		Timeout:        cfg.Network.OutboundTimeout,
		MaxUpdatePeers: cfg.Network.MaxUpdatePeers,

		Directory: directory,
		Schema:    schemaBag,
		Bus:       eventBus,
		Blocks:    blocks,
		Txs:       txs,
		Dapps:     dapps,
		Delegates: delegates,
		System:    system,
		Log:       entry.WithField("component", "transport"),
	})
	directory.SetFetcher(tr)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerGossipHooks(ctx, entry, eventBus, tr, txs)

	go directory.OnBlockchainReady(ctx)
	go directory.RunPeriodicLoops(ctx)
	go runNoncePersistLoop(ctx, entry, txs)

	srv := startServer(entry, cfg.API, tr.Router())
	defer func() {
		if srv == nil {
			return
		}
		sctx, scancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	waitForShutdown(entry)
	if err := txs.PersistNonces(); err != nil {
		entry.WithError(err).Warn("final nonce persist failed")
	}
	entry.Info("shutdown complete")
}

// registerGossipHooks connects the domain events the inbound routes emit to
// Transport's outbound hooks: every accepted block, transaction, signature
// and dapp message is re-broadcast to peers and pushed to room subscribers,
// and the transactions a received block confirms are applied to the ledger.
func registerGossipHooks(ctx context.Context, log *logrus.Entry, eventBus *bus.Bus, tr *transport.Transport, txs *collaborators.Transactions) {
	eventBus.On("receiveBlock", func(payload any) {
		if raw, ok := payload.(json.RawMessage); ok {
			var block blockchain.Block
			if err := json.Unmarshal(raw, &block); err == nil {
				for _, tx := range block.Transactions {
					if err := txs.ApplyConfirmed(tx.TxID); err != nil {
						log.WithError(err).WithField("txId", tx.TxID).Debug("confirmed tx not in local pool")
					}
				}
			}
		}
		tr.OnNewBlock(ctx, payload, true)
	})

	eventBus.On("unconfirmedTransaction", func(payload any) {
		tr.OnUnconfirmedTransaction(ctx, payload, true)
	})

	eventBus.On("signature", func(payload any) {
		tr.OnSignature(ctx, payload, true)
	})

	eventBus.On("message", func(payload any) {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			return
		}
		var env struct {
			DappID string `json:"dappid"`
		}
		_ = json.Unmarshal(raw, &env)
		tr.OnMessage(ctx, env.DappID, raw, true)
	})
}

func runNoncePersistLoop(ctx context.Context, log *logrus.Entry, txs *collaborators.Transactions) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := txs.PersistNonces(); err != nil {
				log.WithError(err).Warn("periodic nonce persist failed")
			}
		}
	}
}

// resolveSeeds turns "host:port" seed strings from config into Peer records
// the directory treats as its frozen whitelist.
func resolveSeeds(raw []string) []peers.Peer {
	out := make([]peers.Peer, 0, len(raw))
	for _, s := range raw {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, peers.Inspect(peers.RawPeer{IP: host, Port: port}))
	}
	return out
}

func startServer(log *logrus.Entry, cfg config.APIConfig, handler http.Handler) *http.Server {
	if !cfg.Enabled {
		return nil
	}

	limiter := api.NewLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, 1)
	secured := api.SecurityMiddleware(api.SecurityConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		APIKey:         cfg.APIKey,
		RequireKeyFor:  map[string]bool{},
	}, limiter.Middleware(handler))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           secured,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("api server error")
		}
	}()

	return srv
}

func waitForShutdown(log *logrus.Entry) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.WithField("signal", s.String()).Info("shutdown signal received")
}

func exitWithError(err error) {
	_, _ = os.Stderr.WriteString("veltaros-node error: " + err.Error() + "\n")
	os.Exit(1)
}
