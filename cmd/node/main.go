package main

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/params"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/api"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/crypto"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/oracle"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/p2p"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/storage"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Owner identity ----
	var owner *crypto.Signer
	if cfg.Engine.OwnerKey != "" {
		owner, err = crypto.FromPrivateKeyHex(cfg.Engine.OwnerKey)
	} else {
		owner, err = crypto.GenerateKey()
		sugar.Warn("ENGINE_OWNER_KEY not set, generated ephemeral owner key")
	}
	if err != nil {
		sugar.Fatalw("owner_key_failed", "err", err)
	}
	sugar.Infow("owner_identity", "addr", owner.Address().Hex())

	// ---- Homomorphic backend ----
	var scheme fhe.Scheme
	switch cfg.Engine.Scheme {
	case "plain":
		scheme = fhe.NewPlain()
		sugar.Warn("plain scheme selected - amounts are NOT encrypted, devnet only")
	default:
		scheme, err = fhe.NewCKKS(cfg.Engine.LogN)
		if err != nil {
			sugar.Fatalw("ckks_init_failed", "err", err)
		}
	}
	sugar.Infow("scheme_ready", "scheme", cfg.Engine.Scheme, "ciphertext_bytes", scheme.Width())

	// ---- Decryption authority ----
	seed := make([]byte, 32)
	if s := os.Getenv("ORACLE_BLS_SEED"); s != "" {
		copy(seed, s)
	} else if _, err := crand.Read(seed); err != nil {
		sugar.Fatalw("bls_seed_failed", "err", err)
	}
	authority := oracle.NewLocal(scheme, crypto.NewBLSSignerFromSeed(seed), sugar)

	// ---- Persistence ----
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "engine.db"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	eng := engine.New(engine.Config{
		Owner:    owner.Address(),
		Self:     owner.Address(),
		Eval:     scheme,
		Oracle:   authority,
		Store:    store,
		Cooldown: cfg.Engine.Cooldown,
		Logger:   sugar,
	})

	// Recover persisted state. CKKS ciphertexts from a previous run are
	// unreadable under freshly generated keys, so the ledger is only
	// restored for the plain scheme; the authority's key ceremony and key
	// persistence are collaborator concerns.
	access, haveAccess, err := store.LoadAccess()
	if err != nil {
		sugar.Fatalw("load_access_failed", "err", err)
	}
	if haveAccess {
		batch, _, err := store.LoadBatch()
		if err != nil {
			sugar.Fatalw("load_batch_failed", "err", err)
		}
		var orders []*engine.Order
		var contexts map[engine.RequestID]*engine.DecryptionContext
		if cfg.Engine.Scheme == "plain" {
			if orders, err = store.LoadOrders(scheme); err != nil {
				sugar.Fatalw("load_orders_failed", "err", err)
			}
			if contexts, err = store.LoadContexts(); err != nil {
				sugar.Fatalw("load_contexts_failed", "err", err)
			}
		}
		eng.Restore(access, batch, orders, contexts)
		sugar.Infow("state_restored", "batch", batch.ID, "orders", len(orders))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API server ----
	apiServer := api.NewServer(eng, scheme, sugar)
	eng.OnEvent = apiServer.PublishEvent

	// ---- Event gossip (optional) ----
	if cfg.Node.P2PListenAddr != "" {
		gossip, err := p2p.NewGossip(ctx, p2p.Config{
			ListenAddr: cfg.Node.P2PListenAddr,
			Bootstrap:  cfg.Node.P2PBootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("gossip_init_failed", "err", err)
		}
		defer gossip.Close()
		gossip.SetHandler(func(from peer.ID, ev engine.Event) {
			sugar.Infow("peer_event", "from", from.String(), "event", ev.Name())
		})
		eng.OnEvent = func(ev engine.Event) {
			apiServer.PublishEvent(ev)
			if err := gossip.Publish(ctx, ev); err != nil {
				sugar.Warnw("gossip_publish_failed", "event", ev.Name(), "err", err)
			}
		}
	}

	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Oracle responder (the async boundary) ----
	go authority.Serve(ctx, func(id engine.RequestID, cleartext, proof []byte) {
		ask, bid, err := eng.HandleDecryptionResult(id, cleartext, proof)
		if err != nil {
			sugar.Warnw("decryption_result_rejected", "request", fmt.Sprintf("%x", id[:8]), "err", err)
			return
		}
		sugar.Infow("aggregate_revealed", "request", fmt.Sprintf("%x", id[:8]), "ask_volume", ask, "bid_volume", bid)
	})

	// ---- Height ticker (stands in for the sequencing layer) ----
	ticker := time.NewTicker(cfg.Node.BlockTime)
	defer ticker.Stop()

	sugar.Infow("node_started", "api", cfg.Node.APIAddr, "block_time_ms", cfg.Node.BlockTime.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting down")
			return
		case <-ticker.C:
			eng.SetHeight(eng.Height() + 1)
		}
	}
}
