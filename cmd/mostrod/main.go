package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"mostrod/config"
	"mostrod/internal/admin"
	"mostrod/internal/database"
	"mostrod/internal/dispute"
	"mostrod/internal/engine"
	"mostrod/internal/exchange"
	"mostrod/internal/lnd"
	"mostrod/internal/nostr"
	"mostrod/internal/protocol"
	"mostrod/internal/router"
	"mostrod/internal/scheduler"
	"mostrod/pkg/cache"
	"mostrod/pkg/logger"
	"mostrod/pkg/queue"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

var Cfg config.DaemonConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filename)
	configPath := config.Path(root).Join("..", "..", "config.toml")
	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dbCfg database.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database connected and migrated")

	var lndCfg lnd.Config
	if err := copier.Copy(&lndCfg, &Cfg.Lightning); err != nil {
		return fmt.Errorf("failed to copy lightning config: %w", err)
	}
	lnClient, err := lnd.NewClient(lndCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to lnd: %w", err)
	}
	defer lnClient.Close()

	identity, err := nostr.KeyPairFromHex(Cfg.Nostr.SecretKeyHex)
	if err != nil {
		return fmt.Errorf("failed to load nostr identity: %w", err)
	}
	logger.Info("mostrod identity loaded", zap.String("pubkey", identity.PublicKeyHex()))

	relays := nostr.NewPool(Cfg.Nostr.Relays)
	go func() {
		if err := relays.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("relay pool stopped", zap.Error(err))
		}
	}()
	relays.Subscribe("mostrod-dm", nostr.Filter{
		Kinds: []int{nostr.KindGiftWrap},
		Tags:  map[string][]string{"p": {identity.PublicKeyHex()}},
	})

	orders := database.NewOrderRepository(db)
	users := database.NewUserRepository(db)
	disputes := database.NewDisputeRepository(db)
	ratings := database.NewRatingRepository(db)

	for _, pubkey := range Cfg.Mostro.AdminPubkeys {
		if _, err := users.GetOrCreate(ctx, pubkey); err != nil {
			return fmt.Errorf("bootstrap admin %s: %w", pubkey, err)
		}
		if err := users.SetAdmin(ctx, pubkey, true); err != nil {
			return fmt.Errorf("grant admin %s: %w", pubkey, err)
		}
		logger.Info("admin bootstrapped", zap.String("pubkey", pubkey))
	}

	events := queue.NewStreamQueue(cache.Client)

	eng := engine.NewEngine(engine.Config{
		Orders:   orders,
		Users:    users,
		Disputes: disputes,
		Ratings:  ratings,
		LN:       lnClient,
		Relays:   relays,
		Identity: identity,
		Events:   events,
		Network:  Cfg.Lightning.Network,
		Instance: Cfg.Mostro.Instance,
	})

	go func() {
		if err := eng.ConsumeInvoiceEvents(ctx, "mostrod"); err != nil && ctx.Err() == nil {
			logger.Error("invoice event consumer stopped", zap.Error(err))
		}
	}()

	provider, err := exchange.NewProvider(Cfg.Rate.Provider, "", nil)
	if err != nil {
		return fmt.Errorf("failed to build rate provider: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		ExpiryInterval:      Cfg.ExpiryInterval(),
		RetryInterval:       Cfg.RetryInterval(),
		RateRefreshInterval: Cfg.RateRefreshInterval(),
		RepublishInterval:   Cfg.RepublishInterval(),
		FiatCodes:           Cfg.Rate.FiatCodes,
		Instance:            Cfg.Mostro.Instance,
	}, eng, orders, provider)
	go sched.Run(ctx)

	evidenceKey, err := Cfg.EvidenceKey()
	if err != nil {
		return fmt.Errorf("decode dispute evidence key: %w", err)
	}
	disputeMgr := dispute.NewManager(disputes, relays, identity, Cfg.Mostro.Instance, evidenceKey)

	dispatcher := router.New(eng, orders, users, disputes, disputeMgr, sched.Rates())

	go consumeDirectMessages(ctx, relays, identity, eng, dispatcher)

	orphans := database.NewOrphanRepository(db)
	adminSrv := admin.NewServer(eng, users, disputes, orphans, Cfg.Admin.SocketPath)
	go func() {
		if err := adminSrv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			logger.Error("admin socket stopped", zap.Error(err))
		}
	}()

	logger.Info("mostrod started", zap.String("instance", Cfg.Mostro.Instance))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("mostrod shut down gracefully")
	return nil
}

// consumeDirectMessages drains the relay pool's gift-wrapped events,
// decodes each into a protocol message, and dispatches it against the
// engine. A dispatch that produces a reply sends it straight back to
// whoever sent the original request.
func consumeDirectMessages(ctx context.Context, relays *nostr.Pool, identity *nostr.KeyPair, eng *engine.Engine, dispatcher *router.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-relays.Events():
			if !ok {
				return
			}
			if evt.Kind != nostr.KindGiftWrap {
				continue
			}

			rumorContent, senderPubkey, err := nostr.OpenDirectMessage(identity, evt)
			if err != nil {
				logger.Warn("open direct message", zap.Error(err))
				continue
			}

			msg, err := protocol.Decode([]byte(rumorContent))
			if err != nil {
				logger.Warn("decode message", zap.String("from", senderPubkey), zap.Error(err))
				// A well-formed envelope with an unsupported version or
				// action still gets a typed cant-do; malformed JSON does not.
				if msg != nil {
					if reply, rerr := protocol.NewMessage(protocol.ActionCantDo, msg.ID, msg.RequestID, protocol.CantDoContent{Reason: protocol.ReasonNotAllowedByStatus}); rerr == nil {
						if serr := eng.SendMessage(senderPubkey, reply); serr != nil {
							logger.Warn("send reply", zap.String("to", senderPubkey), zap.Error(serr))
						}
					}
				}
				continue
			}

			reply, err := dispatcher.Dispatch(ctx, senderPubkey, msg)
			if err != nil {
				logger.Error("dispatch", zap.String("from", senderPubkey), zap.String("action", string(msg.Action)), zap.Error(err))
				continue
			}
			if reply == nil {
				continue
			}
			if err := eng.SendMessage(senderPubkey, reply); err != nil {
				logger.Warn("send reply", zap.String("to", senderPubkey), zap.Error(err))
			}
		}
	}
}
