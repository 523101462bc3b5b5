// Package p2p broadcasts engine notification events over libp2p GossipSub
// so observer nodes follow the batch lifecycle without polling the REST
// surface. Gossip is outbound with respect to engine state: inbound
// messages go to an observer handler and never mutate the engine.
package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
)

const topicEvents = "batch-events/1"

// EventHandler observes events gossiped by other nodes.
type EventHandler func(from peer.ID, ev engine.Event)

type Gossip struct {
	h     host.Host
	ps    *pubsub.PubSub
	log   *zap.SugaredLogger
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	muH     sync.RWMutex
	handler EventHandler
}

type Config struct {
	// ListenAddr is the libp2p listen multiaddr, e.g.
	// /ip4/0.0.0.0/tcp/9000.
	ListenAddr string

	// Bootstrap peers to dial at startup, full p2p multiaddrs.
	Bootstrap []string

	Logger *zap.SugaredLogger
}

func NewGossip(ctx context.Context, cfg Config) (*Gossip, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	g := &Gossip{h: h, ps: ps, log: cfg.Logger}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			g.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if g.topic, err = ps.Join(topicEvents); err != nil {
		return nil, err
	}
	if g.sub, err = g.topic.Subscribe(); err != nil {
		return nil, err
	}
	go g.loop(ctx)

	g.log.Infow("gossip_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return g, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (g *Gossip) Host() host.Host { return g.h }

// SetHandler installs the observer callback for events gossiped by peers.
func (g *Gossip) SetHandler(h EventHandler) {
	g.muH.Lock()
	g.handler = h
	g.muH.Unlock()
}

// Publish broadcasts a local engine event to the topic.
func (g *Gossip) Publish(ctx context.Context, ev engine.Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return g.topic.Publish(ctx, data)
}

func (g *Gossip) Close() error {
	g.sub.Cancel()
	return g.h.Close()
}

func (g *Gossip) loop(ctx context.Context) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == g.h.ID() {
			continue
		}
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			g.log.Warnw("gossip_decode_failed", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}

		g.muH.RLock()
		h := g.handler
		g.muH.RUnlock()
		if h != nil {
			h(msg.ReceivedFrom, ev)
		}
	}
}
