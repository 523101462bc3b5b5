package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Engine struct {
	// Cooldown applied to order submission and aggregation requests.
	Cooldown time.Duration
	// OwnerKey is the hex private key of the initial owner. Empty means
	// generate an ephemeral key at startup (devnet).
	OwnerKey string
	// Scheme selects the homomorphic backend: "ckks" or "plain".
	// The plain backend carries cleartext in fixed-width fields and
	// exists for devnet and tests only.
	Scheme string
	// LogN is the CKKS ring degree exponent.
	LogN int
}

type Node struct {
	APIAddr string
	DataDir string
	LogFile string
	// BlockTime is the interval at which the node advances the block
	// height used by the expiry filter. Stands in for the external
	// sequencing layer.
	BlockTime time.Duration
	// P2PListenAddr is the libp2p listen multiaddr for event gossip.
	// Empty disables gossip.
	P2PListenAddr string
	// P2PBootstrap holds peer multiaddrs to dial at startup.
	P2PBootstrap []string
}

type Config struct {
	Engine Engine
	Node   Node
}

func Default() Config {
	return Config{
		Engine: Engine{
			Cooldown: 30 * time.Second,
			Scheme:   "ckks",
			LogN:     12,
		},
		Node: Node{
			APIAddr:   ":8080",
			DataDir:   "data",
			LogFile:   "data/node.log",
			BlockTime: time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ENGINE_COOLDOWN_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Cooldown = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ENGINE_OWNER_KEY"); v != "" {
		cfg.Engine.OwnerKey = v
	}
	if v := os.Getenv("ENGINE_SCHEME"); v != "" {
		cfg.Engine.Scheme = v
	}
	if v := os.Getenv("ENGINE_LOG_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.LogN = n
		}
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("NODE_BLOCK_TIME_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Node.BlockTime = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("P2P_LISTEN_ADDR"); v != "" {
		cfg.Node.P2PListenAddr = v
	}
	if v := os.Getenv("P2P_BOOTSTRAP"); v != "" {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.Node.P2PBootstrap = append(cfg.Node.P2PBootstrap, addr)
			}
		}
	}

	return cfg
}
