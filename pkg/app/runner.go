// Package app wires the gateway connection to the cache and owns the
// process lifecycle: environment, logging, store connection, cold resume
// on startup and freeze on shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/archive"
	"github.com/small-frappuccino/gatewaycache/pkg/cache"
	"github.com/small-frappuccino/gatewaycache/pkg/log"
	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

const statsInterval = 5 * time.Minute

// sessionTracker follows the live gateway session so its identity and
// position can be frozen at shutdown.
type sessionTracker struct {
	mu        sync.Mutex
	sessionID string
	sequence  uint64
}

func (t *sessionTracker) observe(seq int64) {
	if seq <= 0 {
		return
	}
	t.mu.Lock()
	if s := uint64(seq); s > t.sequence {
		t.sequence = s
	}
	t.mu.Unlock()
}

func (t *sessionTracker) setSessionID(id string) {
	t.mu.Lock()
	t.sessionID = id
	t.mu.Unlock()
}

func (t *sessionTracker) snapshot() (archive.ResumeSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID == "" {
		return archive.ResumeSession{}, false
	}
	return archive.ResumeSession{SessionID: t.sessionID, Sequence: t.sequence}, true
}

// Run bootstraps the process and blocks until shutdown. tokenEnv names the
// environment variable holding the bot token; if unset in the process
// environment, a $HOME/.local/bin/.env fallback file is consulted.
func Run(appName, tokenEnv string) error {
	if err := log.Setup(util.EnvOrDefault("GATEWAYCACHE_LOG_DIR", "logs")); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.Sync()

	token, err := util.LoadEnvWithLocalBinFallback(tokenEnv)
	if err != nil {
		log.Application().Warn("env fallback not loaded", "error", err)
	}
	if token == "" {
		return fmt.Errorf("%s not set in environment or .env file", tokenEnv)
	}

	shardID, shardCount, err := shardConfig()
	if err != nil {
		return err
	}

	db, err := strconv.Atoi(util.EnvOrDefault("GATEWAYCACHE_REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("parse GATEWAYCACHE_REDIS_DB: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Application().Info("starting", "app", appName, "shard", shardID, "shards", shardCount)

	c, err := cache.New(ctx, cache.Config{
		Addr:     util.EnvOrDefault("GATEWAYCACHE_REDIS_ADDR", "localhost:6379"),
		DB:       db,
		Password: os.Getenv("GATEWAYCACHE_REDIS_PASSWORD"),
		Logger:   log.Cache(),
	})
	if err != nil {
		return err
	}
	defer c.Close()

	frozen, resumable, err := c.Defrost(ctx)
	if err != nil {
		return fmt.Errorf("defrost: %w", err)
	}
	if resumable {
		log.Gateway().Info("found frozen sessions", "shards", len(frozen))
	} else {
		log.Gateway().Info("no resumable sessions, starting cold")
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create gateway session: %w", err)
	}
	dg.ShardID = shardID
	dg.ShardCount = shardCount
	dg.StateEnabled = false
	dg.Identify.Intents = discordgo.IntentsAllWithoutPrivileged | discordgo.IntentGuildMembers

	tracker := &sessionTracker{}
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
		tracker.observe(e.Sequence)
		if r, ok := e.Struct.(*discordgo.Ready); ok {
			tracker.setSessionID(r.SessionID)
		}
		if e.Struct != nil {
			c.Update(ctx, e.Struct)
		}
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway connection: %w", err)
	}
	log.Gateway().Info("gateway connected")

	go logStats(ctx, c)

	<-ctx.Done()
	log.Application().Info("shutting down")

	if err := dg.Close(); err != nil {
		log.Gateway().Warn("gateway close failed", "error", err)
	}

	// Freeze after the connection is down so the sequence cannot advance
	// past what we store. A short independent context keeps shutdown
	// bounded even though the signal context is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if session, ok := tracker.snapshot(); ok {
		err := c.Freeze(shutdownCtx, map[uint64]archive.ResumeSession{
			uint64(shardID): session,
		})
		if err != nil {
			log.Cache().Error("freeze failed", "error", err)
		}
		if err := storeGuildShards(shutdownCtx, c, shardID); err != nil {
			log.Cache().Error("storing guild shards failed", "error", err)
		}
	}
	return nil
}

func shardConfig() (int, int, error) {
	shardID, err := strconv.Atoi(util.EnvOrDefault("GATEWAYCACHE_SHARD_ID", "0"))
	if err != nil {
		return 0, 0, fmt.Errorf("parse GATEWAYCACHE_SHARD_ID: %w", err)
	}
	shardCount, err := strconv.Atoi(util.EnvOrDefault("GATEWAYCACHE_SHARD_COUNT", "1"))
	if err != nil {
		return 0, 0, fmt.Errorf("parse GATEWAYCACHE_SHARD_COUNT: %w", err)
	}
	if shardCount < 1 || shardID < 0 || shardID >= shardCount {
		return 0, 0, fmt.Errorf("invalid shard config %d/%d", shardID, shardCount)
	}
	return shardID, shardCount, nil
}

func storeGuildShards(ctx context.Context, c *cache.Cache, shardID int) error {
	ids, err := c.GuildIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	guilds := make(map[uint64]uint32, len(ids))
	for _, id := range ids {
		guilds[id] = uint32(shardID)
	}
	return c.StoreGuildShards(ctx, guilds)
}

func logStats(ctx context.Context, c *cache.Cache) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			log.Cache().Info("cache stats",
				"guilds", s.Guilds,
				"unavailable_guilds", s.UnavailableGuilds,
				"channels", s.Channels,
				"roles", s.Roles,
				"users", s.Users)
		}
	}
}
