package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/application/services"
	"github.com/bimakw/blue-liquidator/internal/config"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/cache"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/checkpoint"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/database"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/ethereum"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/flashbots"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/morphoapi"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/pricers"
	"github.com/bimakw/blue-liquidator/internal/infrastructure/venues"
)

// infra holds the process-wide backends shared by chains. db and redis may be nil.
type infra struct {
	db    *database.PostgresDB
	redis *cache.RedisCache
	api   *morphoapi.Client
}

type chain struct {
	client  *ethereum.Client
	indexer *services.IndexerService
	runner  *services.ChainRunner
}

func (c *chain) close() {
	c.client.Close()
}

// buildChain wires the indexer, engine and runner of one chain
func buildChain(ctx context.Context, cfg *config.Config, cc config.ChainConfig, backends infra, logger *zap.Logger) (*chain, error) {
	logger = logger.With(zap.Int64("chain_id", cc.ChainID), zap.String("chain", cc.Name))

	key, err := loadKey(cc.PrivateKeyEnv)
	if err != nil {
		return nil, err
	}

	client, err := ethereum.NewClient(ctx, cfg.Ethereum, cc.RPCURL, cc.ChainID, key, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc: %w", err)
	}

	fetcher := ethereum.NewFetcher(client, logger)

	var decimalsCache repositories.DecimalsCache
	if backends.redis != nil {
		decimalsCache = backends.redis
	}
	metadata := ethereum.NewMetadataFetcher(client, cc.ChainID, decimalsCache, logger)

	checkpoints, err := checkpointStore(cfg, cc.ChainID, backends.db, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	indexer := services.NewIndexerService(
		services.IndexerSettings{
			ChainID:               cc.ChainID,
			Morpho:                common.HexToAddress(cc.Contracts.Morpho),
			AdaptiveCurveIrm:      common.HexToAddress(cc.Contracts.AdaptiveCurveIrm),
			PreLiquidationFactory: config.OptionalAddress(cc.Contracts.PreLiquidationFactory),
			StartBlock:            cc.StartBlock,
			MaxBlockRange:         cc.BlockRange(cfg.Indexer.MaxBlockRange),
			MaxRetries:            cfg.Indexer.MaxRetries,
			InitialBackoff:        cfg.Indexer.InitialBackoff,
		},
		client,
		services.NewRangeSyncer(fetcher, client, logger),
		fetcher,
		checkpoints,
		logger,
	)

	venueList, err := venues.Build(cc.LiquidityVenues, venues.Deps{
		Caller:           client,
		Wrappers:         cc.ERC20Wrappers,
		UniswapV3Factory: config.OptionalAddress(cc.UniswapV3.Factory),
		UniswapV3Quoter:  config.OptionalAddress(cc.UniswapV3.Quoter),
		UniswapV3Router:  config.OptionalAddress(cc.UniswapV3.Router),
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	pricerList, err := pricers.Build(cc.Pricers, pricers.Deps{
		ChainID:        cc.ChainID,
		Caller:         client,
		MorphoAPI:      backends.api,
		FixedPrices:    cc.FixedPrices,
		ChainlinkFeeds: cc.ChainlinkFeeds,
		DefiLlamaChain: cc.DefiLlamaChain,
		Decimals:       metadata,
		Logger:         logger,

		UniswapV3Factory: config.OptionalAddress(cc.UniswapV3.Factory),
		UniswapV3Quoter:  config.OptionalAddress(cc.UniswapV3.Quoter),
		USDToken:         config.OptionalAddress(cc.UniswapV3.USDToken),
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	deps := services.LiquidationDeps{
		Index:           indexer,
		Vaults:          fetcher,
		Chain:           client,
		Discovery:       backends.api,
		Decimals:        metadata,
		Symbols:         metadata,
		Venues:          venueList,
		Pricers:         pricerList,
		MarketsCooldown: services.NewCooldown(cfg.Liquidation.MarketsFetchingCooldown),
	}

	if cfg.Liquidation.CooldownEnabled {
		if backends.redis != nil {
			deps.Cooldown = backends.redis.Cooldown(fmt.Sprintf("%d", cc.ChainID), cfg.Liquidation.CooldownPeriod)
		} else {
			deps.Cooldown = services.NewCooldown(cfg.Liquidation.CooldownPeriod)
		}
	}

	if cc.PrivateRelay.Enabled {
		signingKey, err := loadKey(cc.PrivateRelay.SigningKeyEnv)
		if err != nil {
			client.Close()
			return nil, err
		}
		url := cc.PrivateRelay.URL
		if url == "" {
			url = cfg.Liquidation.FlashbotsRelayURL
		}
		deps.Relay = flashbots.NewRelay(url, signingKey, logger)
	}

	treasury := client.Account()
	if cc.Contracts.Treasury != "" {
		treasury = common.HexToAddress(cc.Contracts.Treasury)
	}

	engine := services.NewLiquidationService(services.LiquidationSettings{
		ChainID:              cc.ChainID,
		Morpho:               common.HexToAddress(cc.Contracts.Morpho),
		Executor:             common.HexToAddress(cc.Contracts.Executor),
		Treasury:             treasury,
		WrappedNative:        common.HexToAddress(cc.Contracts.WrappedNative),
		Vaults:               cc.VaultAddresses(),
		VaultsFromAPI:        cc.UsesVaultAPI(),
		AdditionalMarkets:    cc.AdditionalMarketIDs(),
		UseDiscoveryAPI:      cc.UseDiscoveryAPI,
		BufferBps:            cc.BufferBps(cfg.Liquidation.DefaultBufferBps),
		AlwaysRealizeBadDebt: cfg.Liquidation.AlwaysRealizeBadDebt,
	}, deps, logger)

	logger.Info("Chain configured",
		zap.String("signer", client.Account().Hex()),
		zap.String("treasury", treasury.Hex()),
		zap.Strings("venues", cc.LiquidityVenues),
		zap.Strings("pricers", cc.Pricers),
		zap.Bool("private_relay", deps.Relay != nil),
	)

	return &chain{
		client:  client,
		indexer: indexer,
		runner:  services.NewChainRunner(cc.ChainID, indexer, engine, cfg.Indexer.PollInterval, cc.BlockInterval, logger),
	}, nil
}

func checkpointStore(cfg *config.Config, chainID int64, db *database.PostgresDB, logger *zap.Logger) (repositories.CheckpointRepository, error) {
	switch cfg.Checkpoint.Backend {
	case "file", "":
		return checkpoint.NewFileStore(cfg.Checkpoint.Path, chainID, logger), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres checkpoint backend is not connected")
		}
		return db.Checkpoints(chainID), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Checkpoint.Backend)
	}
}

func loadKey(envVar string) (*ecdsa.PrivateKey, error) {
	if envVar == "" {
		return nil, fmt.Errorf("private key env var is not configured")
	}
	raw := strings.TrimPrefix(strings.TrimSpace(os.Getenv(envVar)), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", envVar)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", envVar, err)
	}
	return key, nil
}
