package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"nft_messenger/internal/blobstore"
	"nft_messenger/internal/config"
	"nft_messenger/internal/marketplace"
	"nft_messenger/internal/protocol/messaging"
	"nft_messenger/internal/repository/directory"
	"nft_messenger/internal/repository/kv"
	"nft_messenger/internal/repository/msgindex"
	"nft_messenger/internal/service/auth"
	redisSvc "nft_messenger/internal/service/redis"
	"nft_messenger/internal/service/server"
	"nft_messenger/internal/utils/log"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	factory := &kv.Factory{Backend: cfg.Store.Backend, DataDir: cfg.Store.DataDir}
	var redisService *redisSvc.RedisService

	switch cfg.Store.Backend {
	case kv.BackendSQLite:
		db, err := kv.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		factory.SQLite = db
	case kv.BackendMongo:
		client, err := initMongo(ctx, cfg.Store.MongoURI)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer client.Disconnect(context.Background())
		factory.Mongo = client.Database(cfg.Store.MongoDB)
	}

	// Nonces share the redis connection when redis is the store backend.
	if cfg.Store.Backend == kv.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		redisService = redisSvc.NewRedis(rdb)
		if err := redisService.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisService.Close()
		factory.Redis = redisService
	}

	keys, err := factory.Open(directory.Namespace)
	if err != nil {
		return err
	}
	defer keys.Close()
	msgs, err := factory.Open(msgindex.Namespace)
	if err != nil {
		return err
	}
	defer msgs.Close()

	blobs, err := openBlobStore(ctx, &cfg.Blob, cfg.Server.HTTPTimeout)
	if err != nil {
		return err
	}

	var nonces auth.NonceStore = auth.NewMemoryNonceStore()
	if redisService != nil {
		nonces = auth.NewRedisNonceStore(redisService)
	}

	directoryStore := directory.New(keys)
	authSvc := auth.NewService(nonces, cfg.Auth.NonceTTL, cfg.Auth.RequireSignatures)
	srv := server.NewHttpServer(
		directoryStore,
		msgindex.New(msgs),
		messaging.New(directoryStore, blobs),
		marketplace.NewClient(cfg.Marketplace.URL, cfg.Marketplace.APIToken, cfg.Server.HTTPTimeout),
		authSvc,
		server.Options{ContractAddress: cfg.ContractAddress(), Timeout: cfg.Server.HTTPTimeout},
	)

	log.Info("backend starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("blobs", cfg.Blob.Backend),
		zap.Bool("requireSignatures", authSvc.Required()),
	)
	return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}

func openBlobStore(ctx context.Context, cfg *config.BlobConfig, timeout time.Duration) (blobstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region)
	case "local":
		return blobstore.NewLocalStore(cfg.LocalDir)
	default:
		return blobstore.NewIPFSStore(cfg.IPFSAPIURL, cfg.Gateways, timeout), nil
	}
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
