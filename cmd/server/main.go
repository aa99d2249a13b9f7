package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"secure_chat/internal/broadcast"
	"secure_chat/internal/config"
	"secure_chat/internal/keystore"
	"secure_chat/internal/presence"
	"secure_chat/internal/repository/chats"
	"secure_chat/internal/repository/messages"
	"secure_chat/internal/repository/sessions"
	"secure_chat/internal/scanner"
	"secure_chat/internal/service/audit"
	chatSvc "secure_chat/internal/service/chat"
	"secure_chat/internal/service/lifecycle"
	"secure_chat/internal/service/push"
	"secure_chat/internal/service/server"
	"secure_chat/internal/utils/log"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("load config failed", zap.String("path", *configPath), zap.Error(err))
			os.Exit(1)
		}
		cfg = loaded
	}

	db, err := initMongo(cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Error("mongo connect failed", zap.Error(err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	registry := presence.NewRegistry()
	hub := broadcast.NewHub()
	keys := keystore.NewMongoStore(db)

	auditor := audit.NewMongoSink(db)
	defer auditor.Close()

	notifier := push.NewRedisNotifier(rdb, push.LogNotifier{}.SendToUser)
	defer notifier.Close()

	chatRepo := chats.NewChatRepo(db)
	messageRepo := messages.NewMessageRepo(db)
	sessionRepo := sessions.NewSessionRepo(db)

	chatService := chatSvc.NewService(chatRepo, keys, hub, auditor)
	lifecycleService := lifecycle.NewService(
		chatRepo,
		messageRepo,
		sessionRepo,
		keys,
		hub,
		registry,
		notifier,
		auditor,
		scanner.NewBasicScanner(),
		lifecycle.Options{
			EditWindow:   cfg.EditWindow(),
			DeleteWindow: cfg.DeleteWindow(),
		},
	)

	srv := server.NewHttpServer(cfg.Server.ListenAddr, registry, hub, keys, chatService, lifecycleService)
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Info("shutting down")
	log.Sync()
}

func initMongo(uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client.Database(database), nil
}
