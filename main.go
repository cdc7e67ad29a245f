package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/cmd"
	"github.com/Icerzack/wordlobby/internal/auth"
	"github.com/Icerzack/wordlobby/internal/rest"
	"github.com/Icerzack/wordlobby/internal/storage/redis"
	"github.com/Icerzack/wordlobby/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	config, err := cmd.ParseConfig(*configPath, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := utils.NewCustomLogger(config.Apps.LogLevel, config.Apps.LogFile)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	restApp, err := rest.NewRest(context.Background(), &rest.Config{
		Port: config.Apps.Rest.Port,
		Token: auth.Config{
			Key:       config.Apps.Rest.Token.Key,
			Algorithm: config.Apps.Rest.Token.Algorithm,
			TTL:       config.Apps.Rest.Token.TTL,
		},
		StorageType: config.Storage.Type,
		Redis: redis.Config{
			Address:  config.Storage.RedisAddress,
			Password: config.Storage.RedisPassword,
			DB:       config.Storage.RedisDB,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Failed to create rest app", zap.Error(err))
	}

	appsManager := cmd.NewAppsManager(logger)

	appsManager.Register(cmd.RestApp, restApp)
	appsManager.RunAll()
	appsManager.WaitForShutdown()
}
