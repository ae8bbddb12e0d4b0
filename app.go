package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"docsynth/internal/config"
	"docsynth/internal/redis"
	"docsynth/internal/service/ai"
	"docsynth/internal/storage"
	"docsynth/internal/synthesis"
)

var globalOpts struct {
	configPath string
	dbType     string
}

// app holds the resources every command shares.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	store    *storage.Store
	rdb      *redis.Client
	jobCache *redis.JobCache
}

func openApp() (*app, error) {
	cfg, err := config.Load(globalOpts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Printf("dbType: %s", globalOpts.dbType)
	db, err := storage.Open(globalOpts.dbType, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, globalOpts.dbType); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a := &app{cfg: cfg, db: db, store: storage.NewStore(db, globalOpts.dbType)}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		a.rdb = rdb
	}
	a.jobCache = redis.NewJobCache(a.rdb)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.db.Close()
}

// providerName picks synthesis.provider, or the only configured provider.
func (a *app) providerName() (string, error) {
	if a.cfg.Synthesis.Provider != "" {
		return a.cfg.Synthesis.Provider, nil
	}
	switch len(a.cfg.Providers) {
	case 0:
		return "", fmt.Errorf("no providers configured")
	case 1:
		for name := range a.cfg.Providers {
			return name, nil
		}
	}
	names := make([]string, 0, len(a.cfg.Providers))
	for name := range a.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", fmt.Errorf("synthesis.provider must name one of %v", names)
}

func (a *app) newService(ctx context.Context) (*synthesis.Service, error) {
	name, err := a.providerName()
	if err != nil {
		return nil, err
	}
	completer, err := ai.NewCompleter(ctx, name, a.cfg.Providers[name], a.cfg.AITimeout())
	if err != nil {
		return nil, err
	}
	opts := synthesis.OptionsFromConfig(a.cfg)
	opts.Notifier = a.jobCache
	return synthesis.NewService(a.store, completer, opts)
}
