package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"meb-console/internal/account"
	"meb-console/internal/auth"
	"meb-console/internal/bot"
	"meb-console/internal/config"
	"meb-console/internal/ledger"
	"meb-console/internal/recorder"
	"meb-console/internal/secure"
	"meb-console/internal/server"
	"meb-console/internal/signalk"
	"meb-console/internal/telegram"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	key, err := secure.NormalizeKey(cfg.MasterKey)
	if err != nil {
		log.Fatal(err)
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		log.Fatal(err)
	}

	led := ledger.Open(filepath.Join(cfg.DataDir, "ledger.json"), key)
	accounts := account.Open(filepath.Join(cfg.DataDir, "accounts.json"), key)

	cache := signalk.NewCache()
	if cfg.SignalKURL != "" {
		client := signalk.NewClient(cfg.SignalKURL, cache)
		go client.Run()
	} else {
		log.Printf("main: SIGNALK_WS_URL not set, live data feed disabled")
	}

	rec := recorder.New(logDir, cfg.SampleInterval, cache, led)
	rec.Start()

	if cfg.TelegramBotToken != "" {
		transport := telegram.New(cfg.TelegramBotToken)
		engine := bot.New(bot.Options{
			Transport: transport,
			Accounts:  accounts,
			Ledger:    led,
			Recorder:  rec,
			Values:    cache,
			LogDir:    logDir,
		})
		go transport.Poll(engine)
		engine.Broadcast("MEB console is back online.")
	} else {
		log.Printf("main: TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	gin.SetMode(cfg.GinMode)
	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterKey,
		Expiry: cfg.TokenExpiry,
		Issuer: "meb-console",
	}

	router := server.NewRouter(server.Deps{
		Accounts:    accounts,
		Ledger:      led,
		Recorder:    rec,
		TokenConfig: tokenCfg,
		LogDir:      logDir,
	})

	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}
