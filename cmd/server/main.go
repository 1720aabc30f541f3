package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/api"
	"smash-arena/internal/config"
	"smash-arena/internal/replay"
	"smash-arena/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  SMASH ARENA - MATCH SERVER")
	log.Println("🎮 ================================")

	appConfig := config.Load()
	simCfg := appConfig.Sim
	acCfg := appConfig.AntiCheat
	serverCfg := appConfig.Server

	log.Printf("🎮 Sim: %d Hz, broadcast %d Hz, input ring %d frames", simCfg.TickRate, simCfg.BroadcastRate, simCfg.InputBufferFrames)
	log.Printf("🛡️ Anti-cheat: warn %d, kick %d, ban %d, decay %s", acCfg.WarnAt, acCfg.KickAt, acCfg.BanAt, acCfg.DecayWindow)
	if serverCfg.MatchmakerKey == "" {
		log.Println("⚠️ WARNING: MATCHMAKER_KEY not set, anyone can create sessions")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bans := anticheat.NewMemoryBanStore()
	registry := session.NewRegistry(ctx, appConfig.Session, session.Options{
		Sim:       simCfg,
		AntiCheat: acCfg,
		Bans:      bans,
		Observer:  api.Metrics{},
	})

	var recorder *replay.Recorder
	if serverCfg.ReplayDir != "" {
		recorder = replay.NewRecorder(serverCfg.ReplayDir, replay.DefaultConfig())
		if err := recorder.Start(); err != nil {
			log.Fatalf("Failed to start replay recorder: %v", err)
		}
		registry.AddDispatcher(recorder)
	}

	go registry.RunSweeper(ctx)

	server := api.NewServer(serverCfg, registry, bans)
	debugServer := api.StartDebugServer(api.ObservabilityConfig{
		Port:          serverCfg.DebugPort,
		BasicAuthUser: serverCfg.DebugUser,
		BasicAuthPass: serverCfg.DebugPass,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	registry.Shutdown()
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	if recorder != nil {
		recorder.Stop()
	}
	log.Println("👋 Goodbye!")
}
