// Command mixplayd is the mixplay daemon's process entrypoint: it wires
// the catalog, scheduler, reader, and HTTP API together, then runs them
// until a signal or an unrecoverable reader error shuts the process
// down — spec.md §5's "Main: startup, signal handling, final join."
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/config"
	"github.com/foxbow/mixplay/internal/httpapi"
	"github.com/foxbow/mixplay/internal/player"
	"github.com/foxbow/mixplay/internal/playlist"
	"github.com/foxbow/mixplay/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		slog.Error("config: fatal startup failure", "error", err)
		os.Exit(1)
	}

	slog.Info("starting mixplay",
		"port", cfg.Port,
		"music_dir", cfg.MusicDir,
		"active_profile", cfg.Active,
	)

	cat := catalog.NewCatalog()
	if err := cat.Open(cfg.DBPath()); err != nil {
		slog.Error("catalog: fatal startup failure", "error", err)
		os.Exit(1)
	}
	if added, err := cat.AddTitles(cfg.MusicDir); err != nil {
		slog.Error("catalog: scan music dir failed", "error", err)
	} else if added > 0 {
		slog.Info("catalog: scanned new titles", "added", added)
	}
	if err := cat.Write(false); err != nil {
		slog.Warn("catalog: persist after scan failed", "error", err)
	}

	profileName := ""
	if cfg.Active >= 1 && cfg.Active <= len(cfg.Profiles) {
		profileName = cfg.Profiles[cfg.Active-1]
	}
	dnp, err := catalog.LoadMarkList(cfg.DNPPath(profileName))
	if err != nil {
		slog.Error("catalog: fatal startup failure loading dnp list", "error", err)
		os.Exit(1)
	}
	fav, err := catalog.LoadMarkList(cfg.FAVPath(profileName))
	if err != nil {
		slog.Error("catalog: fatal startup failure loading fav list", "error", err)
		os.Exit(1)
	}
	// dbl is global across profiles, unlike dnp/fav — it is never reloaded
	// on a profile switch.
	dbl, err := catalog.LoadMarkList(cfg.DBLPath())
	if err != nil {
		slog.Error("catalog: fatal startup failure loading doublet list", "error", err)
		os.Exit(1)
	}
	cat.ApplyDNP(dnp.Rules())
	cat.ApplyFAV(fav.Rules(), false)
	cat.ApplyDBL(dbl.Rules())

	pl := playlist.New()
	sched := scheduler.New(cat)

	reg := command.NewRegister()
	asyncLk := command.NewAsyncLock()
	clientLk := command.NewClientLock()
	msgs := command.NewMessageRing()
	pwgate, err := command.NewPasswordGate(cfg.Password)
	if err != nil {
		slog.Error("command: fatal startup failure hashing password", "error", err)
		os.Exit(1)
	}

	rdr := player.New(cfg, cat, pl, sched, dnp, fav, dbl, reg, asyncLk, clientLk, msgs, pwgate)
	srv := httpapi.New(cfg, cat, rdr, reg, msgs, clientLk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		runReaderWithRestarts(ctx, cfg, rdr, reg)
	}()

	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			slog.Error("httpapi: server error", "error", err)
		}
	}()

	// Kick off the initial profile activation the same way a command
	// client would with mpc_profile — this is what loads the active
	// profile's DNP/FAV lists, fills the playlist, and starts playback.
	if err := reg.Post(command.Request{Cmd: command.CmdProfile, ClientID: -1}, command.StatusIdle); err != nil {
		slog.Warn("player: initial profile activation failed to post", "error", err)
	}

	wg.Wait()
	slog.Info("mixplay stopped")
}

// runReaderWithRestarts implements spec.md §7's recoverable-decoder
// policy: Reader.Run returns an error on watchdog timeout or decoder
// start failure; restart it on the same profile once, and if it fails
// again on that same profile, fall back to the default profile (1) and
// let the next restart re-activate from there.
func runReaderWithRestarts(ctx context.Context, cfg *config.Config, rdr *player.Reader, reg *command.Register) {
	failingProfile := cfg.Active
	retriedSameProfile := false

	for {
		err := rdr.Run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("player: reader exited, restarting", "error", err)

		select {
		case <-ctx.Done():
			return
		default:
		}

		if cfg.Active == failingProfile && retriedSameProfile {
			slog.Warn("player: repeated failure on the same profile, falling back to default", "profile", cfg.Active)
			cfg.Active = 1
			retriedSameProfile = false
		} else if cfg.Active == failingProfile {
			retriedSameProfile = true
		} else {
			failingProfile = cfg.Active
			retriedSameProfile = false
		}

		if err := reg.Post(command.Request{Cmd: command.CmdProfile, ClientID: -1}, command.StatusIdle); err != nil {
			slog.Warn("player: repost profile activation after restart failed", "error", err)
		}
	}
}
