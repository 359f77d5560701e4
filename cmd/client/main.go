package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/chatsync/internal/client/api"
	"github.com/cloudzz-dev/chatsync/internal/client/config"
	"github.com/cloudzz-dev/chatsync/internal/client/engine"
	"github.com/cloudzz-dev/chatsync/internal/client/logging"
	"github.com/cloudzz-dev/chatsync/internal/client/loop"
	"github.com/cloudzz-dev/chatsync/internal/client/session"
	"github.com/cloudzz-dev/chatsync/internal/client/ws"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("chatsync", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	path, _ := fs.GetString("config")
	cfg, err := config.Load(path, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Log.Enabled, cfg.Log.File, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	// A saved token is only reused against the server it was issued for.
	var token string
	sess, err := session.Load(cfg.Profile)
	switch {
	case err == nil && sess.ServerURL == cfg.Server.WSURL:
		token = sess.Token
	case err != nil && !errors.Is(err, session.ErrNotFound):
		logger.WithError(err).Warn("load session")
	}

	// The sync core runs inside the program's Update, one task per message.
	var p *tea.Program
	lp := loop.NewExternal(func(task func()) { p.Send(taskMsg(task)) })
	defer lp.Close()

	backend := api.New(api.Options{
		BaseURL:    cfg.Server.APIURL,
		Timeout:    cfg.HTTP.Timeout,
		MembersTTL: cfg.Sync.MembersTTL,
		Logger:     logger,
	})
	eng := engine.New(engine.Options{
		Loop: lp,
		Dialer: &ws.GorillaDialer{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			PingPeriod:       cfg.Transport.PingPeriod,
			WriteWait:        cfg.Transport.WriteWait,
		},
		Backend:        backend,
		URL:            cfg.Server.WSURL,
		ReconnectDelay: cfg.Sync.ReconnectDelay,
		TypingIdle:     cfg.Sync.TypingIdle,
		TypingExpiry:   cfg.Sync.TypingExpiry,
		MatchWindow:    cfg.Sync.MatchWindow,
		Logger:         logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := initialModel(ctx, eng, cfg, token)
	m.log = logger
	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
