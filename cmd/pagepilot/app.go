package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/browser"
	"github.com/v0xg/pagepilot/internal/config"
	"github.com/v0xg/pagepilot/internal/dispatcher"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/pagestate"
	"github.com/v0xg/pagepilot/internal/recorder"
	"github.com/v0xg/pagepilot/internal/relay"
	"github.com/v0xg/pagepilot/internal/tab"
)

// app is the wired component graph shared by the subcommands
type app struct {
	cfg      *config.Config
	log      logger.Logger
	browser  *browser.Browser
	relay    *relay.Relay
	recorder *recorder.Recorder
}

func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if controllerURL != "" {
		cfg.Controller.URL = controllerURL
	}
	log := logger.NewLogrusLogger(cfg.Log.Level, logger.Format(cfg.Log.Format))
	return cfg, log, nil
}

func (a *app) dialer() relay.WSDialer {
	return relay.WSDialer{URL: a.cfg.Controller.URL, HandshakeTimeout: a.cfg.Controller.HandshakeTimeout}
}

// newApp launches the browser and wires dispatcher, page state and relay on top of it
func newApp(ctx context.Context, recording bool) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	a.browser, err = browser.Launch(ctx, browser.Options{
		Width:      cfg.Browser.Width,
		Height:     cfg.Browser.Height,
		Headless:   cfg.Browser.Headless,
		Stealth:    cfg.Browser.Stealth,
		NoSandbox:  cfg.Browser.NoSandbox,
		ProfileDir: cfg.Browser.ProfileDir,
		ControlURL: cfg.Browser.ControlURL,
		Timeout:    cfg.Browser.Timeout,

		ActionTimeout: cfg.Browser.ActionTimeout,

		Executor: executor.Options{
			ScrollSettle:      cfg.Executor.ScrollSettle,
			ClickSettle:       cfg.Executor.ClickSettle,
			BoundaryTolerance: boundaryTolerance(cfg.Executor.BoundaryTolerance),
		},
	}, log)
	if err != nil {
		return nil, err
	}

	stateOpts := pagestate.Options{
		MinInterval: cfg.Capture.MinInterval,
		MaxWidth:    cfg.Capture.MaxWidth,
	}
	if recording {
		a.recorder = recorder.New(recorder.Options{
			FPS:       cfg.Record.FPS,
			MaxWidth:  cfg.Record.MaxWidth,
			MaxFrames: cfg.Record.MaxFrames,
		})
		stateOpts.OnScreenshot = func(id tab.ID, shot []byte) {
			if err := a.recorder.Add(shot); err != nil {
				log.Warn(ctx, "dropping recorded frame", map[string]interface{}{"tab_id": string(id), "error": err.Error()})
			}
		}
	}
	provider := pagestate.NewProvider(a.browser, stateOpts, log)

	d := dispatcher.New(a.browser, a.browser, provider, dispatcher.Options{
		PingTimeout:  cfg.Dispatch.PingTimeout,
		InjectSettle: cfg.Dispatch.InjectSettle,
		OnReadiness: func(t dispatcher.Transition) {
			log.Debug(ctx, "executor readiness", map[string]interface{}{
				"tab_id": string(t.Tab),
				"from":   string(t.From),
				"to":     string(t.To),
			})
		},
	}, log)

	a.relay = relay.New(a.browser, d, provider, a.dialer(), log)
	return a, nil
}

// boundaryTolerance maps a configured tolerance of 0 to exact boundaries;
// the executor reads a zero tolerance as "use the default"
func boundaryTolerance(px float64) float64 {
	if px <= 0 {
		return executor.ExactBoundaries
	}
	return px
}

func (a *app) open(ctx context.Context, url string) (tab.Info, error) {
	fmt.Printf("→ Opening %s... ", url)
	info, err := a.browser.Open(ctx, url)
	if err != nil {
		fmt.Println("failed")
		return tab.Info{}, err
	}
	fmt.Printf("done (%s)\n", info.Title)
	return info, nil
}

func runTask(cmd *cobra.Command, args []string) error {
	url, goal := args[0], args[1]

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, record != "")
	if err != nil {
		return err
	}
	defer a.browser.Close()

	info, err := a.open(ctx, url)
	if err != nil {
		return err
	}

	a.relay.OnEvent(printEvent)
	go func() {
		<-ctx.Done()
		a.relay.Stop()
	}()

	taskCtx := ctx
	if a.cfg.Controller.TaskTimeout > 0 {
		var stop context.CancelFunc
		taskCtx, stop = context.WithTimeout(ctx, a.cfg.Controller.TaskTimeout)
		defer stop()
	}

	fmt.Printf("→ Pursuing %q via %s\n", goal, a.cfg.Controller.URL)
	st, err := a.relay.RunTask(taskCtx, relay.Task{Goal: goal, TabID: info.ID})
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}

	switch st.Status {
	case relay.StatusCompleted:
		fmt.Printf("✓ %s (%d steps)\n", st.Message, st.Steps)
	case relay.StatusStopped:
		fmt.Printf("■ Stopped after %d steps\n", st.Steps)
	default:
		fmt.Printf("✗ %s\n", st.Message)
	}

	if a.recorder != nil {
		fmt.Printf("→ Generating GIF (%d frames)... ", a.recorder.Len())
		size, err := a.recorder.Save(record)
		if err != nil {
			fmt.Println("failed")
			return fmt.Errorf("GIF generation failed: %w", err)
		}
		fmt.Println("done")
		fmt.Printf("✓ Saved to %s (%.1f MB)\n", record, float64(size)/(1024*1024))
	}

	if st.Status == relay.StatusFailed {
		return errors.New(st.Message)
	}
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.browser.Close()

	if len(args) == 1 {
		if _, err := a.open(ctx, args[0]); err != nil {
			return err
		}
	}

	listen := a.cfg.Server.Addr
	if addr != "" {
		listen = addr
	}
	srv := &http.Server{
		Addr:         listen,
		Handler:      relay.NewServer(ctx, a.relay, a.log).Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "relay listening", map[string]interface{}{"addr": listen})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.relay.Stop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func execAction(cmd *cobra.Command, args []string) error {
	url, raw := args[0], args[1]
	ctx := cmd.Context()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.browser.Close()

	info, err := a.open(ctx, url)
	if err != nil {
		return err
	}

	resp := a.relay.Handle(ctx, relay.Request{Type: relay.TypeExecuteAction, TabID: info.ID, Action: json.RawMessage(raw)})
	if !fullResult && resp.Result != nil {
		trimmed := *resp.Result
		trimmed.Details = trimmed.Details.With(nil)
		delete(trimmed.Details, action.DetailHTML)
		delete(trimmed.Details, action.DetailScreenshot)
		resp.Result = &trimmed
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !resp.Success {
		return fmt.Errorf("action failed: %s", resp.Message)
	}
	return nil
}

func checkController(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Controller.HandshakeTimeout+5*time.Second)
	defer cancel()

	fmt.Printf("→ Checking %s... ", cfg.Controller.URL)
	a := &app{cfg: cfg, log: log}
	r := relay.New(nil, nil, nil, a.dialer(), log)
	if err := r.CheckConnection(ctx); err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("ok")
	return nil
}

// printEvent renders task events as progress lines
func printEvent(e relay.Event) {
	switch e.Kind {
	case relay.EventAction:
		fmt.Printf("  → %s\n", e.Message)
	case relay.EventResult:
		logVerbose("    ✓ %s", e.Message)
	case relay.EventError:
		fmt.Printf("    ✗ %s\n", e.Message)
	case relay.EventMessage:
		fmt.Printf("  💬 %s\n", e.Message)
	case relay.EventComplete:
		logVerbose("  complete: %s", e.Message)
	}
}
