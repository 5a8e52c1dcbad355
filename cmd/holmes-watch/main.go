// Package main is a terminal observer for the crawl status stream. It keeps a
// live projection of the run and reconnects with adaptive backoff when the
// service goes away; pressing Enter retries immediately.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/clock/system"
	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/logging"
	"github.com/talbz/holmes-ma/internal/observer"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/ws", "Websocket endpoint of the crawl service")
	cachePath := flag.String("cache", defaultCachePath(), "Path for the terminal snapshot cache")
	development := flag.Bool("dev", false, "Enable development logging")
	flag.Parse()

	logger, err := logging.New(*development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := observer.New(observer.Config{
		URL:    *url,
		Cache:  observer.NewFileCache(*cachePath),
		Clock:  system.New(),
		Logger: logger.Named("observer"),
		Hooks: observer.Hooks{
			OnConn:      printConn,
			OnCountdown: printCountdown,
			OnUpdate:    printView,
		},
	})
	if err != nil {
		logger.Fatal("session init failed", zap.Error(err))
	}

	if view := session.View(); view.Job.State.Terminal() {
		fmt.Println("תוצאות ריצה קודמת:")
		printView(view)
	}

	// Enter forces an immediate reconnect attempt.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			session.RetryNow()
		}
	}()

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session ended", zap.Error(err))
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "holmes-watch-snapshot.json"
	}
	return filepath.Join(home, ".holmes-watch", "snapshot.json")
}

func printConn(info observer.ConnInfo) {
	switch info.State {
	case observer.ConnConnected:
		fmt.Println("מחובר לשרת")
	case observer.ConnConnecting:
		fmt.Println("מתחבר לשרת...")
	case observer.ConnDisconnected, observer.ConnError:
		if !info.NextAttemptAt.IsZero() {
			fmt.Printf("החיבור נותק (ניסיון %d), ניסיון חוזר ב-%s\n",
				info.Attempts, info.NextAttemptAt.Format("15:04:05"))
		} else {
			fmt.Println("החיבור נותק")
		}
	}
}

func printCountdown(remaining time.Duration) {
	fmt.Printf("\rניסיון חיבור חוזר בעוד %d שניות (Enter לניסיון מיידי) ", int(remaining.Seconds()))
}

func printView(view observer.ViewState) {
	job := view.Job
	switch job.State {
	case crawl.JobRunning, crawl.JobStopping:
		fmt.Printf("\r[%3d%%] %s", job.Progress, job.Message)
		if job.CurrentDay != "" {
			fmt.Printf(" (%s)", job.CurrentDay)
		}
	case crawl.JobCompleted, crawl.JobFailed:
		counts := countClubs(view)
		fmt.Printf("\n%s - הצליחו %d, נכשלו %d\n", job.Message, counts.Succeeded, counts.Failed)
		if view.LastWarning != "" {
			fmt.Printf("אזהרה אחרונה: %s\n", view.LastWarning)
		}
	}
}

func countClubs(view observer.ViewState) crawl.ClubCounts {
	snap := crawl.Snapshot{Job: view.Job}
	for _, status := range view.Clubs {
		snap.Clubs = append(snap.Clubs, status)
	}
	return snap.Counts()
}
