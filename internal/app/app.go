// Package app wires configuration into a ready to use tool dispatcher
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/richard-senior/xthread/internal/config"
	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/automation"
	"github.com/richard-senior/xthread/pkg/history"
	"github.com/richard-senior/xthread/pkg/imagegen"
	"github.com/richard-senior/xthread/pkg/social"
	"github.com/richard-senior/xthread/pkg/tools"
	"github.com/richard-senior/xthread/pkg/transport"
)

const (
	Name    = "xthread"
	Version = "1.0.0"
)

// App owns the long lived pieces built from a Config
type App struct {
	Automation *automation.Automation
	Dispatcher *tools.Dispatcher
	history    *history.Store
}

// ConfigureLogging applies the log level and destination from cfg
func ConfigureLogging(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.SetShowDateTime(true)
	return logger.SetLogOutput(rune(cfg.LogOutput[0]), cfg.LogFile)
}

// Build creates the providers and the dispatcher. A missing Google key leaves
// image generation disabled rather than failing; missing X credentials only
// warn so the server can still be listed and inspected.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	client := transport.NewHTTPClient(cfg.HTTPTimeout, cfg.ExtraCABundle)

	var images automation.ImageProvider
	if cfg.GoogleAIAPIKey != "" {
		p, err := imagegen.NewGenAIProvider(ctx, cfg.GoogleAIAPIKey, cfg.ImageModel, "")
		if err != nil {
			return nil, err
		}
		logger.Info("Image generation using model", p.Model())
		images = p
	} else {
		logger.Warn("GOOGLE_AI_API_KEY is not set, generateImages will fail")
	}

	var poster automation.SocialPoster
	if cfg.DryRun {
		logger.Highlight("DRY_RUN is set, nothing will be posted to X")
		poster = social.NewDryRunPoster()
	} else {
		if missing := cfg.MissingTwitterCredentials(); len(missing) > 0 {
			logger.Warn("X credentials missing, uploads and posts will fail:", strings.Join(missing, ", "))
		}
		signed := social.NewOAuth1Client(ctx, client, social.Credentials{
			ConsumerKey:    cfg.TwitterAPIKey,
			ConsumerSecret: cfg.TwitterAPISecret,
			AccessToken:    cfg.TwitterAccessToken,
			AccessSecret:   cfg.TwitterAccessTokenSecret,
		})
		poster = social.NewXPoster(signed, cfg.TwitterAPIBase)
	}

	a := &App{}
	opts := automation.Options{
		StoragePath: cfg.ImageStoragePath,
		Images:      images,
		Poster:      poster,
		Fetcher:     transport.NewImageFetcher(client),
	}
	if cfg.PostHistoryDB != "" {
		store, err := history.Open(cfg.PostHistoryDB)
		if err != nil {
			return nil, err
		}
		a.history = store
		opts.History = store
	}

	auto, err := automation.New(opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to set up automation: %w", err)
	}
	a.Automation = auto

	// a nil *history.Store must not become a non-nil interface
	if a.history != nil {
		a.Dispatcher = tools.NewDispatcher(auto, a.history)
	} else {
		a.Dispatcher = tools.NewDispatcher(auto, nil)
	}
	logger.Info("Image storage path:", cfg.ImageStoragePath)
	return a, nil
}

// VerifyCredentials checks the X credentials in cfg and returns the account name
func VerifyCredentials(ctx context.Context, cfg *config.Config) (string, error) {
	if missing := cfg.MissingTwitterCredentials(); len(missing) > 0 {
		return "", fmt.Errorf("missing X credentials: %s", strings.Join(missing, ", "))
	}
	client := social.NewOAuth1Client(ctx, transport.NewHTTPClient(cfg.HTTPTimeout, cfg.ExtraCABundle), social.Credentials{
		ConsumerKey:    cfg.TwitterAPIKey,
		ConsumerSecret: cfg.TwitterAPISecret,
		AccessToken:    cfg.TwitterAccessToken,
		AccessSecret:   cfg.TwitterAccessTokenSecret,
	})
	return social.VerifyCredentials(client)
}

func (a *App) Close() error {
	if a == nil || a.history == nil {
		return nil
	}
	return a.history.Close()
}
