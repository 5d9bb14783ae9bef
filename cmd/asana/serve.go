package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/classifier"
	"github.com/ayusman/asana/internal/config"
	"github.com/ayusman/asana/internal/emitter"
	"github.com/ayusman/asana/internal/feature"
	"github.com/ayusman/asana/internal/game"
	"github.com/ayusman/asana/internal/landmark"
	"github.com/ayusman/asana/internal/metrics"
	"github.com/ayusman/asana/internal/server"
	"github.com/ayusman/asana/internal/session"
	"github.com/ayusman/asana/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	st, err := store.Open(ctx, cfg.Leaderboard.Driver, cfg.Leaderboard.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	predictor, codec, err := buildClassifier(cfg.Classifier, cfg.Game.Poses, cfg.Normalize.TorsoMultiplier)
	if err != nil {
		return err
	}
	if c, ok := predictor.(interface{ Close() error }); ok {
		defer c.Close()
	}

	targets, err := buildTargets(cfg.Game.Poses, codec)
	if err != nil {
		return err
	}
	tracker := game.NewTracker(cfg.Game.HoldThreshold, targets)

	sessions, err := buildSessionStore(ctx, cfg, tracker)
	if err != nil {
		return err
	}
	if c, ok := sessions.(interface{ Close() error }); ok {
		defer c.Close()
	}

	var publisher app.HoldPublisher
	if cfg.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         1,
		}, logger)
		if err := em.Connect(ctx); err != nil {
			logger.WithError(err).Warn("mqtt unavailable, holds will not be published")
		} else {
			defer em.Disconnect()
			publisher = em
		}
	}

	orch, err := app.New(app.Config{
		Adapter:         classifier.NewAdapter(predictor, codec, cfg.Classifier.MaxConcurrency),
		Store:           sessions,
		Tracker:         tracker,
		Alpha:           cfg.Smoothing.Alpha,
		TorsoMultiplier: cfg.Normalize.TorsoMultiplier,
		Recorder:        st.Holds(),
		Publisher:       publisher,
		Metrics:         metrics.New(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.WithField("dir", webDir).Info("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:    webDir,
		Store:        st,
		Orchestrator: orch,
		WS: server.WSConfig{
			PongWait:        cfg.WS.PongWait,
			WriteWait:       cfg.WS.WriteWait,
			MaxMessageBytes: cfg.WS.MaxMessageBytes,
		},
		Logger: logger,
	})
	httpSrv := srv.HTTPServer(cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":       cfg.Server.Addr,
			"classifier": cfg.Classifier.Backend,
			"sessions":   cfg.Session.Strategy,
			"poses":      targets.Poses(),
		}).Info("starting server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildClassifier creates the predictor and the label codec it is ordered by.
func buildClassifier(cfg config.Classifier, poses []string, torsoMultiplier float64) (classifier.Predictor, *classifier.LabelCodec, error) {
	var (
		codec *classifier.LabelCodec
		err   error
	)
	if cfg.LabelsFile != "" {
		codec, err = classifier.LoadLabelCodec(cfg.LabelsFile)
	} else {
		codec, err = classifier.NewLabelCodec(poses)
	}
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case "remote":
		p, err := classifier.DialRemotePredictor(cfg.RemoteAddr, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return p, codec, nil
	case "centroid":
		if cfg.CentroidsFile != "" {
			p, err := classifier.LoadCentroidPredictor(cfg.CentroidsFile, codec, feature.Length, cfg.Temperature)
			if err != nil {
				return nil, nil, err
			}
			return p, codec, nil
		}
		p, err := classifier.NewCentroidPredictor(codec, referenceTemplates(torsoMultiplier), feature.Length, cfg.Temperature)
		if err != nil {
			return nil, nil, fmt.Errorf("built-in centroids cover chair, tree and warrior only; set classifier.centroids_file: %w", err)
		}
		return p, codec, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
}

// buildTargets draws targets from poses, which must all be classifier labels.
func buildTargets(poses []string, codec *classifier.LabelCodec) (*game.Targets, error) {
	for _, p := range poses {
		if codec.Index(p) < 0 {
			return nil, fmt.Errorf("game pose %q is not a classifier label %v", p, codec.Labels())
		}
	}
	return game.NewTargets(poses, game.DefaultSource())
}

// referenceTemplates derives centroids from the reference landmark frames.
func referenceTemplates(torsoMultiplier float64) []classifier.Template {
	return []classifier.Template{
		{Label: "chair", Features: feature.Extract(landmark.ChairLandmarks(), torsoMultiplier)},
		{Label: "tree", Features: feature.Extract(landmark.TreeLandmarks(), torsoMultiplier)},
		{Label: "warrior", Features: feature.Extract(landmark.WarriorLandmarks(), torsoMultiplier)},
	}
}

func buildSessionStore(ctx context.Context, cfg *config.Config, tracker *game.Tracker) (session.Store, error) {
	if cfg.Session.Strategy != session.StrategyRedis {
		return session.NewMemoryStore(tracker), nil
	}
	return session.NewRedisStore(ctx, session.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.TTL,
	}, tracker)
}
