package main

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ayusman/asana/internal/classifier"
)

func newPredictorCmd(load loader) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "predictor",
		Short: "Serve the centroid classifier over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Classifier.RemoteAddr
			}

			cc := cfg.Classifier
			cc.Backend = "centroid"
			predictor, codec, err := buildClassifier(cc, cfg.Game.Poses, cfg.Normalize.TorsoMultiplier)
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}

			srv := grpc.NewServer()
			classifier.RegisterPredictorServer(srv, classifier.NewPredictorServer(predictor))
			hs := health.NewServer()
			hs.SetServingStatus(classifier.PredictorServiceName, healthpb.HealthCheckResponse_SERVING)
			healthpb.RegisterHealthServer(srv, hs)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				hs.Shutdown()
				srv.GracefulStop()
			}()

			logger.WithField("addr", lis.Addr().String()).WithField("labels", codec.Labels()).Info("predictor listening")
			return srv.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default classifier.remote_addr)")
	return cmd
}
