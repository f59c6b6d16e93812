package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"ring_home/native/internal/api"
	"ring_home/native/internal/config"
	"ring_home/native/internal/domain"
	sigclient "ring_home/native/internal/signal"
	"ring_home/native/internal/viewer"
	"ring_home/native/internal/webrtc"

	cli "github.com/jawher/mow.cli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	appName = "ringstream"
	appDesc = `Stream H264 video from a Ring camera via WebRTC.

The raw H264 stream is written to stdout. Pipe to ffplay or ffmpeg:
  ringstream live | ffplay -f h264 -
  ringstream live | ffmpeg -f h264 -i - -c copy output.mp4

Configuration is read from RING_* environment variables or a .env file.`
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	app := cli.App(appName, appDesc)

	app.Command("devices", "list video devices on the account", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			ctx, cancel := signalContext()
			defer cancel()

			client, err := apiClient(ctx, cfg)
			if err != nil {
				log.WithError(err).Fatal("failed to authenticate")
			}
			devices, err := client.Devices(ctx)
			if err != nil {
				log.WithError(err).Fatal("failed to list devices")
			}
			printDevices(devices)
		}
	})

	app.Command("live", "stream live video to stdout", func(cmd *cli.Cmd) {
		deviceID := cmd.Int(cli.IntOpt{
			Name:  "d device",
			Desc:  "device id (defaults to RING_DEVICE_ID)",
			Value: int(cfg.DeviceID),
		})
		cmd.Action = func() {
			if *deviceID == 0 {
				log.Fatal("no device id given, see `ringstream devices`")
			}
			if err := runLive(cfg, int64(*deviceID)); err != nil {
				log.WithError(err).Fatal("live stream failed")
			}
		}
	})

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("failed to execute application")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func apiClient(ctx context.Context, cfg *config.Config) (*api.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth := api.NewAuthenticator(cfg.OAuthURL, api.NewTokenStore(cfg.TokenFile))
	tok, err := auth.Token(ctx, api.Credentials{
		RefreshToken: cfg.RefreshToken,
		Username:     cfg.Username,
		Password:     cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	var opts []api.Option
	if cfg.TicketURL != "" {
		opts = append(opts, api.WithTicketURL(cfg.TicketURL))
	}
	if cfg.DevicesURL != "" {
		opts = append(opts, api.WithDevicesURL(cfg.DevicesURL))
	}
	return api.NewClient(auth.Client(ctx, tok), opts...), nil
}

func sessionConfig(cfg *config.Config) sigclient.Config {
	keepAlive := cfg.KeepAliveTimeout
	if keepAlive == 0 {
		keepAlive = -1
	}
	return sigclient.Config{
		SignalURL:        cfg.SignalURL,
		ICEWait:          cfg.ICEWait,
		PingInterval:     cfg.PingInterval,
		KeepAliveTimeout: keepAlive,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
}

func runLive(cfg *config.Config, deviceID int64) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := apiClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := sigclient.NewMetrics(reg)

	peer, err := webrtc.NewPeer(nil)
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}
	defer peer.Close()

	newSession := func(onClose func()) domain.Streamer {
		return sigclient.NewSession(deviceID, client, sigclient.NewWSDialer(), sessionConfig(cfg),
			sigclient.WithMetrics(metrics),
			sigclient.WithCloseCallback(onClose),
			sigclient.WithLogger(log.WithField("module", "signal")),
		)
	}
	keepAlive := cfg.KeepAliveTimeout / 2
	v := viewer.New(peer, newSession, keepAlive)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer cancel()
		log.WithField("device_id", deviceID).Info("starting live view")
		return v.Run(ctx, os.Stdout)
	})

	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		group.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return server.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}

func printDevices(devices []domain.Device) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFAMILY\tKIND\tDESCRIPTION")
	for _, d := range devices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, d.Family, d.Kind, d.Description)
	}
	_ = w.Flush()
}
