// Command viewer is a headless viewer: it joins the broadcast channel of a
// routecast server, animates whatever is played on its scene and writes the
// current frame to a PNG file at a fixed interval.
package main

import (
	"context"
	"errors"
	"flag"
	"image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jengzang/routecast/internal/broadcast"
	"github.com/jengzang/routecast/internal/config"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/render"
)

var (
	serverURL = flag.String("url", "ws://localhost:8080/ws", "Websocket URL of the server")
	sceneID   = flag.String("scene", "", "Scene to show")
	token     = flag.String("token", os.Getenv("ROUTECAST_TOKEN"), "Bearer token")
	out       = flag.String("out", "frame.png", "Frame file")
	interval  = flag.Duration("interval", time.Second, "Frame write interval")
)

func main() {
	flag.Parse()
	if *sceneID == "" {
		log.Fatal("-scene is required")
	}
	cfg := config.Load()

	viewer, err := render.NewContext(render.Config{
		SceneID:   *sceneID,
		Screen:    models.Size{Width: float64(cfg.ScreenWidth), Height: float64(cfg.ScreenHeight)},
		AssetDir:  cfg.AssetDir,
		FontPath:  cfg.FontPath,
		FrameRate: cfg.FrameRate,
	})
	if err != nil {
		log.Fatal("Failed to create viewer:", err)
	}
	defer viewer.Close()

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}
	client := broadcast.NewClient(*serverURL, header)
	broadcast.NewCoordinator(client, viewer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go viewer.Run(ctx)
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Viewer] client stopped: %v", err)
		}
	}()

	log.Printf("[Viewer] showing scene %s from %s", *sceneID, *serverURL)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeFrame(viewer, *out); err != nil {
				log.Printf("[Viewer] %v", err)
			}
		}
	}
}

// writeFrame writes to a temp file and renames it over path.
func writeFrame(viewer *render.Context, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := png.Encode(tmp, viewer.Snapshot()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
