// Command fakegpsd replays a GPX track as a gpsd TPV stream, for driving
// carnav on a bench without a receiver.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"carnav/pkg/location"
)

var (
	listenAddr string
	trackFile  string
	speed      float64
	interval   time.Duration
	loop       bool
)

var rootCmd = &cobra.Command{
	Use:   "fakegpsd",
	Short: "Serve a GPX track as a gpsd JSON stream",
	Long: `fakegpsd listens like gpsd and, once a client sends ?WATCH, streams the
points of a GPX track as TPV reports. Recorded timestamps set the pace,
scaled by --speed.`,
	RunE: runServe,
}

func init() {
	rootCmd.Flags().StringVarP(&listenAddr, "addr", "a", "127.0.0.1:2947", "Listen address")
	rootCmd.Flags().StringVarP(&trackFile, "file", "f", "", "GPX track to replay")
	rootCmd.Flags().Float64VarP(&speed, "speed", "s", 1.0, "Playback speed factor")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Delay between points without timestamps")
	rootCmd.Flags().BoolVarP(&loop, "loop", "l", false, "Restart the track when it ends")
	_ = rootCmd.MarkFlagRequired("file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	pts, err := location.LoadTrack(trackFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}
	slog.Info("fakegpsd listening", "addr", ln.Addr().String(), "file", trackFile, "points", len(pts), "speed", speed, "loop", loop)

	f := &feeder{points: pts, speed: speed, interval: interval, loop: loop}
	return f.serve(ctx, ln)
}
