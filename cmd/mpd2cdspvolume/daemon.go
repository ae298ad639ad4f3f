package main

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
)

// runDaemon runs the mixer monitor together with its companions until ctx
// is canceled or one of them fails:
//   - the monitor itself (the only goroutine talking to MPD and CamillaDSP)
//   - the legacy SIGHUP handler
//   - the optional control socket
func runDaemon(
	ctx context.Context,
	monitor *MixerMonitor,
	sink *VolumeSink,
	hup <-chan os.Signal,
	ipcSocket string,
	status *SyncStatus,
	logger *slog.Logger,
) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				sink.StoreVolume()
			}
		}
	})

	if ipcSocket != "" {
		g.Go(func() error {
			return runIPCServer(ctx, ipcSocket, status, logger)
		})
	}

	return g.Wait()
}
