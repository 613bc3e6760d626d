package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roman-kulish/sdrcap/internal/recorder"
	"github.com/roman-kulish/sdrcap/internal/sdr"
	"github.com/roman-kulish/sdrcap/internal/sdr/hackrf"
	"github.com/roman-kulish/sdrcap/internal/sdr/rtl"
	"github.com/roman-kulish/sdrcap/internal/telemetry"
)

var _ recorder.Observer = (*telemetry.Metrics)(nil)

// Run records from the configured device until the recording completes or
// ctx is cancelled. Cancellation is a clean shutdown and returns nil.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	params, err := config.Recording.Parameters()
	if err != nil {
		return err
	}

	source, err := createSource(&config.Device, params, logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	session, err := recorder.NewSession(params, source,
		recorder.WithLogger(logger),
		recorder.WithObserver(metrics),
		recorder.WithSinkOptions(config.Recording.SinkOptions()...),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		if cErr := session.Close(); cErr != nil {
			logger.Error(fmt.Sprintf("failed to close session: %s", cErr.Error()))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if config.Metrics.Addr != "" {
		server := telemetry.NewServer(config.Metrics.Addr, reg, telemetry.WithLogger(logger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if sErr := server.Run(ctx); sErr != nil {
				logger.Error(fmt.Sprintf("metrics server failed: %s", sErr.Error()))
			}
		}()
	}

	err = record(ctx, session, config.Recording, logger)

	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording failed (%s): %w", recorder.ErrorKind(err), err)
	}
	return nil
}

func record(ctx context.Context, session *recorder.Session, config RecordingConfig, logger *slog.Logger) error {
	if config.Mode == ModeContinuous {
		return session.RecordContinuous(ctx)
	}

	// the first call on a fresh source only opens it
	for range 2 {
		recorded, err := session.RecordSingle(ctx, config.Label)
		if err != nil {
			return err
		}
		if recorded {
			logger.Info("batch recorded", slog.String("destination", session.Parameters().Destination(config.Label)))
			return nil
		}
	}

	return errors.New("source did not become ready")
}

func createSource(config *DeviceConfig, params recorder.Parameters, logger *slog.Logger) (sdr.Source, error) {
	var handler sdr.Handler
	var err error

	switch c := config.Config.(type) {
	case *rtl.Config:
		if handler, err = rtl.New(c, params.Tuning()); err != nil {
			return nil, fmt.Errorf("creating RTL-SDR device: %w", err)
		}

	case *hackrf.Config:
		if handler, err = hackrf.New(c, params.Tuning()); err != nil {
			return nil, fmt.Errorf("creating HackRF device: %w", err)
		}

	case *FileConfig:
		var options []func(*sdr.FileSource)
		if c.Loop {
			options = append(options, sdr.WithLoop())
		}
		return sdr.NewFileSource(c.Path, c.SampleFormat, options...)

	case *SyntheticConfig:
		var options []func(*sdr.ToneSource)
		if c.Paced {
			options = append(options, sdr.WithPacing())
		}
		return sdr.NewToneSource(params.SampleRate, c.ToneFrequency, c.Amplitude, options...)

	default:
		return nil, fmt.Errorf("creating device: unknown type '%s'", config.Type)
	}

	return sdr.NewDevice(config.Name, handler, sdr.WithLogger(logger)), nil
}
