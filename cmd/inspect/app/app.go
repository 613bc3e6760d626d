package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	logger.Info("reading recording", slog.String("path", config.Path))

	summary, err := Summarize(ctx, config.Path, config.Group, logger)
	if err != nil {
		return err
	}

	logSummary(logger, summary)
	return nil
}

func logSummary(logger *slog.Logger, s *Summary) {
	attrs := []any{
		slog.String("format", s.Format.String()),
		slog.String("size", humanize.Bytes(uint64(s.Size))),
		slog.String("samples", humanize.Comma(s.Samples)),
	}

	if s.Samples > 0 {
		attrs = append(attrs,
			slog.String("first", s.First.UTC().Format(time.DateTime+".000000")),
			slog.String("last", s.Last.UTC().Format(time.DateTime+".000000")),
			slog.Duration("span", s.Span()),
			slog.String("peak", fmt.Sprintf("%0.4f", s.Peak)))
	}

	if s.Metadata != nil {
		attrs = append(attrs,
			slog.Int("chunks", s.Chunks),
			slog.Group("metadata",
				slog.String("centerFrequency", humanize.SIWithDigits(s.Metadata.CenterFrequency, 3, "Hz")),
				slog.String("sampleRate", humanize.SIWithDigits(s.Metadata.SampleRate, 3, "S/s")),
				slog.Int("freqCorrection", s.Metadata.FreqCorrection),
				slog.String("gain", s.Metadata.Gain)))
	}

	if s.Power != nil {
		attrs = append(attrs,
			slog.Group("power",
				slog.String("min", fmt.Sprintf("%0.2fdBFS", s.Power.Min)),
				slog.String("max", fmt.Sprintf("%0.2fdBFS", s.Power.Max)),
				slog.String("mean", fmt.Sprintf("%0.2fdBFS", s.Power.Mean))))
	}

	logger.Info("recording summary", attrs...)
}
