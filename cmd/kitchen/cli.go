package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/audio"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/bootstrap"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/capability"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/config"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/logging"
)

// newCLIApp creates the headless CLI with all commands writing to out.
func newCLIApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "kitchen",
		Usage:   "Voice ingredient capture for carnivore recipes",
		Version: Version,
		Commands: []*cli.Command{
			probeCmd(out),
			recordCmd(out),
			serveCmd(),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

type probeReport struct {
	Transcriber  string              `json:"transcriber"`
	Endpoint     string              `json:"endpoint"`
	Capabilities domain.Capabilities `json:"capabilities"`
	Encoding     string              `json:"encoding"`
	Encoders     []string            `json:"ffmpegEncodings"`
}

func probeCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Report whether this machine can capture audio",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			probe := audio.NewFFMPEGProbe(cfg.Audio.RecorderCommand, cfg.Audio.InputFormat)
			endpoint := bootstrap.TranscriberEndpoint(cfg)
			caps := capability.Probe(capability.HostEnvironment{Endpoint: endpoint, Recorder: probe})

			return outputJSON(out, probeReport{
				Transcriber:  cfg.Transcriber,
				Endpoint:     endpoint,
				Capabilities: caps,
				Encoding:     capability.SelectEncoding(caps),
				Encoders:     probe.Encodings(),
			})
		},
	}
}

type recordReport struct {
	Result domain.StopResult `json:"result"`
	Recipe *domain.Recipe    `json:"recipe,omitempty"`
}

func recordCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record ingredients from the microphone and transcribe them",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: 5 * time.Second, Usage: "How long to record"},
			&cli.BoolFlag{Name: "generate", Aliases: []string{"g"}, Usage: "Generate a recipe from the transcript"},
			&cli.StringFlag{Name: "diet", Value: string(domain.DietStrict), Usage: "Diet type: strict|flexible"},
		},
		Action: func(c *cli.Context) error {
			diet, err := parseDiet(c.String("diet"))
			if err != nil {
				return err
			}
			if c.Duration("duration") <= 0 {
				return fmt.Errorf("duration must be positive")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log)
			services, err := bootstrap.BuildWithConfig(cfg, logger, logSink{logger: logger})
			if err != nil {
				return err
			}

			ctx := c.Context
			if err := services.Controller.Start(ctx); err != nil {
				return err
			}

			select {
			case <-time.After(c.Duration("duration")):
			case <-ctx.Done():
				_ = services.Controller.Cancel()
				return ctx.Err()
			}

			result, err := services.Controller.Stop(ctx)
			if err != nil {
				return err
			}
			report := recordReport{Result: result}

			if c.Bool("generate") {
				recipe, err := services.Recipes.Generate(ctx, result.FinalTranscript, diet)
				if err != nil {
					return fmt.Errorf("generate recipe: %w", err)
				}
				report.Recipe = &recipe
			}
			return outputJSON(out, report)
		},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the transcribe-audio, generate-recipe and process-image-ocr functions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (defaults to KITCHEN_LISTEN_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			addr := cfg.Edge.ListenAddr
			if c.String("addr") != "" {
				addr = c.String("addr")
			}
			logger := logging.New(cfg.Log)
			return bootstrap.BuildEdgeServer(cfg, logger).ListenAndServe(c.Context, addr)
		},
	}
}

func parseDiet(value string) (domain.DietType, error) {
	switch diet := domain.DietType(strings.ToLower(strings.TrimSpace(value))); diet {
	case "":
		return domain.DietStrict, nil
	case domain.DietStrict, domain.DietFlexible:
		return diet, nil
	default:
		return "", fmt.Errorf("unknown diet %q: use strict or flexible", value)
	}
}

func outputJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// logSink reports session events through the logger.
type logSink struct {
	logger zerolog.Logger
}

func (s logSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.logger.Info().Str("state", string(state)).Str("reason", string(reason)).Msg("session")
}

func (s logSink) TranscriptionComplete(result domain.StopResult) {
	s.logger.Info().Str("session_id", result.SessionID).Int("bytes", result.AudioBytes).Msg("transcript ready")
}

func (s logSink) TranscriptionFailed(err *domain.RecorderError) {
	s.logger.Error().Str("code", string(err.Code)).Str("reason", string(err.Reason)).Msg(err.Message)
}

func (s logSink) SessionError(code domain.ErrorCode, detail string) {
	s.logger.Warn().Str("code", string(code)).Msg(detail)
}
