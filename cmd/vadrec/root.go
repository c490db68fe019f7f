package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/vad-recorder/internal/config"
	"github.com/nupi-ai/vad-recorder/internal/metrics"
	"github.com/nupi-ai/vad-recorder/internal/notify"
	"github.com/nupi-ai/vad-recorder/internal/sink"
	"github.com/nupi-ai/vad-recorder/internal/source"
	"github.com/nupi-ai/vad-recorder/internal/vad"
)

// dotEnvFile is loaded from the working directory before configuration.
const dotEnvFile = ".env"

var errNoAudio = errors.New("no audio captured")

// exitError carries a process exit code through cobra. A nil err exits
// silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

// flagValues holds the raw CLI flags. Only flags the user actually set
// override the loaded configuration.
type flagValues struct {
	configPath  string
	output      string
	threshold   float64
	silence     float64
	max         float64
	quiet       bool
	chunkMs     int
	source      string
	device      string
	input       string
	noSound     bool
	logLevel    string
	metricsFile string
	realtime    bool
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "vadrec: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "vadrec: %v\n", err)
	return exitFailure
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var fv flagValues
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "vadrec",
		Short: "Record from the microphone until you stop talking",
		Long: `vadrec records 16 kHz mono audio and stops automatically once speech has
been followed by a stretch of silence, or when the maximum duration is hit.
The recording is written as a 16-bit PCM WAV file.

Exit status is 0 when audio was written, 1 when nothing was captured and 2
when the recorder could not start or the file could not be written.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, warnings, err := resolveConfig(cmd, fv)
			if err != nil {
				return fail(exitFailure, err)
			}
			logger := newLogger(stderr, cfg.LogLevel)
			for _, warn := range warnings {
				logger.Warn(warn)
			}
			return record(cmd.Context(), cfg, fv.realtime, stdout, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&fv.configPath, "config", "", "YAML configuration file (env "+config.EnvConfigFile+")")
	f.StringVarP(&fv.output, "output", "o", defaults.Output, "output WAV path")
	f.Float64VarP(&fv.threshold, "threshold", "t", defaults.SilenceThreshold, "silence threshold (RMS, 0-1)")
	f.Float64VarP(&fv.silence, "silence", "s", defaults.SilenceDuration, "seconds of silence to stop")
	f.Float64VarP(&fv.max, "max", "m", defaults.MaxDuration, "max recording seconds")
	f.BoolVarP(&fv.quiet, "quiet", "q", false, "suppress messages")
	f.IntVar(&fv.chunkMs, "chunk-ms", defaults.ChunkMs, "analysis chunk length in milliseconds")
	f.StringVar(&fv.source, "source", defaults.Source, "capture backend: auto, portaudio, exec, file or synthetic")
	f.StringVar(&fv.device, "device", "", "capture device name (backend specific)")
	f.StringVar(&fv.input, "input", "", "WAV file to replay with --source file")
	f.BoolVar(&fv.noSound, "no-sound", false, "do not play start/stop indicator sounds")
	f.StringVar(&fv.logLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn or error")
	f.StringVar(&fv.metricsFile, "metrics-file", "", "write Prometheus textfile metrics here after the session")
	f.BoolVar(&fv.realtime, "realtime", true, "pace file and synthetic sources at real time")

	cmd.AddCommand(newDevicesCmd(stdout))
	return cmd
}

// resolveConfig layers .env, the config file, VADREC_* variables and finally
// explicitly set flags.
func resolveConfig(cmd *cobra.Command, fv flagValues) (config.Config, []string, error) {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Loader{}.Read(fv.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = fv.output
	}
	if flags.Changed("threshold") {
		cfg.SilenceThreshold = fv.threshold
	}
	if flags.Changed("silence") {
		cfg.SilenceDuration = fv.silence
	}
	if flags.Changed("max") {
		cfg.MaxDuration = fv.max
	}
	if flags.Changed("quiet") {
		cfg.Quiet = fv.quiet
	}
	if flags.Changed("chunk-ms") {
		cfg.ChunkMs = fv.chunkMs
	}
	if flags.Changed("source") {
		cfg.Source = fv.source
	}
	if flags.Changed("device") {
		cfg.Device = fv.device
	}
	if flags.Changed("input") {
		cfg.Input = fv.input
	}
	if flags.Changed("no-sound") {
		cfg.NoSound = fv.noSound
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = fv.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.Warnings(), nil
}

// record runs one session and writes the result.
func record(ctx context.Context, cfg config.Config, realtime bool, stdout io.Writer, logger *slog.Logger) error {
	params := cfg.VADParams()

	src, err := source.Open(source.Options{
		Kind:          cfg.Source,
		Device:        cfg.Device,
		Input:         cfg.Input,
		ChunkDuration: params.ChunkDuration,
		Realtime:      realtime,
		Logger:        logger,
	})
	if err != nil {
		return fail(exitFailure, err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if !cfg.NoSound {
		player := notify.NewPlayer()
		player.StartSound = cfg.StartSound
		player.StopSound = cfg.StopSound
		notifier = player
	}

	m := metrics.New()
	defer func() {
		if cfg.MetricsFile == "" {
			return
		}
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("writing metrics failed", "error", err)
		}
	}()

	ctrl, err := vad.New(params, src,
		vad.WithNotifier(notifier),
		vad.WithObserver(m),
		vad.WithLogger(logger),
	)
	if err != nil {
		return fail(exitFailure, err)
	}

	logger.Info("starting recorder",
		"version", version,
		"source", src.Name(),
		"output", cfg.Output,
		"silence_threshold", cfg.SilenceThreshold,
		"silence_duration", cfg.SilenceDuration,
		"max_duration", cfg.MaxDuration,
	)
	if !cfg.Quiet {
		fmt.Fprintln(stdout, "Listening... speak when ready.")
	}

	res, err := ctrl.Run(ctx)
	if err != nil {
		return fail(exitFailure, err)
	}
	if !res.Reason.Captured() {
		if cfg.Quiet {
			return fail(exitNoAudio, nil)
		}
		return fail(exitNoAudio, errNoAudio)
	}

	if err := sink.NewWriter().Write(cfg.Output, res.Samples); err != nil {
		return fail(exitFailure, err)
	}
	m.SamplesWritten(len(res.Samples))

	logger.Info("recording saved", "path", cfg.Output, "session_id", res.SessionID, "bytes", len(res.Samples)*2)
	if !cfg.Quiet {
		fmt.Fprintf(stdout, "Saved %.1fs to %s (%s)\n", res.Duration.Seconds(), cfg.Output, res.Reason)
	}
	return nil
}
