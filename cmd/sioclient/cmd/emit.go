package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient/config"
	"github.com/tsarna/sioclient/pkg/sioclient/transform"
)

// emitCmd represents the emit command
var emitCmd = &cobra.Command{
	Use:   "emit <event> [args...]",
	Short: "Emit an event to a Socket.IO server",
	Long: `Emit an event with zero or more arguments.

Each argument is parsed as JSON if possible and sent as a string otherwise.
Files given with --file are appended as binary attachments.

With --ack the command waits for the server's acknowledgement and prints
its payload as JSON. With --schedule the event is emitted repeatedly on a
cron schedule until interrupted.

Examples:
  sioclient emit --url ws://localhost:3000 message "hello"
  sioclient emit --url ws://localhost:3000 -n /chat join '{"room":"lobby"}' --ack
  sioclient emit --url ws://localhost:3000 upload report.pdf --file ./report.pdf
  sioclient emit --config client.hcl ping --schedule "@every 10s"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmit,
}

var (
	emitAck        bool
	emitAckTimeout time.Duration
	emitTimeout    time.Duration
	emitSchedule   string
	emitFiles      []string
)

const defaultAckTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(emitCmd)

	emitCmd.Flags().BoolVar(&emitAck, "ack", false, "wait for the server's acknowledgement and print it")
	emitCmd.Flags().DurationVar(&emitAckTimeout, "ack-timeout", 0, "acknowledgement timeout (default from config, else 10s)")
	emitCmd.Flags().DurationVar(&emitTimeout, "timeout", 30*time.Second, "total operation timeout for a single emit")
	emitCmd.Flags().StringVar(&emitSchedule, "schedule", "", "cron spec to repeat the emit on, e.g. \"@every 5s\" or \"*/10 * * * * *\"")
	emitCmd.Flags().StringArrayVar(&emitFiles, "file", nil, "append a file's contents as a binary argument (repeatable)")
}

func runEmit(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emitArgs := parseEmitArgs(args[1:])
	for _, path := range emitFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		emitArgs = append(emitArgs, data)
	}

	emit := &config.EmitSettings{
		Name:       "cli",
		Event:      args[0],
		Args:       emitArgs,
		Schedule:   emitSchedule,
		Ack:        emitAck,
		AckTimeout: emitAckTimeout,
	}
	if err := emit.Validate(); err != nil {
		return err
	}

	s, err := openSession(ctx, cmd, logger, nil)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	if emit.Ack && emit.AckTimeout == 0 {
		emit.AckTimeout = s.settings.AckTimeout
		if emit.AckTimeout == 0 {
			emit.AckTimeout = defaultAckTimeout
		}
	}

	if emit.Schedule != "" {
		return runScheduledEmit(ctx, s, emit, logger)
	}

	opCtx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	logger.Info("Emitting event",
		zap.String("event", emit.Event),
		zap.Int("args", len(emit.Args)),
		zap.Bool("ack", emit.Ack),
	)

	reply, err := emit.Send(opCtx, s.client)
	if err != nil {
		return fmt.Errorf("failed to emit %q: %w", emit.Event, err)
	}

	if emit.Ack {
		if len(reply) == 0 {
			logger.Warn("Acknowledgement was empty or timed out", zap.Duration("ack-timeout", emit.AckTimeout))
		}
		printPayload(transform.NewEvent(s.client.Namespace(), emit.Event, reply).Payload)
	}

	return nil
}

func runScheduledEmit(ctx context.Context, s *session, emit *config.EmitSettings, logger *zap.Logger) error {
	scheduler := config.NewScheduler(logger)
	if _, err := emit.AddTo(scheduler, s.client, logger); err != nil {
		return err
	}

	scheduler.Start()
	logger.Info("Emitting on schedule... (Press Ctrl+C to exit)",
		zap.String("event", emit.Event),
		zap.String("schedule", emit.Schedule),
	)

	select {
	case <-ctx.Done():
		logger.Debug("Signal received, exiting")
	case <-s.Disconnected():
	}

	<-scheduler.Stop().Done()
	return nil
}

// parseEmitArgs decodes each argument as JSON, falling back to the raw string.
func parseEmitArgs(args []string) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		out[i] = v
	}
	return out
}

func printPayload(payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("<error marshaling JSON: %v>\n", err)
		return
	}
	fmt.Println(string(b))
}
