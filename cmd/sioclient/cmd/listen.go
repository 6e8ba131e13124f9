package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient/client"
	"github.com/tsarna/sioclient/pkg/sioclient/config"
	"github.com/tsarna/sioclient/pkg/sioclient/subutils"
	"github.com/tsarna/sioclient/pkg/sioclient/transform"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen [event-patterns...]",
	Short: "Print events received from a Socket.IO server",
	Long: `Connect and print every received event as "<event>\t<json>".

Arguments are MQTT-style patterns matched against event names, with "/" as
the level separator: "+" matches one level and "#" any number of levels.
With no patterns every event is printed.

The payload is the array of event arguments; binary attachments appear as
base64 strings. --jq reshapes it, with $event and $namespace available.
Scheduled emit blocks from --config run while listening.

Examples:
  sioclient listen --url ws://localhost:3000
  sioclient listen --url ws://localhost:3000 -n /chat "chat/#" status
  sioclient listen --url ws://localhost:3000 --jq '{from: .[0].user, text: .[0].text}'`,
	RunE: runListen,
}

var (
	listenJq        string
	listenQueueSize int
	listenNoEmits   bool
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenJq, "jq", "", "jq query applied to each payload")
	listenCmd.Flags().IntVar(&listenQueueSize, "queue-size", 1000, "events buffered for printing before new ones are dropped")
	listenCmd.Flags().BoolVar(&listenNoEmits, "no-emits", false, "do not run scheduled emits from the configuration")
}

func runListen(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transforms := []transform.EventTransformFunc{transform.KeepEventPattern(args...)}
	if listenJq != "" {
		jq, err := transform.JqTransform(listenJq, logger)
		if err != nil {
			return err
		}
		transforms = append(transforms, jq)
	}

	var printer *subutils.AsyncQueueingHandler

	s, err := openSession(ctx, cmd, logger, func(c *client.Client) {
		handler := subutils.TransformEvents(c.Namespace(), printEvent, transforms...)
		printer = subutils.NewAsyncQueueingHandler(handler, listenQueueSize).Start()
		c.OnAny(subutils.NewNamedLoggingHandler(printer.Handle, logger, zap.DebugLevel, "listen").AnyHandler())
	})
	if err != nil {
		if printer != nil {
			printer.Close()
		}
		return err
	}

	logger.Info("Listening for events... (Press Ctrl+C to exit)", zap.Strings("patterns", args))

	scheduler := config.NewScheduler(logger)
	if !listenNoEmits {
		added, err := s.cfg.ScheduleEmits(scheduler, s.client)
		if err != nil {
			s.Close(context.Background())
			printer.Close()
			return err
		}
		if added > 0 {
			logger.Info("Scheduled emits started", zap.Int("count", added))
		}
	}
	scheduler.Start()

	select {
	case <-ctx.Done():
		logger.Debug("Signal received, exiting")
	case <-s.Disconnected():
	}

	<-scheduler.Stop().Done()
	s.Close(context.Background())
	printer.Close()

	if dropped := printer.Dropped(); dropped > 0 {
		logger.Warn("Events dropped because the output queue was full", zap.Int64("dropped", dropped))
	}

	logger.Info("Shutdown complete")
	return nil
}

func printEvent(ev *transform.Event) {
	b, err := json.Marshal(ev.Payload)
	if err != nil {
		fmt.Printf("%s\t<error marshaling JSON: %v>\n", ev.Name, err)
		return
	}
	fmt.Printf("%s\t%s\n", ev.Name, string(b))
}
