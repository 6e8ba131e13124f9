package config

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
)

// CronParser accepts standard five-field specs, an optional leading
// seconds field, and descriptors such as "@hourly" or "@every 5m".
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewScheduler returns a cron scheduler that logs through logger.
func NewScheduler(logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	return cron.New(cron.WithLogger(NewZapCronLogger(logger)), cron.WithParser(CronParser))
}

// ScheduleEmits adds a job to scheduler for every emit with a schedule and
// returns how many were added.
func (c *Config) ScheduleEmits(scheduler *cron.Cron, cl *client.Client) (int, error) {
	added := 0
	for _, emit := range c.Emits {
		if emit.Schedule == "" {
			continue
		}
		if _, err := emit.AddTo(scheduler, cl, c.Logger); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// AddTo schedules the emit on scheduler.
func (e *EmitSettings) AddTo(scheduler *cron.Cron, cl *client.Client, logger *zap.Logger) (cron.EntryID, error) {
	if e.Schedule == "" {
		return 0, fmt.Errorf("emit %q has no schedule", e.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	job := &EmitJob{
		settings: e,
		client:   cl,
		logger:   logger.With(zap.String("emit", e.Name), zap.String("event", e.Event)),
	}

	id, err := scheduler.AddJob(e.cronSpec(), job)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule emit %q: %w", e.Name, err)
	}
	return id, nil
}

// EmitJob is a cron.Job that emits an event each time it runs.
type EmitJob struct {
	settings *EmitSettings
	client   *client.Client
	logger   *zap.Logger
}

func (j *EmitJob) Run() {
	j.logger.Debug("Running scheduled emit")

	reply, err := j.settings.Send(context.Background(), j.client)
	if err != nil {
		j.logger.Error("Scheduled emit failed", zap.Error(err))
		return
	}

	if j.settings.Ack {
		j.logger.Info("Scheduled emit acknowledged", zap.Any("reply", sioclient.ToAnySlice(reply)))
	}
}

// ZapCronLogger adapts a zap.Logger to the cron.Logger interface.
type ZapCronLogger struct {
	logger *zap.Logger
}

func NewZapCronLogger(logger *zap.Logger) *ZapCronLogger {
	return &ZapCronLogger{logger: logger}
}

// Info logs cron's routine messages at debug level.
func (z *ZapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, zapFields(keysAndValues)...)
}

func (z *ZapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.logger.Error(msg, append(zapFields(keysAndValues), zap.Error(err))...)
}

func zapFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
