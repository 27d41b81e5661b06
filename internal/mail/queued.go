package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mindvoyage/apiserver/internal/queue"
)

// EmailTask is the wire payload of one deferred mail job.
type EmailTask struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// QueuedMailer defers delivery through a broker so HTTP requests never wait
// on SMTP. A worker drains the topic with ConsumeEmailTasks.
type QueuedMailer struct {
	broker queue.Broker
	log    zerolog.Logger
}

func NewQueuedMailer(broker queue.Broker, log zerolog.Logger) *QueuedMailer {
	return &QueuedMailer{broker: broker, log: log}
}

// Send enqueues one mail job.
func (m *QueuedMailer) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(EmailTask{To: to, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("marshal email task: %w", err)
	}

	taskID, err := m.broker.Enqueue(ctx, queue.TopicEmail, payload, nil)
	if err != nil {
		return fmt.Errorf("enqueue email task: %w", err)
	}
	m.log.Debug().Str("task_id", taskID).Str("to", to).Msg("email task enqueued")
	return nil
}

// ConsumeEmailTasks drains the email topic, delivering each task with the
// given mailer. Malformed payloads are acked and dropped; delivery failures
// are nacked for redelivery.
func ConsumeEmailTasks(ctx context.Context, broker queue.Broker, mailer *SMTPMailer, log zerolog.Logger) error {
	return broker.Consume(ctx, queue.TopicEmail, func(ctx context.Context, task queue.Task) error {
		var job EmailTask
		if err := json.Unmarshal(task.Data, &job); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("dropping malformed email task")
			return nil
		}
		if err := mailer.Send(ctx, job.To, job.Subject, job.HTML); err != nil {
			log.Warn().Err(err).Str("task_id", task.ID).Str("to", job.To).Msg("email delivery failed")
			return err
		}
		log.Info().Str("task_id", task.ID).Str("to", job.To).Msg("email delivered")
		return nil
	})
}
