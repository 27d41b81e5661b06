/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mindvoyage/apiserver/config"
	"github.com/mindvoyage/apiserver/internal/mail"
	"github.com/mindvoyage/apiserver/internal/queue"
)

// mailworkerCmd represents the mailworker command. It drains the deferred
// email topic and delivers each job over SMTP.
var mailworkerCmd = &cobra.Command{
	Use:   "mailworker",
	Short: "Consume queued email tasks and deliver them over SMTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()

		mailer, err := mail.NewSMTPMailer(cfg.Mail)
		if err != nil {
			return err
		}

		var broker queue.Broker
		switch cfg.Queue.Backend {
		case "rabbitmq":
			broker, err = queue.NewRabbitMQBroker(cfg.Queue.RabbitMQ)
		case "pubsub":
			broker, err = queue.NewPubSubBroker(cmd.Context(), cfg.Queue.PubSub)
		case "":
			return errors.New("MAIL_QUEUE_BACKEND is required for the mailworker")
		default:
			return fmt.Errorf("unknown mail queue backend %q", cfg.Queue.Backend)
		}
		if err != nil {
			return err
		}
		defer broker.Close()

		log.Info().Str("backend", cfg.Queue.Backend).Msg("mail worker consuming")
		if err := mail.ConsumeEmailTasks(cmd.Context(), broker, mailer, log); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailworkerCmd)
}
