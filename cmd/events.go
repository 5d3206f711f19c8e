/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/boatfuel/fueltracker/config"
	"github.com/boatfuel/fueltracker/internal/events"
	"github.com/boatfuel/fueltracker/internal/logging"
	"github.com/boatfuel/fueltracker/internal/mq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect fuel-up events on the message broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log fuel-up events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer broker.Close()

		logger.WithField("topic", cfg.MQ.FuelUpTopic).Info("tailing fuel-up events")
		err = events.Consume(ctx, broker, cfg.MQ.FuelUpTopic, func(_ context.Context, event events.FuelUpEvent) error {
			logger.WithFields(log.Fields{
				"type":        event.Type,
				"fuel_up_id":  event.FuelUpID,
				"user_id":     event.UserID,
				"date":        event.Date,
				"total_cost":  event.TotalCost.Decimal.StringFixed(2),
				"occurred_at": event.OccurredAt,
			}).Info("fuel-up event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
