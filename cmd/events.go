/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"log"

	"github.com/codearena-oj/apiserver/config"
	"github.com/codearena-oj/apiserver/internal/events"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with judged-submission events",
}

var eventsListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Consume judged events from the configured broker and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		backend, err := events.NewBackend(cmd.Context(), cfg.Events)
		if err != nil {
			return err
		}
		defer func() {
			_ = backend.Close()
		}()

		log.Printf("listening on %s", events.SubmissionJudgedChannel)
		return backend.Subscribe(cmd.Context(), events.SubmissionJudgedChannel, printJudgedEvent)
	},
}

func printJudgedEvent(ctx context.Context, msg events.Message) error {
	var event events.SubmissionJudged
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Printf("message %s: undecodable payload: %v", msg.ID, err)
		return nil
	}
	log.Printf("submission %d by user %d on problem %d: %s (%d/%d)",
		event.SubmissionID, event.UserID, event.ProblemID,
		event.Status, event.PassedTestCases, event.TotalTestCases)
	return nil
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListenCmd)
}
