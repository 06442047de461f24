// Command braindemo is a minimal host exercising brain/engine end to end:
// `run` starts the bundled Ticket Triage brain, `resume` continues a run
// that last suspended on PAUSE or a webhook wait, and `inspect` prints a
// stored run's event log. It follows the common pattern of
// wiring a runtime against a stub planner so the example runs without a
// live model API key, generalized to this module's Engine/ObjectGenerator
// contracts and given real subcommands via github.com/spf13/cobra.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/brainrun/brains/brain/engine"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/signal"
	"github.com/brainrun/brains/brain/signalstore/memory"
	"github.com/brainrun/brains/brain/telemetry"
)

func newWebhookResponseSignal(payload string) signal.Signal {
	return signal.Signal{Kind: signal.KindWebhookResponse, Response: json.RawMessage(payload)}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var runlogDir string

	root := &cobra.Command{
		Use:   "braindemo",
		Short: "Drive the Ticket Triage example brain through brain/engine",
	}
	root.PersistentFlags().StringVar(&runlogDir, "runlog-dir", ".braindemo", "directory holding durable per-run event logs")

	root.AddCommand(newRunCmd(&runlogDir))
	root.AddCommand(newResumeCmd(&runlogDir))
	root.AddCommand(newInspectCmd(&runlogDir))
	return root
}

func newLogger() telemetry.Logger {
	return telemetry.NewZerologLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger())
}

func newRunCmd(runlogDir *string) *cobra.Command {
	var subject string
	var runID string

	fixtures, err := loadDemoFixtures()
	if err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new Ticket Triage run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newFileStore(*runlogDir)
			if err != nil {
				return err
			}
			if runID == "" {
				runID = uuid.NewString()
			}

			eng := engine.NewEngine()
			def := newDemoBrain()
			signals := memory.New()

			strm, err := eng.Run(cmd.Context(), def, engine.RunParams{
				Client:         stubGenerator{},
				Options:        map[string]any{"subject": subject},
				SignalProvider: signals,
				BrainRunID:     runID,
				Log:            newLogger(),
				RunLog:         store,
				OnSuspend: func(rc *engine.ResumeContext) {
					if err := writeResumeContext(*runlogDir, runID, rc); err != nil {
						fmt.Fprintln(os.Stderr, "braindemo: persist resume context:", err)
					}
				},
			})
			if err != nil {
				return err
			}
			return drainAndPrint(cmd.Context(), strm, runID)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", fixtures.Options["subject"], "the ticket subject to triage")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier to use (defaults to a generated UUID)")
	return cmd
}

func newResumeCmd(runlogDir *string) *cobra.Command {
	var runID string
	var responsePayload string
	var responseFixture string

	fixtures, err := loadDemoFixtures()
	if err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a previously suspended run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("braindemo: --run-id is required")
			}
			if responsePayload == "" && responseFixture != "" {
				payload, err := fixtures.webhookResponse(responseFixture)
				if err != nil {
					return err
				}
				responsePayload = payload
			}
			store, err := newFileStore(*runlogDir)
			if err != nil {
				return err
			}
			records, err := store.Load(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("braindemo: no stored events for run %q", runID)
			}
			events := make([]event.Event, 0, len(records))
			for _, r := range records {
				e, err := event.Decode(r.Kind, r.Payload)
				if err != nil {
					return fmt.Errorf("braindemo: decode stored event: %w", err)
				}
				events = append(events, e)
			}

			rc, err := readResumeContext(*runlogDir, runID)
			if err != nil {
				return err
			}

			signals := memory.New()
			if responsePayload != "" {
				signals.Queue(newWebhookResponseSignal(responsePayload))
			}

			eng := engine.NewEngine()
			def := newDemoBrain()
			strm, err := eng.Resume(cmd.Context(), def, engine.ResumeParams{
				Client:         stubGenerator{},
				SignalProvider: signals,
				BrainRunID:     runID,
				EventLog:       events,
				ResumeContext:  rc,
				Log:            newLogger(),
				RunLog:         store,
				OnSuspend: func(rc *engine.ResumeContext) {
					if err := writeResumeContext(*runlogDir, runID, rc); err != nil {
						fmt.Fprintln(os.Stderr, "braindemo: persist resume context:", err)
					}
				},
			})
			if err != nil {
				return err
			}
			return drainAndPrint(cmd.Context(), strm, runID)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier to resume")
	cmd.Flags().StringVar(&responsePayload, "webhook-response", "", "JSON payload to deliver as a WEBHOOK_RESPONSE signal before resuming")
	cmd.Flags().StringVar(&responseFixture, "webhook-fixture", "", "name of a canned response in fixtures.yaml to use when --webhook-response is not given")
	return cmd
}

func newInspectCmd(runlogDir *string) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a stored run's event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("braindemo: --run-id is required")
			}
			store, err := newFileStore(*runlogDir)
			if err != nil {
				return err
			}
			records, err := store.Load(cmd.Context(), runID)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%4d  %-28s %s\n", r.Seq, r.Kind, string(r.Payload))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier to inspect")
	return cmd
}

func drainAndPrint(ctx context.Context, strm interface {
	Next(ctx context.Context) (event.Event, bool, error)
}, runID string) error {
	for {
		e, ok, err := strm.Next(ctx)
		if !ok {
			if err != nil {
				return err
			}
			return nil
		}
		payload, marshalErr := e.MarshalCanonicalJSON()
		if marshalErr != nil {
			return marshalErr
		}
		fmt.Printf("%s  %4d  %s\n", runID, e.Seq(), string(payload))
	}
}

func resumeContextPath(dir, runID string) string {
	return fmt.Sprintf("%s/%s.resume.json", dir, runID)
}

func writeResumeContext(dir, runID string, rc *engine.ResumeContext) error {
	payload, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	return os.WriteFile(resumeContextPath(dir, runID), payload, 0o644)
}

func readResumeContext(dir, runID string) (*engine.ResumeContext, error) {
	payload, err := os.ReadFile(resumeContextPath(dir, runID))
	if err != nil {
		return nil, fmt.Errorf("braindemo: read resume context for %q: %w", runID, err)
	}
	var rc engine.ResumeContext
	if err := json.Unmarshal(payload, &rc); err != nil {
		return nil, fmt.Errorf("braindemo: decode resume context: %w", err)
	}
	return &rc, nil
}
