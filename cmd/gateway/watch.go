package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sheild-gateway/internal/alerting"
	"sheild-gateway/internal/config"
	"sheild-gateway/internal/data"
	"sheild-gateway/internal/pubsub"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the alerts channel and print the live alert table",
	Long: `watch subscribes to the gateway's alerts channel and redraws the table
of the most recent high and critical alert per machine after every event.

It needs a shared pubsub backend (redis or nats).`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgDir)
	if err != nil {
		return err
	}
	if cfg.PubSub.Backend == "memory" {
		return errors.New("watch needs pubsub.backend redis or nats")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker, err := pubsub.Open(ctx, cfg.PubSub)
	if err != nil {
		return err
	}
	defer broker.Close()

	channel := pubsub.Channel(cfg.Alerts.Namespace, alerting.EventAlert)
	sub, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	defer sub.Close()
	pterm.Info.Printfln("watching %s via %s, showing %s and above", channel, cfg.PubSub.Backend, alerting.MinSeverity)

	var history alerting.History
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			alert, err := data.ParseAlert(msg.Payload)
			if err != nil {
				pterm.Warning.Printfln("skipping event: %v", err)
				continue
			}
			if !alerting.Accepts(alert) {
				continue
			}
			history = alerting.Reduce(history, alert)
			if err := renderHistory(history); err != nil {
				return err
			}
		}
	}
}

func renderHistory(h alerting.History) error {
	table := pterm.TableData{{"Machine", "Severity", "Message", "Status", "Time"}}
	for _, a := range h.Alerts() {
		sev := a.Severity.String()
		if a.Severity == data.SeverityCritical {
			sev = pterm.Red(sev)
		} else {
			sev = pterm.Yellow(sev)
		}
		table = append(table, []string{
			a.MachineID,
			sev,
			a.Message,
			a.Status,
			a.Timestamp.Local().Format("15:04:05"),
		})
	}
	pterm.Println()
	if err := pterm.DefaultTable.WithHasHeader(true).WithData(table).Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}
