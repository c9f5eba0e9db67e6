package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/switchboard/internal/client"
	"github.com/alfredjeanlab/switchboard/internal/events"
	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream switch and defect changes",
	GroupID: "switches",
	Long: `Stream switch and defect changes.

With a NATS URL (--nats, SWITCHBOARD_NATS_URL or the active remote) every
event on the bus is printed. Over HTTP the server's event stream is followed
and resumed after disconnects. Over gRPC the registry is polled every
--interval and changed releases are printed. --switch applies to the HTTP
stream and to polling.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		natsURL, _ := cmd.Flags().GetString("nats")
		sw, _ := cmd.Flags().GetString("switch")
		if natsURL == "" {
			natsURL = os.Getenv("SWITCHBOARD_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		w := cmd.OutOrStdout()
		if natsURL != "" {
			return watchNATS(ctx, w, natsURL)
		}
		if hc, ok := sbClient.(*client.HTTPClient); ok {
			return watchSSE(ctx, w, hc, sw)
		}
		return watchPoll(ctx, w, interval, sw)
	},
}

// watchNATS prints every switchboard event payload until ctx is done.
func watchNATS(ctx context.Context, w io.Writer, natsURL string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.AllTopics)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			printEvent(w, msg)
		}
	}
}

const sseReconnectDelay = 3 * time.Second

// watchSSE follows the server's event stream, resuming from the last seen
// event after a disconnect.
func watchSSE(ctx context.Context, w io.Writer, c *client.HTTPClient, sw string) error {
	var lastID string
	connected := false
	for {
		ch, err := c.StreamEvents(ctx, client.StreamOptions{Switch: sw, LastEventID: lastID})
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil && !connected:
			return err
		case err != nil:
			log.Printf("event stream: %v", err)
		default:
			connected = true
			for ev := range ch {
				if ev.ID != "" {
					lastID = ev.ID
				}
				if ev.Topic == client.ResetTopic {
					fmt.Fprintln(w, "stream reset: some events were missed")
					continue
				}
				printEvent(w, events.Message{Topic: ev.Topic, Data: ev.Data})
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("event stream closed; reconnecting in %s", sseReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sseReconnectDelay):
		}
	}
}

// printEvent renders one bus message. Payloads that do not decode as their
// topic's event are printed raw.
func printEvent(w io.Writer, msg events.Message) {
	if jsonOutput {
		fmt.Fprintln(w, string(msg.Data))
		return
	}
	switch msg.Topic {
	case events.TopicReleaseCreated, events.TopicReleaseUpdated:
		var ev events.ReleaseUpdated
		if err := msg.Decode(&ev); err == nil {
			verb := "updated"
			if msg.Topic == events.TopicReleaseCreated {
				verb = "created"
			}
			fmt.Fprintf(w, "%s %s %s: %s (%s)\n", verb, ev.Switch, ev.Release,
				ui.RenderMode(string(ev.Config.Mode)), ev.Config.BasedOn)
			return
		}
	case events.TopicDefectsRecorded:
		var ev events.DefectsRecorded
		if err := msg.Decode(&ev); err == nil {
			fmt.Fprintf(w, "defects %s: +%d\n", ev.Date, ev.Count)
			return
		}
	}
	fmt.Fprintf(w, "%s %s\n", msg.Topic, msg.Data)
}

// releaseKey identifies one release of one switch in the poll snapshot.
type releaseKey struct {
	Switch  string
	Release string
}

// watchPoll snapshots the registry every interval and prints changed releases.
func watchPoll(ctx context.Context, w io.Writer, interval time.Duration, sw string) error {
	seen := make(map[releaseKey]model.ReleaseConfig)
	for {
		if err := pollOnce(ctx, w, seen, sw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func pollOnce(ctx context.Context, w io.Writer, seen map[releaseKey]model.ReleaseConfig, sw string) error {
	switches := []string{sw}
	if sw == "" {
		var err error
		if switches, err = sbClient.ListSwitches(ctx); err != nil {
			return err
		}
	}
	current := make(map[releaseKey]model.ReleaseConfig)
	for _, s := range switches {
		releases, err := sbClient.ListReleases(ctx, s)
		if err != nil {
			return err
		}
		for r, cfg := range releases {
			current[releaseKey{s, r}] = cfg
		}
	}
	for _, k := range diffReleases(current, seen) {
		cfg := current[k]
		if jsonOutput {
			printJSON(w, map[string]any{"switch": k.Switch, "release": k.Release, "config": cfg})
			continue
		}
		fmt.Fprintf(w, "%s %s: %s (%s)\n", k.Switch, k.Release, cfg.Mode, cfg.BasedOn)
	}
	return nil
}

// diffReleases returns the keys whose configuration is new or changed since
// seen, in switch then release order. It updates seen in place.
func diffReleases(current, seen map[releaseKey]model.ReleaseConfig) []releaseKey {
	var changed []releaseKey
	for k, cfg := range current {
		if prev, ok := seen[k]; !ok || prev != cfg {
			changed = append(changed, k)
		}
		seen[k] = cfg
	}
	sort.Slice(changed, func(i, j int) bool {
		if changed[i].Switch != changed[j].Switch {
			return changed[i].Switch < changed[j].Switch
		}
		return changed[i].Release < changed[j].Release
	})
	return changed
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Second, "polling interval over gRPC")
	watchCmd.Flags().String("nats", "", "NATS URL for event streaming")
	watchCmd.Flags().String("switch", "", "only show changes to this switch")
}
