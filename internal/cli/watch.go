package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"ttrpg-tracker/internal/platform/mq"
)

func (a *App) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes to your characters and items as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.requireUser(); err != nil {
				return err
			}
			endpoint, err := eventsURL(a.cfg.APIURL, a.client.Token())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
			if err != nil {
				return fmt.Errorf("connect event stream: %w", err)
			}
			defer conn.Close()

			stop := make(chan struct{})
			defer close(stop)
			go func() {
				select {
				case <-ctx.Done():
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
					_ = conn.Close()
				case <-stop:
				}
			}()

			s := newStyles(a.out)
			fmt.Fprintln(a.out, s.muted.Render("Watching for changes. Ctrl+C to stop."))
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return fmt.Errorf("event stream: %w", err)
				}
				var evt mq.Event
				if err := json.Unmarshal(msg, &evt); err != nil {
					a.logger.Warn().Err(err).Msg("undecodable event")
					continue
				}
				fmt.Fprintln(a.out, formatEvent(evt))
			}
		},
	}
}

func eventsURL(apiURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/") + "/v1/events/ws")
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("api url must be http or https")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formatEvent(evt mq.Event) string {
	line := fmt.Sprintf("%s  %-18s character=%s", evt.At.Local().Format(time.TimeOnly), evt.Type, shortID(evt.CharacterID.String()))
	if evt.ItemID != nil {
		line += " item=" + shortID(evt.ItemID.String())
	}
	return line
}
