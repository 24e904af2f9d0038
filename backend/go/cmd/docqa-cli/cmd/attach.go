package cmd

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Open the console of a running rag_service over a websocket",
	Long: `attach connects to the /ws/console endpoint of the server given by --server.
Each line typed is sent as one message and the server's output is printed as it arrives.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if serverURL == "" {
			return fmt.Errorf("attach needs --server")
		}
		u, err := consoleURL(serverURL)
		if err != nil {
			return err
		}

		c, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), u, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", u, err)
		}
		defer c.Close()

		done := make(chan error, 1)
		go func() {
			for {
				_, message, err := c.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						err = nil
					}
					done <- err
					return
				}
				fmt.Fprint(cmd.OutOrStdout(), string(message))
			}
		}()

		go func() {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if err := c.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
					return
				}
			}
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}()

		select {
		case err := <-done:
			return err
		case <-cmd.Context().Done():
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

// consoleURL turns an http(s) base URL into the ws(s) console endpoint.
func consoleURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/console"
	return u.String(), nil
}
