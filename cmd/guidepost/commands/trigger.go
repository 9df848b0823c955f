package commands

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tidemark-health/guidepost/errors"
)

// TriggerCmd asks a running request-mode instance for a cycle.
var TriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger one evaluation cycle on a running instance",
	Long: `trigger — POST a run request to a request-mode instance.

The instance acknowledges only after the cycle has completed and its results
are published, so this command blocks for the full cycle runtime. The target
address defaults to the trigger address of the local configuration.

Examples:
  guidepost trigger
  guidepost trigger --address 10.0.3.7:8081`,
	RunE: runTrigger,
}

var triggerAddressFlag string

func init() {
	TriggerCmd.Flags().StringVar(&triggerAddressFlag, "address", "", "host:port of the target instance (defaults to the configured trigger address)")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	addr := triggerAddressFlag
	if addr == "" {
		cfg, err := loadConfigUnvalidated(cmd)
		if err != nil {
			return err
		}
		addr = cfg.Trigger.BindAddr()
	}
	url := fmt.Sprintf("http://%s/run", addr)

	// The response arrives after the cycle finishes; only connecting gets a
	// deadline, the response read does not.
	client := &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 0,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
		},
	}

	pterm.Info.Printf("Requesting cycle from %s\n", addr)
	started := time.Now()

	resp, err := client.Post(url, "text/plain", nil)
	if err != nil {
		return errors.Wrapf(err, "requesting cycle from %s", addr)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errors.Wrap(err, "reading trigger response")
	}
	msg := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		pterm.Error.Printf("Instance answered %s after %s\n", resp.Status, time.Since(started).Round(time.Millisecond))
		if msg != "" {
			fmt.Println(msg)
		}
		return errors.Newf("cycle request failed with status %d", resp.StatusCode)
	}

	pterm.Success.Printf("%s\n", msg)
	return nil
}
