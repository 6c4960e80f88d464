package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/cli/output"
	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/pairing"
)

// pollWindow is the server-side wait of each long-poll round.
const pollWindow = 25 * time.Second

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Manage sessions",
		Subcommands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Start a session, or join it if it is already running",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "How long the server waits for a pairing code or connection (0 = server default)",
					},
					&cli.BoolFlag{
						Name:    "follow",
						Aliases: []string{"f"},
						Usage:   "Keep showing fresh pairing codes until the session settles",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 5 * time.Minute,
						Usage: "Give up following after this long",
					},
					&cli.StringFlag{
						Name:  "qr-out",
						Usage: "Also save the pairing code from the response as a PNG file",
					},
				},
				Action: sessionStart,
			},
			{
				Name:      "status",
				Aliases:   []string{"get"},
				Usage:     "Show a session",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "Wait up to this long for the session to change",
					},
					&cli.StringFlag{
						Name:  "until-not",
						Usage: "With --wait, return once the state differs from this one",
					},
				},
				Action: sessionStatus,
			},
			{
				Name:  "list",
				Usage: "List sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "Only show sessions in this state",
					},
				},
				Action: sessionList,
			},
			{
				Name:      "qr",
				Usage:     "Show the current pairing code",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Save the code as a PNG file instead of drawing it",
					},
					&cli.IntFlag{
						Name:  "size",
						Usage: "PNG size in pixels (64-1024)",
					},
				},
				Action: sessionQR,
			},
			{
				Name:      "logout",
				Usage:     "Log a session out and delete its credentials",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: sessionLogout,
			},
			{
				Name:      "send",
				Usage:     "Send a text message through a connected session",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Recipient phone number or address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "text",
						Aliases:  []string{"m"},
						Usage:    "Message text",
						Required: true,
					},
				},
				Action: sessionSend,
			},
		},
	}
}

// sessionListView is the table view of a session listing.
type sessionListView struct {
	Items []*domain.Session `json:"items"`
	Total int               `json:"total"`
}

func (l sessionListView) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"NAME", "STATE", "USER", "SINCE"}}
	if wide {
		t.Headers = append(t.Headers, "RECONNECTS", "VERSION", "LAST ERROR")
	}
	now := time.Now()
	for _, s := range l.Items {
		row := []string{s.Name, string(s.State), userOf(s), output.Age(s.LastTransitionAt, now)}
		if wide {
			lastErr := "-"
			if s.LastError != nil {
				lastErr = s.LastError.Code
			}
			row = append(row, strconv.Itoa(s.ReconnectAttempt), strconv.FormatUint(s.Version, 10), lastErr)
		}
		t.AddRow(row...)
	}
	return t
}

// sessionView is the table view of one session.
type sessionView struct {
	*domain.Session
}

func (v sessionView) Table(bool) *output.Table {
	s := v.Session
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("name", s.Name)
	t.AddRow("state", string(s.State))
	t.AddRow("user", userOf(s))
	t.AddRow("since", output.Cell(s.LastTransitionAt))
	t.AddRow("created", output.Cell(s.CreatedAt))
	if s.Pairing != nil {
		t.AddRow("pairing expires", output.Cell(s.Pairing.ExpiresAt))
	}
	if s.ReconnectAttempt > 0 {
		t.AddRow("reconnect attempt", strconv.Itoa(s.ReconnectAttempt))
	}
	if s.LastError != nil {
		t.AddRow("last error", s.LastError.Code+" "+s.LastError.Message)
	}
	t.AddRow("version", strconv.FormatUint(s.Version, 10))
	return t
}

func userOf(s *domain.Session) string {
	if s.Identity == nil {
		return "-"
	}
	return s.Identity.ID
}

func sessionStart(c *cli.Context) error {
	name, err := requireArg(c, "session name")
	if err != nil {
		return err
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	format, err := outputFormat(c)
	if err != nil {
		return err
	}

	req := map[string]any{"session_name": name}
	if w := c.Duration("wait"); w > 0 {
		req["wait_seconds"] = w.Seconds()
	}

	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout+c.Duration("wait"))
	defer cancel()
	resp, err := client.Post(ctx, "/sessions", req)
	if err != nil {
		return err
	}
	var result struct {
		Session *domain.Session `json:"session"`
		Created bool            `json:"created"`
		Ready   bool            `json:"ready"`
	}
	if _, err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if result.Session == nil {
		return errors.New("server returned no session")
	}

	if out := c.String("qr-out"); out != "" {
		if err := savePairingImage(out, result.Session); err != nil {
			return err
		}
	}

	if format != output.FormatTable {
		return render(c, result)
	}

	verb := "Joined"
	if result.Created {
		verb = "Started"
	}
	printf(c, "%s session %q: %s\n", verb, name, result.Session.State)

	if !c.Bool("follow") {
		return showPairing(c, result.Session)
	}
	return followSession(c, client, result.Session)
}

// showPairing draws the pairing code, or the identity once connected.
func showPairing(c *cli.Context, s *domain.Session) error {
	switch {
	case s.Pairing != nil:
		art, err := pairing.NewRenderer().Terminal(s.Pairing.Code)
		if err != nil {
			return err
		}
		printf(c, "%s\nScan with the phone app: Linked devices > Link a device. Code expires %s.\n",
			art, s.Pairing.ExpiresAt.Local().Format("15:04:05"))
	case s.State == domain.StateConnected:
		printf(c, "Connected as %s\n", userOf(s))
	case s.LastError != nil:
		printf(c, "Last error: [%s] %s\n", s.LastError.Code, s.LastError.Message)
	}
	return nil
}

// savePairingImage writes the PNG carried in the session's data URL.
func savePairingImage(path string, s *domain.Session) error {
	if s.Pairing == nil || s.Pairing.Image == "" {
		return fmt.Errorf("session %s has no pairing code (state %s)", s.Name, s.State)
	}
	data, err := pairing.DecodeDataURL(s.Pairing.Image)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// followSession long-polls the session, redrawing each new pairing code,
// until it settles in CONNECTED or a terminal state.
func followSession(c *cli.Context, client *connection.HTTPClient, s *domain.Session) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	spin := output.NewSpinner(c.App.ErrWriter, "waiting for "+s.Name)
	defer func() { spin.Stop() }()

	lastCode := ""
	for {
		if s.Pairing != nil && s.Pairing.Code != lastCode {
			spin.Stop()
			lastCode = s.Pairing.Code
			if err := showPairing(c, s); err != nil {
				return err
			}
			spin = output.NewSpinner(c.App.ErrWriter, "waiting for scan")
			spin.Start()
		}
		switch {
		case s.State == domain.StateConnected:
			spin.Success("connected as " + userOf(s))
			return nil
		case s.State.IsTerminal():
			spin.Fail("session ended in " + string(s.State))
			if s.LastError != nil {
				return fmt.Errorf("[%s] %s", s.LastError.Code, s.LastError.Message)
			}
			return fmt.Errorf("session %s ended in %s", s.Name, s.State)
		}
		spin.Update(string(s.State) + "...")
		spin.Start()

		next, err := pollSession(ctx, client, s.Name, s.Version, pollWindow)
		if err != nil {
			if ctx.Err() != nil {
				spin.Fail("timed out")
				return fmt.Errorf("session %s still %s after %s", s.Name, s.State, c.Duration("timeout"))
			}
			return err
		}
		s = next
	}
}

// pollSession waits up to window for the session to move past version.
func pollSession(ctx context.Context, client *connection.HTTPClient, name string, version uint64, window time.Duration) (*domain.Session, error) {
	q := url.Values{}
	q.Set("wait", strconv.FormatFloat(window.Seconds(), 'f', -1, 64))
	q.Set("version", strconv.FormatUint(version, 10))

	reqCtx, cancel := context.WithTimeout(ctx, window+connection.RequestTimeout)
	defer cancel()
	resp, err := client.Get(reqCtx, "/sessions/"+url.PathEscape(name)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if _, err := connection.ParseResponse(resp, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func sessionStatus(c *cli.Context) error {
	name, err := requireArg(c, "session name")
	if err != nil {
		return err
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	q := url.Values{}
	wait := c.Duration("wait")
	if wait > 0 {
		q.Set("wait", strconv.FormatFloat(wait.Seconds(), 'f', -1, 64))
		if st := c.String("until-not"); st != "" {
			q.Set("state", st)
		}
	}
	path := "/sessions/" + url.PathEscape(name)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout+wait)
	defer cancel()
	resp, err := client.Get(ctx, path)
	if err != nil {
		return err
	}
	var s domain.Session
	if _, err := connection.ParseResponse(resp, &s); err != nil {
		return err
	}
	return render(c, sessionView{&s})
}

func sessionList(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	path := "/sessions"
	if st := c.String("state"); st != "" {
		path += "?state=" + url.QueryEscape(st)
	}

	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout)
	defer cancel()
	resp, err := client.Get(ctx, path)
	if err != nil {
		return err
	}
	var list sessionListView
	if _, err := connection.ParseResponse(resp, &list); err != nil {
		return err
	}
	return render(c, list)
}

func sessionQR(c *cli.Context) error {
	name, err := requireArg(c, "session name")
	if err != nil {
		return err
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout)
	defer cancel()

	out := c.String("out")
	if out == "" {
		resp, err := client.Get(ctx, "/sessions/"+url.PathEscape(name))
		if err != nil {
			return err
		}
		var s domain.Session
		if _, err := connection.ParseResponse(resp, &s); err != nil {
			return err
		}
		if s.Pairing == nil {
			return fmt.Errorf("session %s has no pairing code (state %s)", name, s.State)
		}
		return showPairing(c, &s)
	}

	path := "/sessions/" + url.PathEscape(name) + "/qr.png"
	if size := c.Int("size"); size > 0 {
		path += "?size=" + strconv.Itoa(size)
	}
	resp, err := client.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := connection.CheckRaw(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	printf(c, "Saved pairing code to %s (%s)\n", out, output.FormatBytes(n))
	return nil
}

func sessionLogout(c *cli.Context) error {
	name, err := requireArg(c, "session name")
	if err != nil {
		return err
	}
	if !c.Bool("force") && !confirm(c, fmt.Sprintf("Log out session %q and delete its credentials?", name)) {
		printf(c, "Cancelled.\n")
		return nil
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout)
	defer cancel()
	resp, err := client.Post(ctx, "/sessions/"+url.PathEscape(name)+"/logout", nil)
	if err != nil {
		return err
	}
	var result struct {
		Existed bool `json:"existed"`
	}
	if _, err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if !result.Existed {
		printf(c, "Session %s was not running; nothing to log out.\n", name)
		return nil
	}
	printf(c, "Session %s logged out.\n", name)
	return nil
}

func sessionSend(c *cli.Context) error {
	name, err := requireArg(c, "session name")
	if err != nil {
		return err
	}
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout)
	defer cancel()

	resp, err := client.Post(ctx, "/sessions/"+url.PathEscape(name)+"/messages", map[string]string{
		"to":   c.String("to"),
		"text": c.String("text"),
	})
	if err != nil {
		return err
	}
	var result struct {
		MessageID string `json:"message_id"`
	}
	if _, err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return render(c, result)
	}
	printf(c, "Message sent: %s\n", result.MessageID)
	return nil
}
