package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairlink-go/internal/cli/connection"
	"github.com/yndnr/pairlink-go/internal/cli/output"
	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status and health",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show session counts by state and server build",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server liveness and readiness",
				Action: systemHealth,
			},
			{
				Name:   "version",
				Usage:  "Show client and server versions",
				Action: systemVersion,
			},
		},
	}
}

// statusSummary mirrors the server's status summary.
type statusSummary struct {
	Build             buildinfo.Info `json:"build"`
	Sessions          int            `json:"sessions"`
	ByState           map[string]int `json:"by_state"`
	PendingReconnects int            `json:"pending_reconnects"`
	Time              time.Time      `json:"time"`
}

func (s statusSummary) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"STATE", "SESSIONS"}}
	for _, st := range domain.AllStates {
		t.AddRow(string(st), strconv.Itoa(s.ByState[string(st)]))
	}
	t.AddRow("TOTAL", strconv.Itoa(s.Sessions))
	t.AddRow("pending reconnects", strconv.Itoa(s.PendingReconnects))
	return t
}

func fetchSummary(ctx context.Context, client *connection.HTTPClient) (*statusSummary, error) {
	resp, err := client.Get(ctx, "/admin/v1/status/summary")
	if err != nil {
		return nil, err
	}
	var sum statusSummary
	if _, err := connection.ParseResponse(resp, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func systemStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, connection.RequestTimeout)
	defer cancel()

	sum, err := fetchSummary(ctx, client)
	if err != nil {
		return err
	}
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		printf(c, "Server %s (%s), %s\n\n", sum.Build.Version, sum.Build.Commit, client.BaseURL())
	}
	return render(c, sum)
}

// healthReport is the outcome of the liveness and readiness probes.
type healthReport struct {
	Target string            `json:"target"`
	Live   bool              `json:"live"`
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h healthReport) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"CHECK", "STATUS"}}
	t.AddRow("live", okText(h.Live))
	t.AddRow("ready", okText(h.Ready))
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AddRow("  "+name, h.Checks[name])
	}
	return t
}

func okText(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILING"
}

// probe calls a health endpoint. Its body is the per-check report, not
// the API envelope.
func probe(ctx context.Context, client *connection.HTTPClient, path string) (bool, map[string]string, error) {
	resp, err := client.Get(ctx, path+"?full=1")
	if err != nil {
		return false, nil, err
	}
	defer resp.Body.Close()

	checks := map[string]string{}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&checks)
	return resp.StatusCode == http.StatusOK, checks, nil
}

// checkHealth returns an error unless the server reports ready.
func checkHealth(ctx context.Context, client *connection.HTTPClient) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ready, checks, err := probe(ctx, client, "/ready")
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("server not ready: %v", checks)
	}
	return nil
}

func systemHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	report := healthReport{Target: client.BaseURL()}
	if report.Live, _, err = probe(ctx, client, "/health"); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	if report.Ready, report.Checks, err = probe(ctx, client, "/ready"); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	if err := render(c, report); err != nil {
		return err
	}
	if !report.Live || !report.Ready {
		return fmt.Errorf("server at %s is not healthy", report.Target)
	}
	return nil
}

type versionReport struct {
	Client buildinfo.Info  `json:"client"`
	Server *buildinfo.Info `json:"server,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (v versionReport) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"", "VERSION", "COMMIT", "GO"}}
	t.AddRow("client", v.Client.Version, v.Client.Commit, v.Client.GoVersion)
	if v.Server != nil {
		t.AddRow("server", v.Server.Version, v.Server.Commit, v.Server.GoVersion)
	} else {
		t.AddRow("server", "unavailable: "+v.Error, "-", "-")
	}
	return t
}

func systemVersion(c *cli.Context) error {
	report := versionReport{Client: buildinfo.Get()}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	if sum, err := fetchSummary(ctx, client); err != nil {
		report.Error = err.Error()
	} else {
		report.Server = &sum.Build
	}
	return render(c, report)
}
