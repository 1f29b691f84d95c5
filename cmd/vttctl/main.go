// Command vttctl is an operator CLI for a running VTT server. It talks to the
// REST API and prints human-readable summaries of server statistics, live
// games, and dice rolls.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "vttctl",
		Usage: "inspect and poke a running VTT server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "base URL of the VTT server",
				Sources: cli.EnvVars("VTT_SERVER"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "request timeout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "print server-wide counters",
				Action: runStats,
			},
			{
				Name:   "games",
				Usage:  "list live games with players and phase",
				Action: runGames,
			},
			{
				Name:      "roll",
				Usage:     "roll dice in a game",
				ArgsUsage: "<game-id> <notation>",
				Action:    runRoll,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newClient(cmd *cli.Command) *apiClient {
	return &apiClient{
		base: strings.TrimRight(cmd.String("server"), "/"),
		http: &http.Client{Timeout: cmd.Duration("timeout")},
	}
}

func runStats(ctx context.Context, cmd *cli.Command) error {
	var stats struct {
		TotalGames       int `json:"total_games"`
		ActiveGames      int `json:"active_games"`
		TotalPlayers     int `json:"total_players"`
		ConnectedPlayers int `json:"connected_players"`
		TotalEntities    int `json:"total_entities"`
	}
	if err := newClient(cmd).get(ctx, "/api/stats", &stats); err != nil {
		return err
	}

	fmt.Printf("Games:     %d total, %d active\n", stats.TotalGames, stats.ActiveGames)
	fmt.Printf("Players:   %d total, %d connected\n", stats.TotalPlayers, stats.ConnectedPlayers)
	fmt.Printf("Entities:  %d\n", stats.TotalEntities)
	return nil
}

func runGames(ctx context.Context, cmd *cli.Command) error {
	var listing struct {
		Count int `json:"count"`
		Games []struct {
			ID          string `json:"id"`
			MapID       string `json:"map_id"`
			Phase       string `json:"phase"`
			MaxPlayers  int    `json:"max_players"`
			EntityCount int    `json:"entity_count"`
			Players     []struct {
				UserID    string `json:"user_id"`
				Connected bool   `json:"connected"`
			} `json:"players"`
		} `json:"games"`
	}
	if err := newClient(cmd).get(ctx, "/api/games", &listing); err != nil {
		return err
	}

	if listing.Count == 0 {
		fmt.Println("No live games")
		return nil
	}
	for _, g := range listing.Games {
		connected := 0
		for _, p := range g.Players {
			if p.Connected {
				connected++
			}
		}
		fmt.Printf("%s  map=%s phase=%s players=%d/%d (%d connected) entities=%d\n",
			g.ID, g.MapID, g.Phase, len(g.Players), g.MaxPlayers, connected, g.EntityCount)
	}
	return nil
}

func runRoll(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("usage: vttctl roll <game-id> <notation>")
	}
	gameID, notation := args.Get(0), args.Get(1)

	var result struct {
		Notation string `json:"notation"`
		Rolls    []int  `json:"rolls"`
		Modifier int    `json:"modifier"`
		Total    int    `json:"total"`
	}
	path := fmt.Sprintf("/api/games/%s/roll", gameID)
	body := map[string]string{"notation": notation}
	if err := newClient(cmd).post(ctx, path, body, &result); err != nil {
		return err
	}

	fmt.Println(formatRoll(result.Notation, result.Rolls, result.Modifier, result.Total))
	return nil
}

// formatRoll renders "2d6+1: [4 2] +1 = 7".
func formatRoll(notation string, rolls []int, modifier, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: [", notation)
	for i, r := range rolls {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d", r)
	}
	sb.WriteByte(']')
	if modifier > 0 {
		fmt.Fprintf(&sb, " +%d", modifier)
	} else if modifier < 0 {
		fmt.Fprintf(&sb, " %d", modifier)
	}
	fmt.Fprintf(&sb, " = %d", total)
	return sb.String()
}

// apiClient is a thin JSON wrapper over the server's REST API.
type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
