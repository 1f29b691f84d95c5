package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vttforge/vtt-server/game/config"
	"github.com/vttforge/vtt-server/game/session"
)

type fakeMaps struct {
	maps map[string]*config.MapConfig
	def  *config.MapConfig
}

func newFakeMaps() *fakeMaps {
	def := &config.MapConfig{ID: "default", Name: "Blank", Width: 1000, Height: 1000, GridSize: 50}
	return &fakeMaps{
		maps: map[string]*config.MapConfig{
			"dungeon": {ID: "dungeon", Name: "Dungeon", Width: 2000, Height: 1500, GridSize: 50},
		},
		def: def,
	}
}

func (f *fakeMaps) LoadMap(id string) (*config.MapConfig, error) {
	if cfg, ok := f.maps[id]; ok {
		return cfg, nil
	}
	return nil, config.ErrMapNotFound
}

func (f *fakeMaps) GetDefault() *config.MapConfig { return f.def }

func newTestService(t *testing.T) GameService {
	t.Helper()
	manager := session.NewGameManager()
	t.Cleanup(manager.Shutdown)
	return NewGameService(manager, newFakeMaps())
}

func TestCreateGame(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1", MapID: "dungeon", MaxPlayers: 4})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if info.ID != "g1" || info.MapID != "dungeon" || info.MapName != "Dungeon" {
		t.Errorf("Unexpected game info: %+v", info)
	}
	if info.MaxPlayers != 4 {
		t.Errorf("MaxPlayers = %d, want 4", info.MaxPlayers)
	}
	if info.Phase != session.PhaseExploration {
		t.Errorf("New games start in exploration, got %s", info.Phase)
	}

	t.Run("duplicate id conflicts", func(t *testing.T) {
		_, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1"})
		if !errors.Is(err, session.ErrGameAlreadyExists) {
			t.Errorf("Expected ErrGameAlreadyExists, got %v", err)
		}
	})

	t.Run("unknown map rejected", func(t *testing.T) {
		_, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g2", MapID: "atlantis"})
		if !errors.Is(err, config.ErrMapNotFound) {
			t.Errorf("Expected ErrMapNotFound, got %v", err)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		info, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g3"})
		if err != nil {
			t.Fatal(err)
		}
		if info.MapID != "default" || info.MapName != "Blank" {
			t.Errorf("Expected default map, got %+v", info)
		}
	})
}

func TestGetAndListGames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetGame(ctx, "nope"); !errors.Is(err, session.ErrGameNotFound) {
		t.Errorf("Expected ErrGameNotFound, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: fmt.Sprintf("g%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := svc.ListGames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Errorf("Listed %d games, want 3", len(infos))
	}

	if _, err := svc.GetGame(ctx, "g1"); err != nil {
		t.Errorf("GetGame failed for live game: %v", err)
	}
}

func TestDeleteGame(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteGame(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}
	if _, err := svc.GetGame(ctx, "g1"); !errors.Is(err, session.ErrGameNotFound) {
		t.Error("Game survived deletion")
	}
	if err := svc.DeleteGame(ctx, "g1"); !errors.Is(err, session.ErrGameNotFound) {
		t.Errorf("Deleting twice should report not found, got %v", err)
	}
}

func TestJoinAndLeave(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1", MaxPlayers: 2}); err != nil {
		t.Fatal(err)
	}

	info, err := svc.JoinGame(ctx, "g1", "u1", "Alice")
	if err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	if len(info.Players) != 1 || info.Players[0].UserID != "u1" {
		t.Errorf("Unexpected players after join: %+v", info.Players)
	}

	// Rejoining is idempotent.
	if _, err := svc.JoinGame(ctx, "g1", "u1", "Alice"); err != nil {
		t.Errorf("Rejoin should be a no-op, got %v", err)
	}

	if _, err := svc.JoinGame(ctx, "g1", "u2", "Bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.JoinGame(ctx, "g1", "u3", "Carol"); !errors.Is(err, ErrGameFull) {
		t.Errorf("Expected ErrGameFull, got %v", err)
	}

	if err := svc.LeaveGame(ctx, "g1", "u2"); err != nil {
		t.Fatalf("LeaveGame failed: %v", err)
	}
	if err := svc.LeaveGame(ctx, "g1", "u2"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("Expected ErrPlayerNotFound, got %v", err)
	}

	// The freed seat is usable again.
	if _, err := svc.JoinGame(ctx, "g1", "u3", "Carol"); err != nil {
		t.Errorf("Join after leave failed: %v", err)
	}

	if _, err := svc.JoinGame(ctx, "ghost", "u1", "Alice"); !errors.Is(err, session.ErrGameNotFound) {
		t.Errorf("Expected ErrGameNotFound, got %v", err)
	}
}

func TestTokenLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1"}); err != nil {
		t.Fatal(err)
	}

	token, err := svc.CreateToken(ctx, "g1", CreateTokenRequest{X: 100, Y: 200, OwnerID: "u1"})
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if token.ID == "" {
		t.Fatal("Token id should be assigned")
	}

	if err := svc.MoveToken(ctx, "g1", token.ID, MoveTokenRequest{X: 300, Y: 400}); err != nil {
		t.Fatalf("MoveToken failed: %v", err)
	}

	snap, err := svc.GetSnapshot(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entities) != 1 {
		t.Fatalf("Snapshot has %d entities, want 1", len(snap.Entities))
	}
	if tr := snap.Entities[0].Transform; tr == nil || tr.X != 300 || tr.Y != 400 {
		t.Errorf("Instant move did not land: %+v", snap.Entities[0].Transform)
	}

	t.Run("errors", func(t *testing.T) {
		if err := svc.MoveToken(ctx, "g1", "999999", MoveTokenRequest{X: 0, Y: 0}); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("Expected ErrTokenNotFound for unknown id, got %v", err)
		}
		if err := svc.MoveToken(ctx, "g1", "not-a-number", MoveTokenRequest{X: 0, Y: 0}); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("Expected ErrTokenNotFound for malformed id, got %v", err)
		}
		if _, err := svc.CreateToken(ctx, "ghost", CreateTokenRequest{}); !errors.Is(err, session.ErrGameNotFound) {
			t.Errorf("Expected ErrGameNotFound, got %v", err)
		}
	})
}

func TestGetDelta(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateToken(ctx, "g1", CreateTokenRequest{X: 10, Y: 20}); err != nil {
		t.Fatal(err)
	}

	delta, err := svc.GetDelta(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(delta.Created) != 1 {
		t.Errorf("Delta created = %d, want 1", len(delta.Created))
	}

	// Draining leaves nothing pending.
	delta, err = svc.GetDelta(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(delta.Created) != 0 || len(delta.Updated) != 0 || len(delta.Removed) != 0 {
		t.Errorf("Second delta should be empty, got %+v", delta)
	}
}

func TestRollDice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: "g1"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		notation string
		count    int
		min, max int
	}{
		{"d20", 1, 1, 20},
		{"2d6", 2, 2, 12},
		{"2d6+3", 2, 5, 15},
		{"4d8-2", 4, 2, 30},
		{"1D12", 1, 1, 12},
		{" 3d4 ", 3, 3, 12},
	}
	for _, tt := range tests {
		t.Run(tt.notation, func(t *testing.T) {
			result, err := svc.RollDice(ctx, "g1", "u1", tt.notation)
			if err != nil {
				t.Fatalf("RollDice(%q) failed: %v", tt.notation, err)
			}
			if len(result.Rolls) != tt.count {
				t.Errorf("Rolled %d dice, want %d", len(result.Rolls), tt.count)
			}
			if result.Total < tt.min || result.Total > tt.max {
				t.Errorf("Total %d outside [%d,%d]", result.Total, tt.min, tt.max)
			}
			sum := result.Modifier
			for _, r := range result.Rolls {
				sum += r
			}
			if sum != result.Total {
				t.Errorf("Total %d does not match rolls+modifier %d", result.Total, sum)
			}
			if result.ID == "" {
				t.Error("Roll id should be assigned")
			}
		})
	}

	t.Run("invalid notation", func(t *testing.T) {
		for _, bad := range []string{"", "d", "2d", "x3d6", "2d6+", "2d1", "1000d6", "2d9999", "-1d6"} {
			if _, err := svc.RollDice(ctx, "g1", "u1", bad); !errors.Is(err, ErrInvalidNotation) {
				t.Errorf("RollDice(%q) should reject notation, got %v", bad, err)
			}
		}
	})

	t.Run("unknown game", func(t *testing.T) {
		if _, err := svc.RollDice(ctx, "ghost", "u1", "d20"); !errors.Is(err, session.ErrGameNotFound) {
			t.Errorf("Expected ErrGameNotFound, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateGame(ctx, CreateGameRequest{GameID: fmt.Sprintf("g%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.JoinGame(ctx, "g0", "u1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateToken(ctx, "g0", CreateTokenRequest{X: 1, Y: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateToken(ctx, "g1", CreateTokenRequest{X: 3, Y: 4}); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalGames != 2 {
		t.Errorf("TotalGames = %d, want 2", stats.TotalGames)
	}
	if stats.TotalPlayers != 1 {
		t.Errorf("TotalPlayers = %d, want 1", stats.TotalPlayers)
	}
	if stats.TotalEntities != 2 {
		t.Errorf("TotalEntities = %d, want 2", stats.TotalEntities)
	}
}
