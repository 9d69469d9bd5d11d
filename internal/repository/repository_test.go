package repository

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jengzang/routecast/internal/database"
	"github.com/jengzang/routecast/internal/models"
)

func diff(t *testing.T, want, got any, opts ...cmp.Option) {
	t.Helper()
	if d := cmp.Diff(want, got, opts...); d != "" {
		t.Error(d)
	}
}

// nanEqual lets unset settings compare equal.
var nanEqual = cmp.Comparer(func(a, b models.Num) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return math.IsNaN(float64(a)) && math.IsNaN(float64(b))
	}
	return a == b
})

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db, nil).RunMigrations(); err != nil {
		t.Fatal(err)
	}
	return db
}

func route(id, name string, pts ...models.Point) models.RouteRecord {
	s := models.DefaultSettings()
	s.DashLength = models.Unset
	return models.RouteRecord{ID: id, Name: name, Points: pts, Settings: s, CreatedAt: 10, UpdatedAt: 20}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := database.NewMigrationManager(db, nil).RunMigrations(); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("migrations = %d, want 1", n)
	}
}

func TestRoutesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRouteRepository(newTestDB(t))

	got, err := repo.GetRoutes(ctx, "scene")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("empty scene has %d routes", len(got))
	}

	want := []models.RouteRecord{
		route("b", "North Road", models.Pt(0, 0), models.Pt(10, 5)),
		route("a", "Harbour_Run", models.Pt(1, 1), models.Pt(2, 2), models.Pt(3, 1)),
	}
	if err := repo.SetRoutes(ctx, "scene", want); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetRoutes(ctx, "other", want[:1]); err != nil {
		t.Fatal(err)
	}

	got, err = repo.GetRoutes(ctx, "scene")
	if err != nil {
		t.Fatal(err)
	}
	diff(t, want, got, nanEqual)

	one, err := repo.GetRoute(ctx, "scene", "a")
	if err != nil {
		t.Fatal(err)
	}
	diff(t, &want[1], one, nanEqual)

	missing, err := repo.GetRoute(ctx, "scene", "zzz")
	if err != nil || missing != nil {
		t.Errorf("GetRoute(missing) = %v, %v", missing, err)
	}
}

func TestSetRoutesReplacesCollection(t *testing.T) {
	ctx := context.Background()
	repo := NewRouteRepository(newTestDB(t))

	repo.SetRoutes(ctx, "scene", []models.RouteRecord{route("a", "A", models.Pt(0, 0), models.Pt(1, 1))})
	repo.SetRoutes(ctx, "scene", []models.RouteRecord{route("b", "B", models.Pt(0, 0), models.Pt(1, 1))})

	got, _ := repo.GetRoutes(ctx, "scene")
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("routes = %+v, want only b", got)
	}

	// a failed write leaves the previous collection alone
	dup := []models.RouteRecord{route("c", "C"), route("c", "C again")}
	if err := repo.SetRoutes(ctx, "scene", dup); err == nil {
		t.Fatal("duplicate ids accepted")
	}
	got, _ = repo.GetRoutes(ctx, "scene")
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("routes after failed write = %+v, want only b", got)
	}
}

func TestFindRoutesByName(t *testing.T) {
	ctx := context.Background()
	repo := NewRouteRepository(newTestDB(t))
	repo.SetRoutes(ctx, "scene", []models.RouteRecord{
		route("1", "North Road"),
		route("2", "Harbour_Run"),
		route("3", "Harbour Road"),
	})

	tests := []struct {
		name string
		want []string
	}{
		{"road", []string{"1", "3"}},
		{"HARBOUR", []string{"2", "3"}},
		{"_", []string{"2"}},
		{"%", nil},
		{"", []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		got, err := repo.FindRoutes(ctx, "scene", models.RouteFilter{Name: tt.name})
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		diff(t, tt.want, ids)
	}
}

func TestConfig(t *testing.T) {
	ctx := context.Background()
	repo := NewConfigRepository(newTestDB(t))

	var modes []models.TravelMode
	ok, err := repo.Get(ctx, models.ConfigTravelModes, &modes)
	if err != nil || ok {
		t.Fatalf("Get(unset) = %v, %v", ok, err)
	}

	want := models.DefaultTravelModes()[:2]
	if err := repo.Set(ctx, models.ConfigTravelModes, want); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, models.ConfigTravelModes, want); err != nil {
		t.Fatal(err)
	}
	ok, err = repo.Get(ctx, models.ConfigTravelModes, &modes)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	diff(t, want, modes)

	if err := repo.Delete(ctx, models.ConfigTravelModes); err != nil {
		t.Fatal(err)
	}
	raw, err := repo.GetRaw(ctx, models.ConfigTravelModes)
	if err != nil || raw != nil {
		t.Errorf("GetRaw after delete = %s, %v", raw, err)
	}
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(newTestDB(t))

	tok := models.Token{ID: "t1", SceneID: "scene", Name: "Cart", Image: "tokens/cart.png", X: 10, Y: 20, Width: 50, Height: 50}
	if err := repo.SaveToken(ctx, tok); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateTokenPosition(ctx, "scene", "t1", 375, -25); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateTokenPosition(ctx, "scene", "ghost", 1, 1); err != nil {
		t.Errorf("moving an unknown token: %v", err)
	}

	got, err := repo.GetToken(ctx, "scene", "t1")
	if err != nil {
		t.Fatal(err)
	}
	tok.X, tok.Y = 375, -25
	diff(t, &tok, got)

	if other, _ := repo.GetToken(ctx, "other", "t1"); other != nil {
		t.Error("token visible on another scene")
	}
	list, _ := repo.ListTokens(ctx, "scene")
	diff(t, []models.Token{tok}, list)

	repo.DeleteToken(ctx, "scene", "t1")
	if gone, _ := repo.GetToken(ctx, "scene", "t1"); gone != nil {
		t.Error("deleted token still present")
	}
}

func TestTiles(t *testing.T) {
	ctx := context.Background()
	repo := NewTileRepository(newTestDB(t))

	first, err := repo.CreateTile(ctx, models.Tile{SceneID: "scene", RouteID: "r", X: 84, Y: 84, Width: 132, Height: 32, Src: "tiles/a.png", Locked: true})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := repo.CreateTile(ctx, models.Tile{SceneID: "scene", X: 1, Y: 2, Width: 3, Height: 4, Src: "tiles/b.png", CreatedAt: 5})
	if first.ID == 0 || second.ID <= first.ID || first.CreatedAt == 0 {
		t.Errorf("tiles = %+v, %+v", first, second)
	}

	got, err := repo.ListTiles(ctx, "scene")
	if err != nil {
		t.Fatal(err)
	}
	diff(t, []models.Tile{first, second}, got, cmpopts.EquateEmpty())
}
