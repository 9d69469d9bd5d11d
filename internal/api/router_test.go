package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/jengzang/routecast/internal/broadcast"
	"github.com/jengzang/routecast/internal/config"
	"github.com/jengzang/routecast/internal/database"
	"github.com/jengzang/routecast/internal/handler"
	"github.com/jengzang/routecast/internal/middleware"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/render"
	"github.com/jengzang/routecast/internal/repository"
	"github.com/jengzang/routecast/internal/service"
)

const secret = "test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	t      *testing.T
	router *gin.Engine
	hub    *broadcast.Hub
	gm     string
	player string
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db, nil).RunMigrations(); err != nil {
		t.Fatal(err)
	}

	tokens := repository.NewTokenRepository(db)
	tiles := repository.NewTileRepository(db)
	viewers := render.NewPool(render.Config{Screen: models.Size{Width: 640, Height: 360}, Tokens: tokens})
	t.Cleanup(viewers.Close)
	hub := broadcast.NewHub()
	t.Cleanup(hub.Close)
	coord := broadcast.NewCoordinator(hub, viewers)

	configService := service.NewConfigService(repository.NewConfigRepository(db))
	routeService := service.NewRouteService(service.RouteServiceConfig{
		Routes:      repository.NewRouteRepository(db),
		Tiles:       tiles,
		Config:      configService,
		Coordinator: coord,
		Viewers:     viewers,
		TileDir:     t.TempDir(),
	})

	cfg := &config.Config{JWTSecret: secret}
	router := SetupRouter(cfg, Handlers{
		Routes:  handler.NewRouteHandler(routeService),
		Scenes:  handler.NewSceneHandler(service.NewSceneService(tokens, tiles)),
		Config:  handler.NewConfigHandler(configService),
		Viewer:  handler.NewViewerHandler(hub, viewers),
		Limiter: middleware.NewRateLimiter(1000, time.Minute),
	})

	gm, err := middleware.IssueToken(secret, "gm", middleware.RoleGM, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	player, err := middleware.IssueToken(secret, "player", middleware.RolePlayer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return &server{t: t, router: router, hub: hub, gm: gm, player: player}
}

func (s *server) do(method, target, token, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

// call performs a request, checks the status and decodes the envelope data
// into out.
func (s *server) call(method, target, token, body string, status int, out any) {
	s.t.Helper()
	w := s.do(method, target, token, body)
	if w.Code != status {
		s.t.Fatalf("%s %s: status = %d, want %d: %s", method, target, w.Code, status, w.Body.String())
	}
	if out == nil {
		return
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: %v", method, target, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		s.t.Fatalf("%s %s: decode data: %v", method, target, err)
	}
}

const createBody = `{"name":"North Road","points":[{"x":0,"y":0},{"x":200,"y":0}],"settings":{"smoothingMode":"none"}}`

func TestHealth(t *testing.T) {
	s := newServer(t)
	if w := s.do(http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthorization(t *testing.T) {
	s := newServer(t)
	s.call(http.MethodGet, "/api/v1/scenes/s/routes", "", "", http.StatusUnauthorized, nil)
	s.call(http.MethodGet, "/api/v1/scenes/s/routes", s.player, "", http.StatusOK, nil)
	s.call(http.MethodPost, "/api/v1/scenes/s/routes", s.player, createBody, http.StatusForbidden, nil)
	s.call(http.MethodPut, "/api/v1/config/pixelsPerMile", s.player, `20`, http.StatusForbidden, nil)
	s.call(http.MethodPost, "/api/v1/scenes/s/routes", s.gm, createBody, http.StatusOK, nil)
}

func TestRouteLifecycle(t *testing.T) {
	s := newServer(t)

	var created models.RouteRecord
	s.call(http.MethodPost, "/api/v1/scenes/s/routes", s.gm, createBody, http.StatusOK, &created)
	if created.ID == "" || created.Name != "North Road" {
		t.Fatalf("created = %+v", created)
	}

	var got models.RouteRecord
	s.call(http.MethodGet, "/api/v1/scenes/s/routes/north%20road", s.player, "", http.StatusOK, &got)
	if got.ID != created.ID {
		t.Errorf("lookup by name = %s", got.ID)
	}

	var list struct {
		Routes []models.RouteRecord `json:"routes"`
		Count  int                  `json:"count"`
	}
	s.call(http.MethodGet, "/api/v1/scenes/s/routes?name=NORTH", s.player, "", http.StatusOK, &list)
	if list.Count != 1 {
		t.Errorf("filtered count = %d", list.Count)
	}

	var updated models.RouteRecord
	s.call(http.MethodPut, "/api/v1/scenes/s/routes/"+created.ID, s.gm, `{"name":"South Road"}`, http.StatusOK, &updated)
	if updated.Name != "South Road" {
		t.Errorf("renamed = %q", updated.Name)
	}

	var payload models.PlaybackPayload
	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/play", s.gm, `{"labelText":"Onward"}`, http.StatusOK, &payload)
	if payload.LabelText != "Onward" || payload.RouteID != created.ID {
		t.Errorf("payload = %+v", payload)
	}
	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/play", s.gm, "", http.StatusOK, &payload)
	if payload.LabelText != "South Road" {
		t.Errorf("label without overrides = %q", payload.LabelText)
	}

	var sessions struct {
		Count int `json:"count"`
	}
	s.call(http.MethodGet, "/api/v1/scenes/s/sessions", s.player, "", http.StatusOK, &sessions)
	if sessions.Count != 1 {
		t.Errorf("sessions = %d, want 1", sessions.Count)
	}

	s.call(http.MethodPost, "/api/v1/scenes/s/routes/south%20road/clear", s.gm, "", http.StatusOK, nil)
	s.call(http.MethodGet, "/api/v1/scenes/s/sessions", s.player, "", http.StatusOK, &sessions)
	if sessions.Count != 0 {
		t.Errorf("sessions after clear = %d", sessions.Count)
	}

	var est models.TravelEstimate
	s.call(http.MethodGet, "/api/v1/scenes/s/routes/"+created.ID+"/travel?mode=horse&pixelsPerMile=10", s.player, "", http.StatusOK, &est)
	if est.Mode != "horse" || est.Display != "2 gp" {
		t.Errorf("estimate = %+v", est)
	}
	s.call(http.MethodGet, "/api/v1/scenes/s/routes/"+created.ID+"/travel?mode=balloon", s.player, "", http.StatusBadRequest, nil)

	var tile models.Tile
	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/bake", s.gm, `{"includeLabel":false}`, http.StatusOK, &tile)
	if tile.ID == 0 || tile.Src == "" {
		t.Errorf("tile = %+v", tile)
	}

	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/preview", s.gm, "", http.StatusOK, nil)
	s.call(http.MethodDelete, "/api/v1/scenes/s/routes/"+created.ID, s.gm, "", http.StatusOK, nil)
	s.call(http.MethodGet, "/api/v1/scenes/s/routes/"+created.ID, s.player, "", http.StatusNotFound, nil)
	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/play", s.gm, "", http.StatusNotFound, nil)
}

func TestDrawValidation(t *testing.T) {
	s := newServer(t)
	s.call(http.MethodPost, "/api/v1/scenes/s/draw", s.gm, `{"points":[{"x":1,"y":1}]}`, http.StatusBadRequest, nil)
	s.call(http.MethodPost, "/api/v1/scenes/s/draw", s.gm, `not json`, http.StatusBadRequest, nil)

	var payload models.PlaybackPayload
	s.call(http.MethodPost, "/api/v1/scenes/s/draw", s.gm, `{"points":[{"x":0,"y":0},{"x":50,"y":50}]}`, http.StatusOK, &payload)
	if len(payload.Path) < 2 {
		t.Errorf("path = %v", payload.Path)
	}
	s.call(http.MethodPost, "/api/v1/scenes/s/clear", s.gm, "", http.StatusOK, nil)
}

func TestExportImport(t *testing.T) {
	s := newServer(t)
	s.call(http.MethodPost, "/api/v1/scenes/s/routes", s.gm, createBody, http.StatusOK, nil)

	w := s.do(http.MethodGet, "/api/v1/scenes/s/export", s.player, "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	var doc models.RouteExport
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.SceneID != "s" || len(doc.Routes) != 1 {
		t.Fatalf("export = %+v", doc)
	}

	var imported struct {
		Count int `json:"count"`
	}
	s.call(http.MethodPost, "/api/v1/scenes/copy/import", s.gm, w.Body.String(), http.StatusOK, &imported)
	if imported.Count != 1 {
		t.Errorf("imported %d routes", imported.Count)
	}
	s.call(http.MethodPost, "/api/v1/scenes/copy/import", s.gm, `{"routes":`, http.StatusBadRequest, nil)

	w = s.do(http.MethodGet, "/api/v1/scenes/s/export?format=geojson", s.player, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/geo+json" {
		t.Errorf("geojson export: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"FeatureCollection"`)) {
		t.Errorf("geojson body = %s", w.Body.String())
	}
	s.call(http.MethodGet, "/api/v1/scenes/s/export?format=kml", s.player, "", http.StatusBadRequest, nil)
}

func TestConfigEndpoints(t *testing.T) {
	s := newServer(t)

	var ppm float64
	s.call(http.MethodGet, "/api/v1/config/pixelsPerMile", s.player, "", http.StatusOK, &ppm)
	if ppm != service.DefaultPixelsPerMile {
		t.Errorf("default ppm = %v", ppm)
	}
	s.call(http.MethodPut, "/api/v1/config/pixelsPerMile", s.gm, `25`, http.StatusOK, &ppm)
	s.call(http.MethodGet, "/api/v1/config/pixelsPerMile", s.player, "", http.StatusOK, &ppm)
	if ppm != 25 {
		t.Errorf("ppm = %v, want 25", ppm)
	}

	s.call(http.MethodPut, "/api/v1/config/pixelsPerMile", s.gm, `0`, http.StatusBadRequest, nil)
	s.call(http.MethodPut, "/api/v1/config/pixelsPerMile", s.gm, `{`, http.StatusBadRequest, nil)
	s.call(http.MethodGet, "/api/v1/config/weather", s.player, "", http.StatusNotFound, nil)

	var ignored []string
	s.call(http.MethodGet, "/api/v1/config/ignoredCurrencies", s.player, "", http.StatusOK, &ignored)
	if d := cmp.Diff([]string{}, ignored); d != "" {
		t.Error(d)
	}
}

func TestFrame(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/v1/scenes/s/frame.png", s.player, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("frame: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestWebSocketReceivesPlayback(t *testing.T) {
	s := newServer(t)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + s.player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil); err == nil {
		t.Error("websocket without token accepted")
	}

	var created models.RouteRecord
	s.call(http.MethodPost, "/api/v1/scenes/s/routes", s.gm, createBody, http.StatusOK, &created)

	// the hub registers the peer after the handshake completes
	for i := 0; s.hub.Clients() == 0; i++ {
		if i == 500 {
			t.Fatal("websocket peer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/play", s.gm, "", http.StatusOK, nil)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var types []broadcast.Type
	for len(types) < 2 {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		m, ok, err := broadcast.Decode(data)
		if err != nil || !ok {
			t.Fatalf("decode: %v %v", ok, err)
		}
		types = append(types, m.Type)
	}
	if d := cmp.Diff([]broadcast.Type{broadcast.TypeClear, broadcast.TypePlay}, types); d != "" {
		t.Error(d)
	}
}

func TestTokensAndTiles(t *testing.T) {
	s := newServer(t)

	var tok models.Token
	s.call(http.MethodPut, "/api/v1/scenes/s/tokens/cart", s.gm, `{"name":"Cart","x":10,"y":20,"width":50,"height":50}`, http.StatusOK, &tok)
	if tok.ID != "cart" || tok.SceneID != "s" {
		t.Errorf("token = %+v", tok)
	}
	s.call(http.MethodPut, "/api/v1/scenes/s/tokens/cart", s.player, `{"width":50,"height":50}`, http.StatusForbidden, nil)
	s.call(http.MethodPut, "/api/v1/scenes/s/tokens/bad", s.gm, `{"width":0,"height":50}`, http.StatusBadRequest, nil)

	var tokens struct {
		Tokens []models.Token `json:"tokens"`
	}
	s.call(http.MethodGet, "/api/v1/scenes/s/tokens", s.player, "", http.StatusOK, &tokens)
	if d := cmp.Diff([]models.Token{tok}, tokens.Tokens); d != "" {
		t.Error(d)
	}
	s.call(http.MethodDelete, "/api/v1/scenes/s/tokens/cart", s.gm, "", http.StatusOK, nil)
	s.call(http.MethodGet, "/api/v1/scenes/s/tokens", s.player, "", http.StatusOK, &tokens)
	if len(tokens.Tokens) != 0 {
		t.Errorf("tokens after delete = %+v", tokens.Tokens)
	}

	var created models.RouteRecord
	s.call(http.MethodPost, "/api/v1/scenes/s/routes", s.gm, createBody, http.StatusOK, &created)
	s.call(http.MethodPost, "/api/v1/scenes/s/routes/"+created.ID+"/bake", s.gm, "", http.StatusOK, nil)
	var tiles struct {
		Tiles []models.Tile `json:"tiles"`
	}
	s.call(http.MethodGet, "/api/v1/scenes/s/tiles", s.player, "", http.StatusOK, &tiles)
	if len(tiles.Tiles) != 1 || tiles.Tiles[0].RouteID != created.ID {
		t.Errorf("tiles = %+v", tiles.Tiles)
	}
}

func TestConfigReset(t *testing.T) {
	s := newServer(t)
	s.call(http.MethodPut, "/api/v1/config/pixelsPerMile", s.gm, `25`, http.StatusOK, nil)

	var ppm float64
	s.call(http.MethodDelete, "/api/v1/config/pixelsPerMile", s.gm, "", http.StatusOK, &ppm)
	if ppm != service.DefaultPixelsPerMile {
		t.Errorf("ppm after reset = %v", ppm)
	}
	s.call(http.MethodDelete, "/api/v1/config/weather", s.gm, "", http.StatusNotFound, nil)
}
