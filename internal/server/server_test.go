package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"nasheedpro/internal/config"
	"nasheedpro/internal/database"
	"nasheedpro/pkg/models"
)

func newTestServer(t *testing.T) (*MusicServer, *database.Database) {
	t.Helper()

	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Server.StaticDir = filepath.Join(dir, "public")
	cfg.Database.Path = filepath.Join(dir, "test.db")
	cfg.Music.LibraryPath = filepath.Join(dir, "songs")
	cfg.Music.CoversDir = filepath.Join(dir, "covers")
	cfg.Music.ScanOnStartup = false
	cfg.Music.WatchForChanges = false
	cfg.Session.Secret = "test_secret"
	cfg.Session.Duration = "1h"
	cfg.Logging.Level = "error"
	cfg.Logging.RequestLogging = false

	if err := os.MkdirAll(cfg.Music.LibraryPath, 0755); err != nil {
		t.Fatalf("Failed to create library dir: %v", err)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms, err := NewMusicServer(cfg, db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return ms, db
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func get(t *testing.T, handler http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func postJSON(t *testing.T, handler http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

// sessionCookie signs up and logs in a fresh user, returning the session cookie.
func sessionCookie(t *testing.T, handler http.Handler, username string) *http.Cookie {
	t.Helper()

	w := postForm(t, handler, "/signup", url.Values{
		"username": {username},
		"email":    {username + "@x.com"},
		"password": {"secretpw"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Signup returned %d: %s", w.Code, w.Body.String())
	}

	w = postForm(t, handler, "/login", url.Values{
		"username": {username},
		"password": {"secretpw"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Login returned %d: %s", w.Code, w.Body.String())
	}

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Expected login to set a session cookie")
	}
	return cookies[0]
}

func guestCookie(t *testing.T, handler http.Handler) *http.Cookie {
	t.Helper()

	w := get(t, handler, "/guest")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Guest entry returned %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Expected guest entry to set a session cookie")
	}
	return cookies[0]
}

func TestSignupAndLogin(t *testing.T) {
	ms, _ := newTestServer(t)
	handler := ms.Handler()

	t.Run("SignupRedirectsToLogin", func(t *testing.T) {
		w := postForm(t, handler, "/signup", url.Values{
			"username": {"ava"},
			"email":    {"ava@x.com"},
			"password": {"secretpw"},
		})
		if w.Code != http.StatusSeeOther {
			t.Fatalf("Expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/login" {
			t.Errorf("Expected redirect to /login, got %s", loc)
		}
	})

	t.Run("DuplicateSignupConflicts", func(t *testing.T) {
		w := postForm(t, handler, "/signup", url.Values{
			"username": {"ava"},
			"email":    {"other@x.com"},
			"password": {"secretpw"},
		})
		if w.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Username/email already exists") {
			t.Errorf("Unexpected conflict body: %s", w.Body.String())
		}
	})

	t.Run("LoginSetsCookieAndRedirects", func(t *testing.T) {
		w := postForm(t, handler, "/login", url.Values{
			"username": {"ava"},
			"password": {"secretpw"},
		})
		if w.Code != http.StatusSeeOther {
			t.Fatalf("Expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/main" {
			t.Errorf("Expected redirect to /main, got %s", loc)
		}
		if len(w.Result().Cookies()) == 0 {
			t.Error("Expected session cookie")
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		w := postForm(t, handler, "/login", url.Values{
			"username": {"ava"},
			"password": {"wrong"},
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Invalid credentials") {
			t.Errorf("Unexpected body: %s", w.Body.String())
		}
	})

	t.Run("LoginByEmail", func(t *testing.T) {
		w := postForm(t, handler, "/login", url.Values{
			"username": {"ava@x.com"},
			"password": {"secretpw"},
		})
		if w.Code != http.StatusSeeOther {
			t.Errorf("Expected 303, got %d", w.Code)
		}
	})
}

func TestSessionPages(t *testing.T) {
	ms, _ := newTestServer(t)
	handler := ms.Handler()

	t.Run("MainWithoutSessionRedirects", func(t *testing.T) {
		w := get(t, handler, "/main")
		if w.Code != http.StatusTemporaryRedirect {
			t.Errorf("Expected 307, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/login" {
			t.Errorf("Expected redirect to /login, got %s", loc)
		}
	})

	t.Run("UnknownPathIs404", func(t *testing.T) {
		w := get(t, handler, "/no-such-page")
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("LogoutClearsSessionAndRedirects", func(t *testing.T) {
		cookie := sessionCookie(t, handler, "leaver")

		w := get(t, handler, "/logout", cookie)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("Expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/" {
			t.Errorf("Expected redirect to /, got %s", loc)
		}

		// The old cookie no longer resolves a session
		w = get(t, handler, "/main", cookie)
		if w.Code != http.StatusTemporaryRedirect {
			t.Errorf("Expected 307 after logout, got %d", w.Code)
		}
	})

	t.Run("LogoutWithoutSessionStillRedirects", func(t *testing.T) {
		w := get(t, handler, "/logout")
		if w.Code != http.StatusSeeOther {
			t.Errorf("Expected 303, got %d", w.Code)
		}
	})
}

func TestGetUser(t *testing.T) {
	ms, _ := newTestServer(t)
	handler := ms.Handler()

	t.Run("NoSessionIsNull", func(t *testing.T) {
		w := get(t, handler, "/api/user")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if body := strings.TrimSpace(w.Body.String()); body != "null" {
			t.Errorf("Expected null body, got %s", body)
		}
	})

	t.Run("GuestExposesOnlyTier", func(t *testing.T) {
		w := get(t, handler, "/api/user", guestCookie(t, handler))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var payload map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if payload["tier"] != "guest" {
			t.Errorf("Expected guest tier, got %v", payload["tier"])
		}
		if _, ok := payload["username"]; ok {
			t.Error("Expected guest payload to omit username")
		}
	})

	t.Run("AuthenticatedUser", func(t *testing.T) {
		w := get(t, handler, "/api/user", sessionCookie(t, handler, "viewer"))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var payload map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if payload["tier"] != "free" {
			t.Errorf("Expected free tier, got %v", payload["tier"])
		}
		if payload["username"] != "viewer" {
			t.Errorf("Expected username viewer, got %v", payload["username"])
		}
		if payload["isPremium"] != false {
			t.Errorf("Expected isPremium false, got %v", payload["isPremium"])
		}
	})
}

func TestGetSongs(t *testing.T) {
	ms, db := newTestServer(t)
	handler := ms.Handler()

	songID, err := db.InsertSong(models.Song{Title: "One", Artist: "A", FilePath: "/t/one.mp3"})
	if err != nil {
		t.Fatalf("Failed to insert song: %v", err)
	}

	t.Run("AnonymousGetsUnannotatedList", func(t *testing.T) {
		w := get(t, handler, "/api/songs")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var songs []map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &songs); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(songs) != 1 {
			t.Fatalf("Expected 1 song, got %d", len(songs))
		}
		if _, ok := songs[0]["is_favorite"]; ok {
			t.Error("Expected anonymous listing to omit is_favorite")
		}
		if _, ok := songs[0]["file_path"]; ok {
			t.Error("Expected file path to stay server-side")
		}
	})

	t.Run("GuestGetsSameList", func(t *testing.T) {
		w := get(t, handler, "/api/songs", guestCookie(t, handler))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var songs []map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &songs); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(songs) != 1 {
			t.Errorf("Expected 1 song, got %d", len(songs))
		}
	})

	t.Run("AuthenticatedGetsAnnotations", func(t *testing.T) {
		cookie := sessionCookie(t, handler, "listener")

		w := postJSON(t, handler, "/api/toggle-favorite",
			`{"song_id": `+strconv.Itoa(songID)+`}`, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("Toggle returned %d: %s", w.Code, w.Body.String())
		}

		w = get(t, handler, "/api/songs", cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var songs []models.AnnotatedSong
		if err := json.Unmarshal(w.Body.Bytes(), &songs); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(songs) != 1 {
			t.Fatalf("Expected 1 song, got %d", len(songs))
		}
		if !songs[0].IsFavorite {
			t.Error("Expected song to be annotated as favorite")
		}
	})
}

func TestToggleFavorite(t *testing.T) {
	ms, db := newTestServer(t)
	handler := ms.Handler()

	songID, err := db.InsertSong(models.Song{Title: "T", FilePath: "/t/t.mp3"})
	if err != nil {
		t.Fatalf("Failed to insert song: %v", err)
	}
	cookie := sessionCookie(t, handler, "toggler")

	t.Run("RequiresAuthentication", func(t *testing.T) {
		w := postJSON(t, handler, "/api/toggle-favorite", `{"song_id": 1}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 without session, got %d", w.Code)
		}
		w = postJSON(t, handler, "/api/toggle-favorite", `{"song_id": 1}`, guestCookie(t, handler))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for guest, got %d", w.Code)
		}
	})

	t.Run("ToggleRoundTrip", func(t *testing.T) {
		body := `{"song_id": ` + strconv.Itoa(songID) + `}`

		w := postJSON(t, handler, "/api/toggle-favorite", body, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp map[string]bool
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if !resp["is_favorite"] {
			t.Error("Expected first toggle to report favorited")
		}

		w = postJSON(t, handler, "/api/toggle-favorite", body, cookie)
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if resp["is_favorite"] {
			t.Error("Expected second toggle to report unfavorited")
		}
	})

	t.Run("StringSongIDIsAccepted", func(t *testing.T) {
		w := postJSON(t, handler, "/api/toggle-favorite",
			`{"song_id": "`+strconv.Itoa(songID)+`"}`, cookie)
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200 for string ID, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("UnknownSongIs404", func(t *testing.T) {
		w := postJSON(t, handler, "/api/toggle-favorite", `{"song_id": 99999}`, cookie)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("GetIsRejected", func(t *testing.T) {
		w := get(t, handler, "/api/toggle-favorite", cookie)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", w.Code)
		}
	})
}

func TestPlaylists(t *testing.T) {
	ms, _ := newTestServer(t)
	handler := ms.Handler()

	cookie := sessionCookie(t, handler, "curator")

	t.Run("GuestGetsEmptyList", func(t *testing.T) {
		w := get(t, handler, "/api/playlists", guestCookie(t, handler))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("Expected empty list, got %s", body)
		}
	})

	t.Run("CreateRequiresAuthentication", func(t *testing.T) {
		w := postJSON(t, handler, "/api/playlist", `{"name": "Nope"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("CreateAndList", func(t *testing.T) {
		w := postJSON(t, handler, "/api/playlist", `{"name": "Road Trip"}`, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Success  bool            `json:"success"`
			Playlist models.Playlist `json:"playlist"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if !resp.Success || resp.Playlist.Name != "Road Trip" {
			t.Errorf("Unexpected create response: %+v", resp)
		}

		w = get(t, handler, "/api/playlists", cookie)
		var playlists []models.Playlist
		if err := json.Unmarshal(w.Body.Bytes(), &playlists); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(playlists) != 1 || playlists[0].Name != "Road Trip" {
			t.Errorf("Unexpected playlist listing: %+v", playlists)
		}
	})

	t.Run("BlankNameGetsDefault", func(t *testing.T) {
		w := postJSON(t, handler, "/api/playlist", `{"name": "   "}`, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var resp struct {
			Playlist models.Playlist `json:"playlist"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if resp.Playlist.Name != "New Playlist" {
			t.Errorf("Expected default name, got %s", resp.Playlist.Name)
		}
	})

	t.Run("OwnershipIsolation", func(t *testing.T) {
		other := sessionCookie(t, handler, "bystander")
		w := get(t, handler, "/api/playlists", other)

		var playlists []models.Playlist
		if err := json.Unmarshal(w.Body.Bytes(), &playlists); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(playlists) != 0 {
			t.Errorf("Expected no playlists for other user, got %d", len(playlists))
		}
	})
}

func TestPremiumGating(t *testing.T) {
	ms, db := newTestServer(t)
	handler := ms.Handler()

	// A real file on disk so a successful download can be served
	audioPath := filepath.Join(ms.config.Music.LibraryPath, "tone.mp3")
	if err := os.WriteFile(audioPath, []byte("not really audio"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	songID, err := db.InsertSong(models.Song{Title: "Tone", FilePath: audioPath})
	if err != nil {
		t.Fatalf("Failed to insert song: %v", err)
	}

	path := "/download/" + strconv.Itoa(songID)

	t.Run("AnonymousIs401", func(t *testing.T) {
		w := get(t, handler, path)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("FreeTierIs403", func(t *testing.T) {
		w := get(t, handler, path, sessionCookie(t, handler, "freeloader"))
		if w.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", w.Code)
		}
	})

	t.Run("UpgradeUnlocksDownload", func(t *testing.T) {
		cookie := sessionCookie(t, handler, "payer")

		w := postForm(t, handler, "/upgrade", url.Values{}, cookie)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("Upgrade returned %d: %s", w.Code, w.Body.String())
		}

		w = get(t, handler, path, cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200 after upgrade, got %d", w.Code)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
			t.Errorf("Expected attachment disposition, got %s", cd)
		}
	})

	t.Run("UpgradeWithoutSessionIs401", func(t *testing.T) {
		w := postForm(t, handler, "/upgrade", url.Values{}, guestCookie(t, handler))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})
}

func TestStreaming(t *testing.T) {
	ms, db := newTestServer(t)
	handler := ms.Handler()

	audioPath := filepath.Join(ms.config.Music.LibraryPath, "clip.mp3")
	if err := os.WriteFile(audioPath, []byte("0123456789abcdef"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	songID, err := db.InsertSong(models.Song{Title: "Clip", FilePath: audioPath})
	if err != nil {
		t.Fatalf("Failed to insert song: %v", err)
	}

	path := "/stream/" + strconv.Itoa(songID)

	t.Run("RequiresSession", func(t *testing.T) {
		w := get(t, handler, path)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("GuestCanStream", func(t *testing.T) {
		w := get(t, handler, path, guestCookie(t, handler))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
			t.Errorf("Expected audio/mpeg, got %s", ct)
		}
	})

	t.Run("RangeRequestsAreServed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.Header.Set("Range", "bytes=0-3")
		r.AddCookie(guestCookie(t, handler))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusPartialContent {
			t.Fatalf("Expected 206, got %d", w.Code)
		}
		if body := w.Body.String(); body != "0123" {
			t.Errorf("Expected first four bytes, got %q", body)
		}
	})

	t.Run("UnknownSongIs404", func(t *testing.T) {
		w := get(t, handler, "/stream/99999", guestCookie(t, handler))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("BadIDIs400", func(t *testing.T) {
		w := get(t, handler, "/stream/abc", guestCookie(t, handler))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	ms, _ := newTestServer(t)
	handler := ms.Handler()

	w := get(t, handler, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected healthy status, got %s", status.Status)
	}
	if status.Database != "ok" {
		t.Errorf("Expected database ok, got %s", status.Database)
	}
}
