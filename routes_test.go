package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"foodgram/config"
	"foodgram/models"
	"foodgram/services"
)

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	accounts *services.AccountService
	cfg      *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cfg := &config.Config{
		PageSize:             6,
		SubscriptionsRecipes: 3,
		MediaRoot:            t.TempDir(),
	}
	accounts := services.NewAccountService(db, zap.NewNop(), 0)
	media, err := services.NewMediaStore(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}
	return &testServer{
		router:   newRouter(cfg, db, accounts, media, zap.NewNop()),
		db:       db,
		accounts: accounts,
		cfg:      cfg,
	}
}

// do schickt eine JSON-Anfrage an den Test-Router.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return body
}

// newUser legt einen Benutzer direkt über den Service an und gibt das Token zurück.
func (ts *testServer) newUser(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	user, err := ts.accounts.Register(username+"@example.com", username, "Test", "User", "secret123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	token, err := ts.accounts.IssueToken(user.ID)
	if err != nil {
		t.Fatalf("failed to issue token for %s: %v", username, err)
	}
	return user, token.Key
}

func (ts *testServer) seedIngredients(t *testing.T) []models.Ingredient {
	t.Helper()
	ingredients := []models.Ingredient{
		{Name: "flour", MeasurementUnit: "g"},
		{Name: "milk", MeasurementUnit: "ml"},
		{Name: "sugar", MeasurementUnit: "g"},
	}
	if err := ts.db.Create(&ingredients).Error; err != nil {
		t.Fatalf("failed to seed ingredients: %v", err)
	}
	return ingredients
}

func testImage() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png bytes"))
}

func (ts *testServer) createRecipe(t *testing.T, token, name string, ingredients []models.Ingredient) uint {
	t.Helper()
	items := make([]map[string]any, 0, len(ingredients))
	for _, ing := range ingredients {
		items = append(items, map[string]any{"id": ing.ID, "amount": 100})
	}
	w := ts.do(t, http.MethodPost, "/api/recipes/", token, map[string]any{
		"name":         name,
		"text":         "cook it",
		"cooking_time": 30,
		"image":        testImage(),
		"ingredients":  items,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("recipe create returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	return uint(body["id"].(float64))
}

func TestRegistrationEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/users/", "", map[string]any{
		"email":      "vasya@example.com",
		"username":   "vasya",
		"first_name": "Vasya",
		"last_name":  "Pupkin",
		"password":   "secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("registration returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["email"] != "vasya@example.com" || body["username"] != "vasya" {
		t.Errorf("unexpected registration payload: %v", body)
	}
	if _, ok := body["password"]; ok {
		t.Error("registration response leaks the password")
	}

	// Doppelte E-Mail
	w = ts.do(t, http.MethodPost, "/api/users/", "", map[string]any{
		"email":      "vasya@example.com",
		"username":   "other",
		"first_name": "A",
		"last_name":  "B",
		"password":   "secret123",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate email returned %d, want 400", w.Code)
	}

	// Ungültiger Benutzername
	w = ts.do(t, http.MethodPost, "/api/users/", "", map[string]any{
		"email":      "new@example.com",
		"username":   "has space",
		"first_name": "A",
		"last_name":  "B",
		"password":   "secret123",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid username returned %d, want 400", w.Code)
	}
}

func TestRegistrationWithCyrillicNames(t *testing.T) {
	ts := newTestServer(t)

	// 100 Zeichen liegen unter dem Limit von 150, auch wenn der UTF-8-Text
	// mehr als 150 Bytes belegt.
	w := ts.do(t, http.MethodPost, "/api/users/", "", map[string]any{
		"email":      "dmitri@example.com",
		"username":   strings.Repeat("я", 100),
		"first_name": strings.Repeat("я", 100),
		"last_name":  "Иванов",
		"password":   "secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("cyrillic registration returned %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/api/users/", "", map[string]any{
		"email":      "other@example.com",
		"username":   strings.Repeat("я", 151),
		"first_name": "Имя",
		"last_name":  "Иванов",
		"password":   "secret123",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("151-rune username returned %d, want 400", w.Code)
	}
}

func TestLoginAndLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.newUser(t, "vasya")

	w := ts.do(t, http.MethodPost, "/api/auth/token/login", "", map[string]any{
		"email":    "vasya@example.com",
		"password": "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
	key, _ := decodeBody(t, w)["auth_token"].(string)
	if len(key) != 40 {
		t.Fatalf("auth_token length = %d, want 40", len(key))
	}

	w = ts.do(t, http.MethodPost, "/api/auth/token/login", "", map[string]any{
		"email":    "vasya@example.com",
		"password": "wrong",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("login with wrong password returned %d, want 400", w.Code)
	}

	if w = ts.do(t, http.MethodPost, "/api/auth/token/logout", key, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout returned %d", w.Code)
	}
	if w = ts.do(t, http.MethodGet, "/api/users/me", key, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("request with revoked token returned %d, want 401", w.Code)
	}
}

func TestUserProfiles(t *testing.T) {
	ts := newTestServer(t)
	user, token := ts.newUser(t, "vasya")

	if w := ts.do(t, http.MethodGet, "/api/users/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /users/me returned %d, want 401", w.Code)
	}

	w := ts.do(t, http.MethodGet, "/api/users/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/users/me returned %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["email"] != "vasya@example.com" {
		t.Errorf("unexpected /users/me payload: %v", body)
	}

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", user.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("public profile returned %d", w.Code)
	}
	if w = ts.do(t, http.MethodGet, "/api/users/99999", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown profile returned %d, want 404", w.Code)
	}
}

func TestUserListPagination(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 8; i++ {
		ts.newUser(t, fmt.Sprintf("user%d", i))
	}

	w := ts.do(t, http.MethodGet, "/api/users/?limit=5", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("user list returned %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"].(float64) != 8 {
		t.Errorf("count = %v, want 8", body["count"])
	}
	if results := body["results"].([]any); len(results) != 5 {
		t.Errorf("page 1 has %d results, want 5", len(results))
	}
	if body["next"] == nil {
		t.Error("next link missing on page 1")
	}
	if body["previous"] != nil {
		t.Error("previous link present on page 1")
	}

	w = ts.do(t, http.MethodGet, "/api/users/?limit=5&page=2", "", nil)
	body = decodeBody(t, w)
	if results := body["results"].([]any); len(results) != 3 {
		t.Errorf("page 2 has %d results, want 3", len(results))
	}
	if body["next"] != nil {
		t.Error("next link present on last page")
	}
	if body["previous"] == nil {
		t.Error("previous link missing on page 2")
	}
}

func TestAvatarUpload(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.newUser(t, "vasya")

	w := ts.do(t, http.MethodPut, "/api/users/me/avatar", token, map[string]any{"avatar": testImage()})
	if w.Code != http.StatusOK {
		t.Fatalf("avatar upload returned %d: %s", w.Code, w.Body.String())
	}
	avatar, _ := decodeBody(t, w)["avatar"].(string)
	if !strings.HasPrefix(avatar, "/media/avatars/") {
		t.Errorf("unexpected avatar URL %q", avatar)
	}

	// Ein zweiter Upload ersetzt die Datei; die alte verschwindet erst
	// nach erfolgreichem Speichern der neuen URL.
	w = ts.do(t, http.MethodPut, "/api/users/me/avatar", token, map[string]any{"avatar": testImage()})
	if w.Code != http.StatusOK {
		t.Fatalf("second avatar upload returned %d: %s", w.Code, w.Body.String())
	}
	replacement, _ := decodeBody(t, w)["avatar"].(string)
	if replacement == avatar {
		t.Error("second upload reused the first avatar URL")
	}
	oldPath := filepath.Join(ts.cfg.MediaRoot, filepath.FromSlash(strings.TrimPrefix(avatar, "/media/")))
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("replaced avatar file still on disk")
	}
	newPath := filepath.Join(ts.cfg.MediaRoot, filepath.FromSlash(strings.TrimPrefix(replacement, "/media/")))
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("current avatar file missing: %v", err)
	}

	w = ts.do(t, http.MethodPut, "/api/users/me/avatar", token, map[string]any{"avatar": "garbage"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid avatar returned %d, want 400", w.Code)
	}

	if w = ts.do(t, http.MethodDelete, "/api/users/me/avatar", token, nil); w.Code != http.StatusNoContent {
		t.Errorf("avatar delete returned %d, want 204", w.Code)
	}
}

func TestSetPasswordEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.newUser(t, "vasya")

	w := ts.do(t, http.MethodPost, "/api/users/set_password", token, map[string]any{
		"new_password":     "changed456",
		"current_password": "wrong",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong current password returned %d, want 400", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/users/set_password", token, map[string]any{
		"new_password":     "changed456",
		"current_password": "secret123",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set_password returned %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/api/auth/token/login", "", map[string]any{
		"email":    "vasya@example.com",
		"password": "changed456",
	})
	if w.Code != http.StatusOK {
		t.Errorf("login with new password returned %d", w.Code)
	}
}

func TestRecipeLifecycle(t *testing.T) {
	ts := newTestServer(t)
	author, authorToken := ts.newUser(t, "author")
	_, otherToken := ts.newUser(t, "other")
	ingredients := ts.seedIngredients(t)

	// Anonym darf nicht anlegen
	w := ts.do(t, http.MethodPost, "/api/recipes/", "", map[string]any{"name": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous recipe create returned %d, want 401", w.Code)
	}

	recipeID := ts.createRecipe(t, authorToken, "Pancakes", ingredients[:2])

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/recipes/%d", recipeID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recipe detail returned %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["name"] != "Pancakes" {
		t.Errorf("recipe name = %v", body["name"])
	}
	if got := body["author"].(map[string]any)["id"].(float64); uint(got) != author.ID {
		t.Errorf("recipe author id = %v, want %d", got, author.ID)
	}
	if got := len(body["ingredients"].([]any)); got != 2 {
		t.Errorf("recipe has %d ingredients, want 2", got)
	}
	if image := body["image"].(string); !strings.HasPrefix(image, "/media/recipes/") {
		t.Errorf("unexpected image URL %q", image)
	}

	// Nur der Autor darf ändern
	patch := map[string]any{
		"name":         "Thin Pancakes",
		"text":         "cook it",
		"cooking_time": 25,
		"ingredients":  []map[string]any{{"id": ingredients[0].ID, "amount": 250}},
	}
	if w = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/recipes/%d", recipeID), otherToken, patch); w.Code != http.StatusForbidden {
		t.Errorf("foreign patch returned %d, want 403", w.Code)
	}
	w = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/recipes/%d", recipeID), authorToken, patch)
	if w.Code != http.StatusOK {
		t.Fatalf("author patch returned %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	if body["name"] != "Thin Pancakes" {
		t.Errorf("patched name = %v", body["name"])
	}
	if got := len(body["ingredients"].([]any)); got != 1 {
		t.Errorf("patched recipe has %d ingredients, want 1", got)
	}

	// Nur der Autor darf löschen
	if w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/recipes/%d", recipeID), otherToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign delete returned %d, want 403", w.Code)
	}
	if w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/recipes/%d", recipeID), authorToken, nil); w.Code != http.StatusNoContent {
		t.Errorf("author delete returned %d, want 204", w.Code)
	}
	if w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/recipes/%d", recipeID), "", nil); w.Code != http.StatusNotFound {
		t.Errorf("deleted recipe returned %d, want 404", w.Code)
	}
}

func TestRecipeValidation(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.newUser(t, "author")
	ingredients := ts.seedIngredients(t)

	base := func() map[string]any {
		return map[string]any{
			"name":         "Soup",
			"text":         "boil",
			"cooking_time": 10,
			"image":        testImage(),
			"ingredients":  []map[string]any{{"id": ingredients[0].ID, "amount": 10}},
		}
	}

	cases := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"zero cooking time", func(m map[string]any) { m["cooking_time"] = 0 }},
		{"no ingredients", func(m map[string]any) { m["ingredients"] = []map[string]any{} }},
		{"zero amount", func(m map[string]any) {
			m["ingredients"] = []map[string]any{{"id": ingredients[0].ID, "amount": 0}}
		}},
		{"duplicate ingredient", func(m map[string]any) {
			m["ingredients"] = []map[string]any{
				{"id": ingredients[0].ID, "amount": 10},
				{"id": ingredients[0].ID, "amount": 20},
			}
		}},
		{"unknown ingredient", func(m map[string]any) {
			m["ingredients"] = []map[string]any{{"id": 99999, "amount": 10}}
		}},
		{"missing image", func(m map[string]any) { delete(m, "image") }},
		{"missing name", func(m map[string]any) { m["name"] = "" }},
	}
	for _, c := range cases {
		payload := base()
		c.mutate(payload)
		if w := ts.do(t, http.MethodPost, "/api/recipes/", token, payload); w.Code != http.StatusBadRequest {
			t.Errorf("%s: returned %d, want 400", c.name, w.Code)
		}
	}

	// Das Namenslimit von 200 zählt Zeichen, nicht Bytes.
	payload := base()
	payload["name"] = strings.Repeat("щ", 150)
	if w := ts.do(t, http.MethodPost, "/api/recipes/", token, payload); w.Code != http.StatusCreated {
		t.Errorf("150-rune cyrillic recipe name returned %d, want 201", w.Code)
	}
	payload = base()
	payload["name"] = strings.Repeat("щ", 201)
	if w := ts.do(t, http.MethodPost, "/api/recipes/", token, payload); w.Code != http.StatusBadRequest {
		t.Errorf("201-rune recipe name returned %d, want 400", w.Code)
	}
}

func TestFavoritesAndShoppingCart(t *testing.T) {
	ts := newTestServer(t)
	_, authorToken := ts.newUser(t, "author")
	_, token := ts.newUser(t, "eater")
	ingredients := ts.seedIngredients(t)
	recipeID := ts.createRecipe(t, authorToken, "Pancakes", ingredients[:2])

	for _, action := range []string{"favorite", "shopping_cart"} {
		path := fmt.Sprintf("/api/recipes/%d/%s", recipeID, action)

		w := ts.do(t, http.MethodPost, path, token, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("POST %s returned %d: %s", action, w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["name"] != "Pancakes" || body["cooking_time"].(float64) != 30 {
			t.Errorf("%s short payload = %v", action, body)
		}

		if w = ts.do(t, http.MethodPost, path, token, nil); w.Code != http.StatusBadRequest {
			t.Errorf("duplicate %s returned %d, want 400", action, w.Code)
		}
	}

	// Filter wirken nur für den angemeldeten Benutzer
	w := ts.do(t, http.MethodGet, "/api/recipes/?is_favorited=1", token, nil)
	if body := decodeBody(t, w); body["count"].(float64) != 1 {
		t.Errorf("is_favorited filter count = %v, want 1", body["count"])
	}
	w = ts.do(t, http.MethodGet, "/api/recipes/?is_in_shopping_cart=1", authorToken, nil)
	if body := decodeBody(t, w); body["count"].(float64) != 0 {
		t.Errorf("author cart filter count = %v, want 0", body["count"])
	}

	// Einkaufsliste herunterladen
	w = ts.do(t, http.MethodGet, "/api/recipes/download_shopping_cart", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download returned %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if text := w.Body.String(); !strings.Contains(text, "flour (g)") {
		t.Errorf("shopping list missing aggregated entry: %q", text)
	}

	for _, action := range []string{"favorite", "shopping_cart"} {
		path := fmt.Sprintf("/api/recipes/%d/%s", recipeID, action)
		if w := ts.do(t, http.MethodDelete, path, token, nil); w.Code != http.StatusNoContent {
			t.Errorf("DELETE %s returned %d, want 204", action, w.Code)
		}
		if w := ts.do(t, http.MethodDelete, path, token, nil); w.Code != http.StatusBadRequest {
			t.Errorf("repeated DELETE %s returned %d, want 400", action, w.Code)
		}
	}
}

func TestRecipeListFilters(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.newUser(t, "alice")
	_, bobToken := ts.newUser(t, "bob")
	ingredients := ts.seedIngredients(t)
	ts.createRecipe(t, aliceToken, "Pancakes", ingredients[:1])
	ts.createRecipe(t, aliceToken, "Pumpkin Soup", ingredients[:1])
	ts.createRecipe(t, bobToken, "Borscht", ingredients[:1])

	w := ts.do(t, http.MethodGet, fmt.Sprintf("/api/recipes/?author=%d", alice.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("author filter returned %d", w.Code)
	}
	if body := decodeBody(t, w); body["count"].(float64) != 2 {
		t.Errorf("author filter count = %v, want 2", body["count"])
	}

	// Präfix-Suche auf den Namen, unabhängig von Groß-/Kleinschreibung
	w = ts.do(t, http.MethodGet, "/api/recipes/?name=pan", "", nil)
	body := decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Fatalf("name filter count = %v, want 1", body["count"])
	}
	first := body["results"].([]any)[0].(map[string]any)
	if first["name"] != "Pancakes" {
		t.Errorf("name filter returned %v", first["name"])
	}

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/recipes/?author=%d&name=Pumpkin", alice.ID), "", nil)
	if body := decodeBody(t, w); body["count"].(float64) != 1 {
		t.Errorf("combined filter count = %v, want 1", body["count"])
	}
}

func TestShortLink(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.newUser(t, "author")
	ingredients := ts.seedIngredients(t)
	recipeID := ts.createRecipe(t, token, "Pancakes", ingredients[:1])

	w := ts.do(t, http.MethodGet, fmt.Sprintf("/api/recipes/%d/get-link", recipeID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get-link returned %d", w.Code)
	}
	link, _ := decodeBody(t, w)["short-link"].(string)
	idx := strings.Index(link, "/s/")
	if idx < 0 {
		t.Fatalf("short link %q has no /s/ path", link)
	}

	w = ts.do(t, http.MethodGet, link[idx:], "", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("short link redirect returned %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, fmt.Sprintf("/recipes/%d/", recipeID)) {
		t.Errorf("redirect location = %q", loc)
	}

	if w = ts.do(t, http.MethodGet, "/s/ZZZZZZZZ", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown short code returned %d, want 404", w.Code)
	}
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	author, authorToken := ts.newUser(t, "author")
	_, token := ts.newUser(t, "fan")
	ingredients := ts.seedIngredients(t)
	for i := 0; i < 4; i++ {
		ts.createRecipe(t, authorToken, fmt.Sprintf("Recipe %d", i), ingredients[:1])
	}

	subscribePath := fmt.Sprintf("/api/users/%d/subscribe", author.ID)

	w := ts.do(t, http.MethodPost, subscribePath, token, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("subscribe returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["recipes_count"].(float64) != 4 {
		t.Errorf("recipes_count = %v, want 4", body["recipes_count"])
	}
	// Standardmäßig werden höchstens drei Rezepte eingebettet.
	if got := len(body["recipes"].([]any)); got != 3 {
		t.Errorf("embedded recipes = %d, want 3", got)
	}
	if body["is_subscribed"] != true {
		t.Error("is_subscribed missing in subscribe payload")
	}

	if w = ts.do(t, http.MethodPost, subscribePath, token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("duplicate subscribe returned %d, want 400", w.Code)
	}
	selfPath := fmt.Sprintf("/api/users/%d/subscribe", author.ID)
	if w = ts.do(t, http.MethodPost, selfPath, authorToken, nil); w.Code != http.StatusBadRequest {
		t.Errorf("self subscribe returned %d, want 400", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/users/subscriptions?recipes_limit=1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("subscription list returned %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Errorf("subscription count = %v, want 1", body["count"])
	}
	first := body["results"].([]any)[0].(map[string]any)
	if got := len(first["recipes"].([]any)); got != 1 {
		t.Errorf("recipes_limit=1 returned %d recipes", got)
	}

	if w = ts.do(t, http.MethodDelete, subscribePath, token, nil); w.Code != http.StatusNoContent {
		t.Errorf("unsubscribe returned %d, want 204", w.Code)
	}
	if w = ts.do(t, http.MethodDelete, subscribePath, token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("repeated unsubscribe returned %d, want 400", w.Code)
	}
}

func TestIngredientEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ingredients := ts.seedIngredients(t)

	w := ts.do(t, http.MethodGet, "/api/ingredients/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ingredient list returned %d", w.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid ingredient list: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("ingredient list has %d entries, want 3", len(list))
	}

	// Präfix-Suche, unabhängig von Groß-/Kleinschreibung
	w = ts.do(t, http.MethodGet, "/api/ingredients/?name=FL", "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid filtered list: %v", err)
	}
	if len(list) != 1 || list[0]["name"] != "flour" {
		t.Errorf("name filter returned %v", list)
	}

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/ingredients/%d", ingredients[1].ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ingredient detail returned %d", w.Code)
	}
	if body := decodeBody(t, w); body["name"] != "milk" {
		t.Errorf("ingredient detail = %v", body)
	}
	if w = ts.do(t, http.MethodGet, "/api/ingredients/99999", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown ingredient returned %d, want 404", w.Code)
	}
}
