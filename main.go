package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"foodgram/config"
	"foodgram/models"
	"foodgram/services"
)

var (
	usersRegisteredCounter prometheus.Counter
	recipesCreatedCounter  prometheus.Counter
)

func init() {
	usersRegisteredCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of registered user accounts.",
		},
	)
	recipesCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recipes_created_total",
			Help: "Total number of recipes created.",
		},
	)
	prometheus.MustRegister(usersRegisteredCounter, recipesCreatedCounter)
}

const userContextKey = "currentUser"

// tokenAuthMiddleware löst den "Authorization: Token <key>"-Header auf.
// Ohne Header läuft die Anfrage anonym weiter; ein ungültiges Token wird
// sofort mit 401 abgewiesen.
func tokenAuthMiddleware(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		key, found := strings.CutPrefix(header, "Token ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid authorization header."})
			return
		}
		user, err := accounts.Authenticate(strings.TrimSpace(key))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUser gibt den authentifizierten Benutzer zurück, oder nil.
func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userContextKey); ok {
		return v.(*models.User)
	}
	return nil
}

// requireUser bricht mit 401 ab, wenn die Anfrage anonym ist.
func requireUser(c *gin.Context) *models.User {
	user := currentUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return nil
	}
	return user
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	if cfg.Debug {
		logging.Info("Debug mode detected. Dropping tables for fresh start.")
		db.Migrator().DropTable(
			&models.AuthToken{}, &models.Favorite{}, &models.ShoppingCartItem{},
			&models.Subscription{}, &models.RecipeIngredient{}, &models.Recipe{},
			&models.Ingredient{}, &models.User{},
		)
	}
	logging.Info("Running database auto-migration...")
	if err := migrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	accounts := services.NewAccountService(db, logging, time.Duration(cfg.TokenTTLHours)*time.Hour)
	media, err := services.NewMediaStore(cfg, logging)
	if err != nil {
		logging.Fatal("Media store creation failed", zap.Error(err))
	}

	// Superuser-Bootstrap aus den DJANGO_SUPERUSER_* Variablen
	if cfg.SuperuserEmail != "" && cfg.SuperuserUsername != "" && cfg.SuperuserPassword != "" {
		if _, err := accounts.CreateSuperuser(cfg.SuperuserUsername, cfg.SuperuserEmail, cfg.SuperuserPassword); err != nil {
			logging.Warn("Superuser bootstrap failed", zap.Error(err))
		}
	}

	router := newRouter(cfg, db, accounts, media, logging)

	// Setup Cron: abgelaufene Tokens regelmäßig entfernen
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		pruned, err := accounts.PruneExpiredTokens()
		if err != nil {
			logging.Error("Token pruning failed", zap.Error(err))
		} else if pruned > 0 {
			logging.Info("Pruned expired auth tokens", zap.Int64("count", pruned))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// migrate legt alle Tabellen des Datenmodells an.
func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{}, &models.AuthToken{}, &models.Ingredient{},
		&models.Recipe{}, &models.RecipeIngredient{},
		&models.Favorite{}, &models.ShoppingCartItem{}, &models.Subscription{},
	)
}

// newRouter baut die Gin-Engine mit allen Routen zusammen.
func newRouter(cfg *config.Config, db *gorm.DB, accounts *services.AccountService, media *services.MediaStore, log *zap.Logger) *gin.Engine {
	router := gin.Default()
	router.Use(tokenAuthMiddleware(accounts))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Lokale Medien nur ausliefern, wenn kein S3 konfiguriert ist.
	if !cfg.MediaS3Enabled() {
		router.Static("/media", cfg.MediaRoot)
	}

	api := router.Group("/api")
	setupAuthRoutes(api, accounts, log)
	setupUserRoutes(api, db, cfg, accounts, media, log)
	setupIngredientRoutes(api, db, log)
	setupRecipeRoutes(api, db, cfg, media, log)
	setupShortLinkRoutes(router, db, log)

	return router
}

// ---------------------------------------------------------------------------
// Serialisierung
// ---------------------------------------------------------------------------

type userResponse struct {
	ID           uint   `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Avatar       string `json:"avatar"`
	IsSubscribed bool   `json:"is_subscribed"`
}

type recipeIngredientResponse struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	Amount          int    `json:"amount"`
}

type recipeResponse struct {
	ID               uint                       `json:"id"`
	Author           userResponse               `json:"author"`
	Ingredients      []recipeIngredientResponse `json:"ingredients"`
	Name             string                     `json:"name"`
	Image            string                     `json:"image"`
	Text             string                     `json:"text"`
	CookingTime      int                        `json:"cooking_time"`
	IsFavorited      bool                       `json:"is_favorited"`
	IsInShoppingCart bool                       `json:"is_in_shopping_cart"`
}

type recipeShortResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	CookingTime int    `json:"cooking_time"`
}

type subscriptionResponse struct {
	userResponse
	RecipesCount int64                 `json:"recipes_count"`
	Recipes      []recipeShortResponse `json:"recipes"`
}

// isSubscribed prüft, ob current dem Autor folgt. Das eigene Profil zählt nie
// als abonniert.
func isSubscribed(db *gorm.DB, current *models.User, authorID uint) bool {
	if current == nil || current.ID == authorID {
		return false
	}
	var count int64
	db.Model(&models.Subscription{}).
		Where("user_id = ? AND author_id = ?", current.ID, authorID).
		Count(&count)
	return count > 0
}

func buildUserResponse(db *gorm.DB, user *models.User, current *models.User) userResponse {
	return userResponse{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Avatar:       user.Avatar,
		IsSubscribed: isSubscribed(db, current, user.ID),
	}
}

func buildRecipeShortResponse(recipe *models.Recipe) recipeShortResponse {
	return recipeShortResponse{
		ID:          recipe.ID,
		Name:        recipe.Name,
		Image:       recipe.Image,
		CookingTime: recipe.CookingTime,
	}
}

func buildRecipeResponse(db *gorm.DB, recipe *models.Recipe, current *models.User) recipeResponse {
	ingredients := make([]recipeIngredientResponse, 0, len(recipe.Ingredients))
	for _, ri := range recipe.Ingredients {
		ingredients = append(ingredients, recipeIngredientResponse{
			ID:              ri.Ingredient.ID,
			Name:            ri.Ingredient.Name,
			MeasurementUnit: ri.Ingredient.MeasurementUnit,
			Amount:          ri.Amount,
		})
	}

	resp := recipeResponse{
		ID:          recipe.ID,
		Author:      buildUserResponse(db, &recipe.Author, current),
		Ingredients: ingredients,
		Name:        recipe.Name,
		Image:       recipe.Image,
		Text:        recipe.Text,
		CookingTime: recipe.CookingTime,
	}
	if current != nil {
		var count int64
		db.Model(&models.Favorite{}).
			Where("user_id = ? AND recipe_id = ?", current.ID, recipe.ID).
			Count(&count)
		resp.IsFavorited = count > 0
		db.Model(&models.ShoppingCartItem{}).
			Where("user_id = ? AND recipe_id = ?", current.ID, recipe.ID).
			Count(&count)
		resp.IsInShoppingCart = count > 0
	}
	return resp
}

func buildSubscriptionResponse(db *gorm.DB, author *models.User, recipesLimit int) subscriptionResponse {
	resp := subscriptionResponse{
		userResponse: userResponse{
			ID:           author.ID,
			Email:        author.Email,
			Username:     author.Username,
			FirstName:    author.FirstName,
			LastName:     author.LastName,
			Avatar:       author.Avatar,
			IsSubscribed: true,
		},
		Recipes: []recipeShortResponse{},
	}
	db.Model(&models.Recipe{}).Where("author_id = ?", author.ID).Count(&resp.RecipesCount)

	var recipes []models.Recipe
	db.Where("author_id = ?", author.ID).
		Order("pub_date DESC, id DESC").
		Limit(recipesLimit).
		Find(&recipes)
	for i := range recipes {
		resp.Recipes = append(resp.Recipes, buildRecipeShortResponse(&recipes[i]))
	}
	return resp
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

type pageParams struct {
	Page   int
	Limit  int
	Offset int
}

func getPageParams(c *gin.Context, defaultSize int) pageParams {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultSize
	}
	return pageParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// absoluteURL baut eine absolute URL im Stil von request.build_absolute_uri.
func absoluteURL(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, path)
}

// pageURL erzeugt die next/previous-URL der Pagination, oder nil.
func pageURL(c *gin.Context, page int) *string {
	if page < 1 {
		return nil
	}
	u := *c.Request.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	link := absoluteURL(c, u.String())
	return &link
}

// paginatedBody rendert die Listen-Hülle {count, next, previous, results}.
func paginatedBody(c *gin.Context, params pageParams, count int64, results any) gin.H {
	var next, previous *string
	if int64(params.Page*params.Limit) < count {
		next = pageURL(c, params.Page+1)
	}
	if params.Page > 1 {
		previous = pageURL(c, params.Page-1)
	}
	return gin.H{
		"count":    count,
		"next":     next,
		"previous": previous,
		"results":  results,
	}
}

// ---------------------------------------------------------------------------
// Auth-Routen
// ---------------------------------------------------------------------------

func setupAuthRoutes(router *gin.RouterGroup, accounts *services.AccountService, log *zap.Logger) {
	rg := router.Group("/auth/token")

	rg.POST("/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "'email' and 'password' fields are required."})
			return
		}
		token, err := accounts.Login(req.Email, req.Password)
		if err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "Unable to log in with provided credentials."})
				return
			}
			log.Error("Login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.JSON(http.StatusOK, gin.H{"auth_token": token.Key})
	})

	rg.POST("/logout", func(c *gin.Context) {
		if requireUser(c) == nil {
			return
		}
		key := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Token "))
		if err := accounts.RevokeToken(key); err != nil {
			log.Error("Logout failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// ---------------------------------------------------------------------------
// User-Routen
// ---------------------------------------------------------------------------

func setupUserRoutes(router *gin.RouterGroup, db *gorm.DB, cfg *config.Config, accounts *services.AccountService, media *services.MediaStore, log *zap.Logger) {
	rg := router.Group("/users")

	// GET - Benutzerliste (öffentlich, paginiert)
	rg.GET("/", func(c *gin.Context) {
		params := getPageParams(c, cfg.PageSize)
		var count int64
		if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
			log.Error("Database query for users failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		var users []models.User
		if err := db.Order("username").Offset(params.Offset).Limit(params.Limit).Find(&users).Error; err != nil {
			log.Error("Database query for users failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		current := currentUser(c)
		results := make([]userResponse, 0, len(users))
		for i := range users {
			results = append(results, buildUserResponse(db, &users[i], current))
		}
		c.JSON(http.StatusOK, paginatedBody(c, params, count, results))
	})

	// POST - Registrierung
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			Email     string `json:"email"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Password  string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
			return
		}
		if detail := validateRegistration(req.Email, req.Username, req.FirstName, req.LastName, req.Password); detail != "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
			return
		}

		var count int64
		db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count)
		if count > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "A user with this email already exists."})
			return
		}
		db.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
		if count > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "A user with this username already exists."})
			return
		}

		user, err := accounts.Register(req.Email, req.Username, req.FirstName, req.LastName, req.Password)
		if err != nil {
			log.Error("Registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		usersRegisteredCounter.Inc()
		c.JSON(http.StatusCreated, gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"username":   user.Username,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
		})
	})

	// GET - Profil nach ID; "me" und "subscriptions" laufen über dieselbe
	// Route, weil statische Segmente neben :id im Router nicht erlaubt sind.
	rg.GET("/:id", func(c *gin.Context) {
		switch c.Param("id") {
		case "me":
			user := requireUser(c)
			if user == nil {
				return
			}
			c.JSON(http.StatusOK, buildUserResponse(db, user, user))
		case "subscriptions":
			handleSubscriptionList(c, db, cfg)
		default:
			id := c.Param("id")
			var user models.User
			if err := db.First(&user, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
					return
				}
				log.Error("Database query for user failed", zap.String("id", id), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
				return
			}
			c.JSON(http.StatusOK, buildUserResponse(db, &user, currentUser(c)))
		}
	})

	// POST - set_password und subscribe teilen sich das :id-Segment
	rg.POST("/:id", func(c *gin.Context) {
		if c.Param("id") != "set_password" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
			return
		}
		user := requireUser(c)
		if user == nil {
			return
		}
		var req struct {
			NewPassword     string `json:"new_password" binding:"required"`
			CurrentPassword string `json:"current_password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "'new_password' and 'current_password' fields are required."})
			return
		}
		if err := accounts.SetPassword(user, req.CurrentPassword, req.NewPassword); err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "Current password is incorrect."})
				return
			}
			log.Error("Password change failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.Status(http.StatusNoContent)
	})

	rg.POST("/:id/subscribe", func(c *gin.Context) {
		handleSubscribe(c, db, cfg, log, true)
	})
	rg.DELETE("/:id/subscribe", func(c *gin.Context) {
		handleSubscribe(c, db, cfg, log, false)
	})

	// PUT/DELETE - Avatar des eigenen Profils (Pfad: /users/me/avatar)
	rg.PUT("/:id/avatar", func(c *gin.Context) {
		if c.Param("id") != "me" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
			return
		}
		user := requireUser(c)
		if user == nil {
			return
		}
		var req struct {
			Avatar string `json:"avatar" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "'avatar' field is required."})
			return
		}
		url, err := media.SaveDataURI(req.Avatar, "avatars")
		if err != nil {
			if errors.Is(err, services.ErrInvalidImage) {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid base64 image."})
				return
			}
			log.Error("Avatar upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store avatar."})
			return
		}
		previous := user.Avatar
		if err := db.Model(user).Update("avatar", url).Error; err != nil {
			log.Error("Avatar update failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		// Die alte Datei erst entfernen, wenn die neue URL gespeichert ist.
		if previous != "" {
			media.Remove(previous)
		}
		c.JSON(http.StatusOK, gin.H{"avatar": url})
	})
	rg.DELETE("/:id/avatar", func(c *gin.Context) {
		if c.Param("id") != "me" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
			return
		}
		user := requireUser(c)
		if user == nil {
			return
		}
		if user.Avatar != "" {
			media.Remove(user.Avatar)
			if err := db.Model(user).Update("avatar", "").Error; err != nil {
				log.Error("Avatar removal failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
				return
			}
		}
		c.Status(http.StatusNoContent)
	})
}

// validateRegistration prüft die Pflichtfelder der Registrierung und gibt
// bei Fehlern eine Detail-Meldung zurück. Längen zählen Zeichen, nicht Bytes.
func validateRegistration(email, username, firstName, lastName, password string) string {
	if email == "" || utf8.RuneCountInString(email) > models.UserEmailMaxLength || !strings.Contains(email, "@") {
		return "A valid email address is required."
	}
	if err := services.ValidateUsername(username); err != nil {
		return err.Error()
	}
	if firstName == "" || utf8.RuneCountInString(firstName) > models.UserFirstNameMaxLength {
		return "'first_name' is required and must not exceed 150 characters."
	}
	if lastName == "" || utf8.RuneCountInString(lastName) > models.UserLastNameMaxLength {
		return "'last_name' is required and must not exceed 150 characters."
	}
	if password == "" {
		return "'password' is required."
	}
	return ""
}

func handleSubscriptionList(c *gin.Context, db *gorm.DB, cfg *config.Config) {
	user := requireUser(c)
	if user == nil {
		return
	}
	params := getPageParams(c, cfg.PageSize)
	recipesLimit := cfg.SubscriptionsRecipes
	if v, err := strconv.Atoi(c.Query("recipes_limit")); err == nil && v >= 0 {
		recipesLimit = v
	}

	authorQuery := func() *gorm.DB {
		return db.Model(&models.User{}).
			Joins("JOIN subscriptions ON subscriptions.author_id = users.id").
			Where("subscriptions.user_id = ?", user.ID)
	}

	var count int64
	authorQuery().Count(&count)

	var authors []models.User
	authorQuery().Order("subscriptions.created_date DESC").
		Offset(params.Offset).Limit(params.Limit).
		Find(&authors)

	results := make([]subscriptionResponse, 0, len(authors))
	for i := range authors {
		results = append(results, buildSubscriptionResponse(db, &authors[i], recipesLimit))
	}
	c.JSON(http.StatusOK, paginatedBody(c, params, count, results))
}

func handleSubscribe(c *gin.Context, db *gorm.DB, cfg *config.Config, log *zap.Logger, subscribe bool) {
	user := requireUser(c)
	if user == nil {
		return
	}
	var author models.User
	if err := db.First(&author, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
			return
		}
		log.Error("Database query for author failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
		return
	}
	if user.ID == author.ID {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "You cannot subscribe to yourself."})
		return
	}

	var count int64
	db.Model(&models.Subscription{}).
		Where("user_id = ? AND author_id = ?", user.ID, author.ID).
		Count(&count)

	if subscribe {
		if count > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "You are already subscribed to this user."})
			return
		}
		sub := models.Subscription{UserID: user.ID, AuthorID: author.ID}
		if err := db.Create(&sub).Error; err != nil {
			log.Error("Subscription create failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		recipesLimit := cfg.SubscriptionsRecipes
		if v, err := strconv.Atoi(c.Query("recipes_limit")); err == nil && v >= 0 {
			recipesLimit = v
		}
		c.JSON(http.StatusCreated, buildSubscriptionResponse(db, &author, recipesLimit))
		return
	}

	if count == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "You were not subscribed to this user."})
		return
	}
	if err := db.Where("user_id = ? AND author_id = ?", user.ID, author.ID).
		Delete(&models.Subscription{}).Error; err != nil {
		log.Error("Subscription delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Ingredient-Routen
// ---------------------------------------------------------------------------

func setupIngredientRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/ingredients")

	// GET - Zutatenliste, unpaginiert, optional mit Präfix-Suche über ?name=
	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Ingredient{}).Order("name")
		if name := c.Query("name"); name != "" {
			query = query.Where("LOWER(name) LIKE LOWER(?)", name+"%")
		}
		var ingredients []models.Ingredient
		if err := query.Find(&ingredients).Error; err != nil {
			log.Error("Database query for ingredients failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.JSON(http.StatusOK, ingredients)
	})

	rg.GET("/:id", func(c *gin.Context) {
		var ingredient models.Ingredient
		if err := db.First(&ingredient, "id = ?", c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
				return
			}
			log.Error("Database query for ingredient failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.JSON(http.StatusOK, ingredient)
	})
}

// ---------------------------------------------------------------------------
// Recipe-Routen
// ---------------------------------------------------------------------------

// recipeWriteRequest ist die Schreib-Payload für POST/PATCH /recipes.
type recipeWriteRequest struct {
	Ingredients []struct {
		ID     uint `json:"id"`
		Amount int  `json:"amount"`
	} `json:"ingredients"`
	Image       string `json:"image"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	CookingTime int    `json:"cooking_time"`
}

// validate prüft die Schreib-Payload; partial erlaubt fehlendes Bild (PATCH).
func (r *recipeWriteRequest) validate(partial bool) string {
	if r.Name == "" || utf8.RuneCountInString(r.Name) > models.RecipeNameMaxLength {
		return "'name' is required and must not exceed 200 characters."
	}
	if r.Text == "" {
		return "'text' is required."
	}
	if r.CookingTime < models.MinCookingTime {
		return "Cooking time must be at least 1 minute."
	}
	if !partial && r.Image == "" {
		return "'image' is required."
	}
	if len(r.Ingredients) == 0 {
		return "At least one ingredient is required."
	}
	seen := make(map[uint]bool, len(r.Ingredients))
	for _, item := range r.Ingredients {
		if item.Amount < models.MinIngredientAmount {
			return "Ingredient amount must be at least 1."
		}
		if seen[item.ID] {
			return "Ingredients must not repeat."
		}
		seen[item.ID] = true
	}
	return ""
}

func setupRecipeRoutes(router *gin.RouterGroup, db *gorm.DB, cfg *config.Config, media *services.MediaStore, log *zap.Logger) {
	rg := router.Group("/recipes")

	recipeQuery := func(c *gin.Context) *gorm.DB {
		query := db.Model(&models.Recipe{})
		current := currentUser(c)

		if author := c.Query("author"); author != "" {
			query = query.Where("recipes.author_id = ?", author)
		}
		if name := c.Query("name"); name != "" {
			query = query.Where("LOWER(recipes.name) LIKE LOWER(?)", name+"%")
		}
		// Die Statusfilter wirken nur für angemeldete Benutzer, wie im
		// Original: anonym liefern sie die ungefilterte Liste.
		if current != nil {
			if truthyParam(c.Query("is_favorited")) {
				query = query.Joins("JOIN favorites ON favorites.recipe_id = recipes.id").
					Where("favorites.user_id = ?", current.ID)
			}
			if truthyParam(c.Query("is_in_shopping_cart")) {
				query = query.Joins("JOIN shopping_cart_items ON shopping_cart_items.recipe_id = recipes.id").
					Where("shopping_cart_items.user_id = ?", current.ID)
			}
		}
		return query
	}

	// GET - Rezeptliste mit Filtern und Pagination
	rg.GET("/", func(c *gin.Context) {
		params := getPageParams(c, cfg.PageSize)

		var count int64
		if err := recipeQuery(c).Count(&count).Error; err != nil {
			log.Error("Database query for recipes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}

		var recipes []models.Recipe
		if err := recipeQuery(c).
			Preload("Author").
			Preload("Ingredients.Ingredient").
			Order("recipes.pub_date DESC, recipes.id DESC").
			Offset(params.Offset).Limit(params.Limit).
			Find(&recipes).Error; err != nil {
			log.Error("Database query for recipes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}

		current := currentUser(c)
		results := make([]recipeResponse, 0, len(recipes))
		for i := range recipes {
			results = append(results, buildRecipeResponse(db, &recipes[i], current))
		}
		c.JSON(http.StatusOK, paginatedBody(c, params, count, results))
	})

	// POST - Rezept anlegen
	rg.POST("/", func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		var req recipeWriteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
			return
		}
		if detail := req.validate(false); detail != "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
			return
		}
		if !ingredientsExist(db, &req) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Unknown ingredient id."})
			return
		}

		imageURL, err := media.SaveDataURI(req.Image, "recipes")
		if err != nil {
			if errors.Is(err, services.ErrInvalidImage) {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid base64 image."})
				return
			}
			log.Error("Recipe image upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store image."})
			return
		}

		recipe := models.Recipe{
			AuthorID:    user.ID,
			Name:        req.Name,
			Image:       imageURL,
			Text:        req.Text,
			CookingTime: req.CookingTime,
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&recipe).Error; err != nil {
				return err
			}
			return createRecipeIngredients(tx, recipe.ID, &req)
		})
		if err != nil {
			log.Error("Recipe create failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		recipesCreatedCounter.Inc()
		log.Info("Recipe created", zap.Uint("recipe_id", recipe.ID), zap.Uint("author_id", user.ID))

		c.JSON(http.StatusCreated, loadRecipeResponse(db, recipe.ID, user))
	})

	// GET - Rezept nach ID; download_shopping_cart teilt sich das :id-Segment
	rg.GET("/:id", func(c *gin.Context) {
		if c.Param("id") == "download_shopping_cart" {
			handleDownloadShoppingCart(c, db, log)
			return
		}
		recipe, ok := fetchRecipe(c, db, log)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, buildRecipeResponse(db, recipe, currentUser(c)))
	})

	// PATCH - Rezept aktualisieren (nur Autor)
	rg.PATCH("/:id", func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		recipe, ok := fetchRecipe(c, db, log)
		if !ok {
			return
		}
		if recipe.AuthorID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
			return
		}
		var req recipeWriteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
			return
		}
		if detail := req.validate(true); detail != "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
			return
		}
		if !ingredientsExist(db, &req) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Unknown ingredient id."})
			return
		}

		updates := map[string]any{
			"name":         req.Name,
			"text":         req.Text,
			"cooking_time": req.CookingTime,
		}
		if req.Image != "" {
			imageURL, err := media.SaveDataURI(req.Image, "recipes")
			if err != nil {
				if errors.Is(err, services.ErrInvalidImage) {
					c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid base64 image."})
					return
				}
				log.Error("Recipe image upload failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store image."})
				return
			}
			media.Remove(recipe.Image)
			updates["image"] = imageURL
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(recipe).Updates(updates).Error; err != nil {
				return err
			}
			// Zutaten werden komplett ersetzt, nicht gemerged.
			if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&models.RecipeIngredient{}).Error; err != nil {
				return err
			}
			return createRecipeIngredients(tx, recipe.ID, &req)
		})
		if err != nil {
			log.Error("Recipe update failed", zap.Uint("recipe_id", recipe.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.JSON(http.StatusOK, loadRecipeResponse(db, recipe.ID, user))
	})

	// DELETE - Rezept löschen (nur Autor)
	rg.DELETE("/:id", func(c *gin.Context) {
		user := requireUser(c)
		if user == nil {
			return
		}
		recipe, ok := fetchRecipe(c, db, log)
		if !ok {
			return
		}
		if recipe.AuthorID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, related := range []any{
				&models.RecipeIngredient{}, &models.Favorite{}, &models.ShoppingCartItem{},
			} {
				if err := tx.Where("recipe_id = ?", recipe.ID).Delete(related).Error; err != nil {
					return err
				}
			}
			return tx.Delete(recipe).Error
		})
		if err != nil {
			log.Error("Recipe delete failed", zap.Uint("recipe_id", recipe.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		media.Remove(recipe.Image)
		c.Status(http.StatusNoContent)
	})

	// POST/DELETE - Favoriten und Einkaufskorb
	rg.POST("/:id/favorite", func(c *gin.Context) {
		handleUserRecipeRelation(c, db, log, favoriteRelation, true)
	})
	rg.DELETE("/:id/favorite", func(c *gin.Context) {
		handleUserRecipeRelation(c, db, log, favoriteRelation, false)
	})
	rg.POST("/:id/shopping_cart", func(c *gin.Context) {
		handleUserRecipeRelation(c, db, log, cartRelation, true)
	})
	rg.DELETE("/:id/shopping_cart", func(c *gin.Context) {
		handleUserRecipeRelation(c, db, log, cartRelation, false)
	})

	// GET - Kurzlink für ein Rezept
	rg.GET("/:id/get-link", func(c *gin.Context) {
		recipe, ok := fetchRecipe(c, db, log)
		if !ok {
			return
		}
		shortPath := fmt.Sprintf("/s/%s/", services.EncodeBase62(uint64(recipe.ID)))
		c.JSON(http.StatusOK, gin.H{"short-link": absoluteURL(c, shortPath)})
	})
}

// truthyParam interpretiert die üblichen Query-Schreibweisen für "wahr".
func truthyParam(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// fetchRecipe lädt das Rezept aus dem :id-Parameter samt Autor und Zutaten.
func fetchRecipe(c *gin.Context, db *gorm.DB, log *zap.Logger) (*models.Recipe, bool) {
	id := c.Param("id")
	var recipe models.Recipe
	err := db.Preload("Author").Preload("Ingredients.Ingredient").
		First(&recipe, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
			return nil, false
		}
		log.Error("Database query for recipe failed", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
		return nil, false
	}
	return &recipe, true
}

// ingredientsExist prüft, ob alle referenzierten Zutaten-IDs existieren.
func ingredientsExist(db *gorm.DB, req *recipeWriteRequest) bool {
	ids := make([]uint, 0, len(req.Ingredients))
	for _, item := range req.Ingredients {
		ids = append(ids, item.ID)
	}
	var count int64
	db.Model(&models.Ingredient{}).Where("id IN ?", ids).Count(&count)
	return count == int64(len(ids))
}

func createRecipeIngredients(tx *gorm.DB, recipeID uint, req *recipeWriteRequest) error {
	rows := make([]models.RecipeIngredient, 0, len(req.Ingredients))
	for _, item := range req.Ingredients {
		rows = append(rows, models.RecipeIngredient{
			RecipeID:     recipeID,
			IngredientID: item.ID,
			Amount:       item.Amount,
		})
	}
	return tx.Create(&rows).Error
}

// loadRecipeResponse lädt ein Rezept frisch aus der DB und serialisiert es.
func loadRecipeResponse(db *gorm.DB, recipeID uint, current *models.User) recipeResponse {
	var recipe models.Recipe
	db.Preload("Author").Preload("Ingredients.Ingredient").First(&recipe, recipeID)
	return buildRecipeResponse(db, &recipe, current)
}

// relationSpec beschreibt eine User-Recipe-Relation (Favoriten, Einkaufskorb).
type relationSpec struct {
	name   string
	count  func(db *gorm.DB, userID, recipeID uint) int64
	create func(db *gorm.DB, userID, recipeID uint) error
	remove func(db *gorm.DB, userID, recipeID uint) error
}

var favoriteRelation = relationSpec{
	name: "favorites",
	count: func(db *gorm.DB, userID, recipeID uint) int64 {
		var n int64
		db.Model(&models.Favorite{}).Where("user_id = ? AND recipe_id = ?", userID, recipeID).Count(&n)
		return n
	},
	create: func(db *gorm.DB, userID, recipeID uint) error {
		return db.Create(&models.Favorite{UserID: userID, RecipeID: recipeID}).Error
	},
	remove: func(db *gorm.DB, userID, recipeID uint) error {
		return db.Where("user_id = ? AND recipe_id = ?", userID, recipeID).Delete(&models.Favorite{}).Error
	},
}

var cartRelation = relationSpec{
	name: "shopping cart",
	count: func(db *gorm.DB, userID, recipeID uint) int64 {
		var n int64
		db.Model(&models.ShoppingCartItem{}).Where("user_id = ? AND recipe_id = ?", userID, recipeID).Count(&n)
		return n
	},
	create: func(db *gorm.DB, userID, recipeID uint) error {
		return db.Create(&models.ShoppingCartItem{UserID: userID, RecipeID: recipeID}).Error
	},
	remove: func(db *gorm.DB, userID, recipeID uint) error {
		return db.Where("user_id = ? AND recipe_id = ?", userID, recipeID).Delete(&models.ShoppingCartItem{}).Error
	},
}

func handleUserRecipeRelation(c *gin.Context, db *gorm.DB, log *zap.Logger, spec relationSpec, add bool) {
	user := requireUser(c)
	if user == nil {
		return
	}
	recipe, ok := fetchRecipe(c, db, log)
	if !ok {
		return
	}
	exists := spec.count(db, user.ID, recipe.ID) > 0

	if add {
		if exists {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Recipe is already in %s.", spec.name)})
			return
		}
		if err := spec.create(db, user.ID, recipe.ID); err != nil {
			log.Error("Relation create failed", zap.String("relation", spec.name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.JSON(http.StatusCreated, buildRecipeShortResponse(recipe))
		return
	}

	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Recipe is not in %s.", spec.name)})
		return
	}
	if err := spec.remove(db, user.ID, recipe.ID); err != nil {
		log.Error("Relation delete failed", zap.String("relation", spec.name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
		return
	}
	c.Status(http.StatusNoContent)
}

func handleDownloadShoppingCart(c *gin.Context, db *gorm.DB, log *zap.Logger) {
	user := requireUser(c)
	if user == nil {
		return
	}
	entries, err := services.AggregateShoppingList(db, user.ID)
	if err != nil {
		log.Error("Shopping list aggregation failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
		return
	}
	content := services.RenderShoppingList(entries)
	c.Header("Content-Disposition", `attachment; filename="shopping_list.txt"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(content))
}

// ---------------------------------------------------------------------------
// Kurzlink-Redirect
// ---------------------------------------------------------------------------

func setupShortLinkRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	handler := func(c *gin.Context) {
		id, err := services.DecodeBase62(c.Param("code"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
			return
		}
		var recipe models.Recipe
		if err := db.First(&recipe, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"detail": "Page not found."})
				return
			}
			log.Error("Database query for short link failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Database error."})
			return
		}
		c.Redirect(http.StatusFound, absoluteURL(c, fmt.Sprintf("/recipes/%d/", recipe.ID)))
	}
	router.GET("/s/:code", handler)
	router.GET("/s/:code/", handler)
}
