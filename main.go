package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	loginRateLimitRequests     = 10
	loginRateLimitWindow       = 5 * time.Minute
	rateLimiterCleanupInterval = time.Minute
	operatorCookieName         = "pkh_operator_session"
	operatorSessionDuration    = 8 * time.Hour
	defaultPerPage             = 15
	maxPerPage                 = 100
	noKKLength                 = 16
	nikLength                  = 16
	devCORSOriginLocalhost     = "http://localhost:5173"
	devCORSOriginLoopback      = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4   = "127.0.0.1"
	trustedProxyLoopbackIPv6   = "::1"
)

var (
	statusEkonomiValues = []string{"sangat_miskin", "miskin", "rentan_miskin", "kurang_mampu", "mampu"}
	statusBantuanValues = []string{"sudah_terima", "belum_terima"}
	jenisKelaminValues  = []string{"L", "P"}
	operatorRoles       = []string{"admin", "petugas"}
	bulanNames          = []string{
		"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	}
)

// statusPresentation is the single enum-to-presentation table shared by map
// payloads, reports and exports.
type statusPresentation struct {
	Label       string `json:"label"`
	MarkerColor string `json:"marker_color"`
	BadgeColor  string `json:"badge_color"`
}

var statusEkonomiPresentation = map[string]statusPresentation{
	"sangat_miskin": {Label: "Sangat Miskin", MarkerColor: "#dc2626", BadgeColor: "red"},
	"miskin":        {Label: "Miskin", MarkerColor: "#ea580c", BadgeColor: "orange"},
	"rentan_miskin": {Label: "Rentan Miskin", MarkerColor: "#eab308", BadgeColor: "yellow"},
	"kurang_mampu":  {Label: "Kurang Mampu", MarkerColor: "#2563eb", BadgeColor: "blue"},
	"mampu":         {Label: "Mampu", MarkerColor: "#16a34a", BadgeColor: "green"},
}

type Config struct {
	Addr                      string
	Env                       string
	DatabaseURL               string
	DataRoot                  string
	PublicBaseURL             string
	AppSigningSecret          string
	ExportEmailTo             string
	BootstrapOperatorEmail    string
	BootstrapOperatorPassword string
	ResendAPIKey              string
	MailerFromAddress         string
	GeocoderUserAgent         string
	GeocoderFallbackURL       string
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	geocoder Geocoder
	mailer   *Mailer

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	// test hooks, initialized to the store implementations in main
	authenticateOperator func(ctx context.Context, email, password string) (string, error)
	listKeluarga         func(ctx context.Context, filters FilterState, page, perPage int) (*PaginatedKeluarga, error)
	getKeluargaByID      func(ctx context.Context, id int) (*Keluarga, error)
	createKeluarga       func(ctx context.Context, input KeluargaInput) (*Keluarga, error)
	updateKeluarga       func(ctx context.Context, id int, input KeluargaInput) (*Keluarga, error)
	deleteKeluarga       func(ctx context.Context, id int) error
	keluargaStatistics   func(ctx context.Context, filters FilterState) (*KeluargaStatistics, error)
}

type rateBucket struct {
	start time.Time
	count int
}

// Keluarga is a PKH beneficiary household.
type Keluarga struct {
	ID              int      `json:"id"`
	NoKK            string   `json:"no_kk"`
	NamaKepala      string   `json:"nama_kepala"`
	Alamat          string   `json:"alamat"`
	RT              string   `json:"rt"`
	RW              string   `json:"rw"`
	Kelurahan       string   `json:"kelurahan"`
	Kecamatan       string   `json:"kecamatan"`
	Kota            string   `json:"kota"`
	Provinsi        string   `json:"provinsi"`
	KodePos         string   `json:"kode_pos"`
	StatusEkonomi   string   `json:"status_ekonomi"`
	PenghasilanRata float64  `json:"penghasilan_rata"`
	JumlahAnggota   int      `json:"jumlah_anggota"`
	Keterangan      *string  `json:"keterangan"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Lokasi          *string  `json:"lokasi"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// Posisi returns the household's resolved coordinate regardless of which
// storage shape the row used.
func (k Keluarga) Posisi() Koordinat {
	return ResolveKoordinatPair(k.Latitude, k.Longitude, k.Lokasi)
}

// KeluargaInput is the flat field set accepted by create and update.
// Coordinates arrive as strings because the client sends them either as
// numbers or numeric strings; the resolver parses them.
type KeluargaInput struct {
	NoKK            string  `json:"no_kk"`
	NamaKepala      string  `json:"nama_kepala"`
	Alamat          string  `json:"alamat"`
	RT              string  `json:"rt"`
	RW              string  `json:"rw"`
	Kelurahan       string  `json:"kelurahan"`
	Kecamatan       string  `json:"kecamatan"`
	Kota            string  `json:"kota"`
	Provinsi        string  `json:"provinsi"`
	KodePos         string  `json:"kode_pos"`
	StatusEkonomi   string  `json:"status_ekonomi"`
	PenghasilanRata float64 `json:"penghasilan_rata"`
	JumlahAnggota   int     `json:"jumlah_anggota"`
	Keterangan      *string `json:"keterangan"`
	Latitude        *string `json:"latitude"`
	Longitude       *string `json:"longitude"`
	Lokasi          *string `json:"lokasi"`
}

// AnggotaKeluarga is a household member, referenced for display.
type AnggotaKeluarga struct {
	ID             int    `json:"id"`
	KeluargaID     int    `json:"keluarga_id"`
	NIK            string `json:"nik"`
	Nama           string `json:"nama"`
	JenisKelamin   string `json:"jenis_kelamin"`
	TempatLahir    string `json:"tempat_lahir"`
	TanggalLahir   string `json:"tanggal_lahir"`
	StatusHubungan string `json:"status_hubungan"`
	StatusKawin    string `json:"status_kawin"`
	Pendidikan     string `json:"pendidikan"`
	Pekerjaan      string `json:"pekerjaan"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// PenyaluranBantuan is one aid-distribution fact for a household.
type PenyaluranBantuan struct {
	ID             int     `json:"id"`
	KeluargaID     int     `json:"keluarga_id"`
	TahunBantuan   int     `json:"tahun_bantuan"`
	BulanBantuan   int     `json:"bulan_bantuan"`
	NominalBantuan float64 `json:"nominal_bantuan"`
	StatusBantuan  string  `json:"status_bantuan"`
	TanggalSalur   *string `json:"tanggal_salur"`
	CreatedAt      string  `json:"created_at"`
}

type OperatorSession struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// apiError carries the HTTP status along with a machine code. Fields is
// non-nil only for validation failures and holds per-field messages, matching
// the 422 shape the client renders inline.
type apiError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string][]string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		panic(err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	geocoder := Geocoder(&NominatimGeocoder{UserAgent: cfg.GeocoderUserAgent, Client: httpClient})
	if cfg.GeocoderFallbackURL != "" {
		geocoder = &FallbackGeocoder{
			Primary:   geocoder,
			Secondary: &NominatimGeocoder{BaseURL: cfg.GeocoderFallbackURL, UserAgent: cfg.GeocoderUserAgent, Client: httpClient},
		}
	}

	var mailProvider MailProvider
	if cfg.ResendAPIKey != "" {
		mailProvider = NewResendProvider(cfg.ResendAPIKey)
		logger.Info("mailer initialized", "provider", "resend")
	} else {
		mailProvider = NewLogProvider(logger)
		logger.Info("mailer initialized", "provider", "log")
	}
	mailClient := NewMailer(mailProvider, cfg.MailerFromAddress)

	app := &App{
		cfg:         cfg,
		db:          db,
		log:         logger,
		geocoder:    geocoder,
		mailer:      mailClient,
		rateBuckets: make(map[string]rateBucket),
	}
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	app.startRateLimiterCleanup(cleanupCtx, rateLimiterCleanupInterval)

	app.authenticateOperator = app.storeAuthenticateOperator
	app.listKeluarga = app.storeListKeluargaPaginated
	app.getKeluargaByID = app.storeGetKeluargaByID
	app.createKeluarga = app.storeCreateKeluarga
	app.updateKeluarga = app.storeUpdateKeluarga
	app.deleteKeluarga = app.storeDeleteKeluarga
	app.keluargaStatistics = app.storeKeluargaStatistics

	logger.Info("runtime configuration", "env", cfg.Env, "addr", cfg.Addr)

	if err := app.runMigrations(ctx); err != nil {
		panic(err)
	}
	if err := app.bootstrapOperator(ctx); err != nil {
		panic(err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataRoot, "exports"), 0o755); err != nil {
		panic(err)
	}

	router := app.buildRouter()

	app.log.Info("starting gin API", "addr", cfg.Addr)
	if err := router.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

func (a *App) buildRouter() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.corsMiddleware())
	r.Use(metricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metricsHandler())

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", a.operatorLoginHandler)
			auth.POST("/logout", a.operatorLogoutHandler)
			auth.GET("/session", a.operatorSessionHandler)
		}

		api.GET("/wilayah/provinsi", a.wilayahProvinsiHandler)
		api.GET("/wilayah/kota", a.wilayahKotaHandler)

		protected := api.Group("")
		protected.Use(a.requireOperatorSession())
		{
			protected.GET("/keluarga", a.keluargaListHandler)
			protected.GET("/keluarga/:id", a.keluargaDetailHandler)
			protected.POST("/keluarga", a.keluargaCreateHandler)
			protected.PUT("/keluarga/:id", a.keluargaUpdateHandler)
			protected.PUT("/keluarga/:id/koordinat", a.keluargaKoordinatHandler)
			protected.DELETE("/keluarga/:id", a.keluargaDeleteHandler)

			protected.GET("/keluarga/:id/anggota", a.anggotaListHandler)
			protected.POST("/keluarga/:id/anggota", a.anggotaCreateHandler)
			protected.PUT("/anggota/:id", a.anggotaUpdateHandler)
			protected.DELETE("/anggota/:id", a.anggotaDeleteHandler)

			protected.GET("/keluarga/:id/penyaluran", a.penyaluranListHandler)
			protected.POST("/keluarga/:id/penyaluran", a.penyaluranCreateHandler)
			protected.PUT("/penyaluran/:id", a.penyaluranUpdateHandler)

			protected.GET("/peta/keluarga", a.petaKeluargaHandler)
			protected.POST("/peta/keluarga", a.petaKeluargaCreateHandler)

			laporan := protected.Group("/laporan")
			{
				laporan.GET("/status-ekonomi", a.laporanStatusEkonomiHandler)
				laporan.GET("/wilayah", a.laporanWilayahHandler)
				laporan.GET("/koordinat", a.laporanKoordinatHandler)
				laporan.GET("/pkh", a.laporanPKHHandler)
				laporan.GET("/trend", a.laporanTrendHandler)
				laporan.GET("/efektivitas", a.laporanEfektivitasHandler)
			}

			protected.GET("/exports", a.exportListHandler)
			protected.POST("/exports/generate", a.requireRole("admin"), a.exportGenerateHandler)
			protected.GET("/exports/:id/download", a.exportDownloadHandler)
		}
	}

	return r
}

func loadConfig() (*Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	publicBase := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if publicBase == "" {
		publicBase = "http://localhost:8080"
	}
	publicBase = strings.TrimRight(publicBase, "/")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:                      valueOrDefault("GIN_ADDR", ":8080"),
		Env:                       env,
		DatabaseURL:               databaseURL,
		DataRoot:                  valueOrDefault("DATA_ROOT", "/var/lib/pkhadmin"),
		PublicBaseURL:             publicBase,
		AppSigningSecret:          secret,
		ExportEmailTo:             valueOrDefault("EXPORT_EMAIL_TO", "ops@pkhadmin.local"),
		BootstrapOperatorEmail:    strings.TrimSpace(os.Getenv("BOOTSTRAP_OPERATOR_EMAIL")),
		BootstrapOperatorPassword: strings.TrimSpace(os.Getenv("BOOTSTRAP_OPERATOR_PASSWORD")),
		ResendAPIKey:              strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddress:         valueOrDefault("MAILER_FROM_ADDRESS", "noreply@pkhadmin.local"),
		GeocoderUserAgent:         valueOrDefault("GEOCODER_USER_AGENT", "PKHAdmin-API/1.0"),
		GeocoderFallbackURL:       strings.TrimSpace(os.Getenv("GEOCODER_FALLBACK_URL")),
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.Join("migrations", file))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	if apiErr, ok := err.(*apiError); ok {
		body := gin.H{"error": apiErr.Code, "message": apiErr.Message}
		if apiErr.Fields != nil {
			body["errors"] = apiErr.Fields
		}
		c.JSON(apiErr.Status, body)
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}

func validationError(fields map[string][]string) *apiError {
	return &apiError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "validation_failed",
		Message: "The given data was invalid",
		Fields:  fields,
	}
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func bulanName(bulan int) string {
	if bulan < 1 || bulan > 12 {
		return strconv.Itoa(bulan)
	}
	return bulanNames[bulan-1]
}
