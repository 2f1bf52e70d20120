package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/apex/log"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"eyecare-bot/config"
	telegram "eyecare-bot/internal/api"
	"eyecare-bot/internal/container"
	"eyecare-bot/internal/domain/port"
	"eyecare-bot/internal/infrastructure/advice"
	"eyecare-bot/internal/infrastructure/storage"
	"eyecare-bot/internal/infrastructure/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	// --- Хранилища ---
	var (
		db         *sql.DB
		userRepo   port.UserRepository
		reportRepo port.ReportRepository
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("sql.Open: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Fatalf("db.Ping: %v", err)
		}

		users := storage.NewPostgresUserRepository(db)
		reports := storage.NewPostgresReportRepository(db)
		if err := users.Migrate(ctx); err != nil {
			log.Fatalf("migrate users: %v", err)
		}
		if err := reports.Migrate(ctx); err != nil {
			log.Fatalf("migrate reports: %v", err)
		}
		userRepo, reportRepo = users, reports
		log.Info("postgres connected")
	} else {
		// Без БД отчёты и состояния живут до перезапуска процесса.
		userRepo = storage.NewMemoryUserRepository()
		reportRepo = storage.NewMemoryReportRepository()
		log.Warn("DATABASE_URL is empty, using in-memory storage")
	}

	blobs, err := storage.NewDiskBlobStore(cfg.MediaDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Модели ---
	// Сети загружаются на старте: битый файл модели валит процесс сразу,
	// а не на первом фото пользователя.
	localizer, err := vision.NewDNNLocalizer(cfg.EyeModelPath, cfg.DetectorInput, cfg.Thresholds.MinConfidence)
	if err != nil {
		log.Fatalf("eye detector: %v", err)
	}
	classifier, err := vision.NewDNNClassifier(
		cfg.ClsModelPath, cfg.ClsHeadPath, cfg.Thresholds,
		cfg.ClassifierInput, cfg.FeatureLayerName, cfg.OutputLayerName,
	)
	if err != nil {
		log.Fatalf("eye classifier: %v", err)
	}
	processor := vision.NewProcessor()

	// --- Рекомендации ---
	advisor := advice.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	if !advisor.Enabled() {
		log.Warn("GEMINI_API_KEY is empty, advisor runs in canned mode")
	}

	// --- Сборка сервисов ---
	appContainer := container.New(userRepo, reportRepo, localizer, classifier, processor, blobs, advisor)

	bot, err := telegram.NewBot(cfg.TelegramToken, appContainer.UserService, appContainer.DiagnosisService, blobs)
	if err != nil {
		log.Fatalf("create bot: %v", err)
	}

	// --- HTTP: живость + раздача изображений ---
	router := telegram.NewRouter(db, blobs.Root())
	go func() {
		log.Infof("http listening on %s", cfg.HTTPAddr)
		if err := router.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.Info("bot is running...")
	if err := bot.Run(); err != nil {
		log.Fatalf("bot error: %v", err)
	}
}
