package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"eyecare-bot/internal/domain/entity"
)

// Config конфигурация бота из переменных окружения.
type Config struct {
	TelegramToken string

	DatabaseURL string

	MediaDir      string
	PublicBaseURL string
	HTTPAddr      string

	EyeModelPath     string
	ClsModelPath     string
	ClsHeadPath      string
	DetectorInput    int
	ClassifierInput  int
	FeatureLayerName string
	OutputLayerName  string

	Thresholds entity.Thresholds

	GeminiAPIKey string
	GeminiModel  string
}

// Load читает конфигурацию. Файл .env подхватывается, если есть.
func Load() (*Config, error) {
	// Игнорируем ошибку если файла нет
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		MediaDir:      envString("MEDIA_DIR", "./media"),
		PublicBaseURL: envString("PUBLIC_BASE_URL", "http://localhost:8080/media"),
		HTTPAddr:      envString("HTTP_ADDR", ":8080"),

		EyeModelPath:     envString("MODEL_EYE_PATH", "./models/eye_detect.onnx"),
		ClsModelPath:     envString("MODEL_CLS_PATH", "./models/eye_cls.onnx"),
		ClsHeadPath:      envString("MODEL_CLS_HEAD_PATH", "./models/eye_cls_head.json"),
		DetectorInput:    envInt("AI_DETECTOR_INPUT", 640),
		ClassifierInput:  envInt("AI_INPUT_SIZE", 224),
		FeatureLayerName: envString("AI_FEATURE_LAYER", "features"),
		OutputLayerName:  envString("AI_OUTPUT_LAYER", "logits"),

		Thresholds: entity.Thresholds{
			MinConfidence: envFloat("AI_CONF_THRESHOLD", 0.25),
			Low:           envFloat("AI_THRESH_LOW", 0.4),
			High:          envFloat("AI_THRESH_HIGH", 0.75),
		},

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envString("GEMINI_MODEL", "gemini-1.5-flash"),
	}

	// Платформенный PORT имеет приоритет над HTTP_ADDR
	if p := os.Getenv("PORT"); p != "" {
		cfg.HTTPAddr = ":" + p
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
