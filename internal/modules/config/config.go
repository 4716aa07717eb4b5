package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"scanner_bot/internal/models"
	"scanner_bot/internal/strategy"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Режим сканера: aggressive | balanced | conservative
	Mode string `yaml:"mode"`

	// Цикл сканирования
	TFLtf             string
	TFHtf             string
	TFValidation      string
	LookbackLtf       int
	LookbackHtf       int
	SleepSeconds      int
	SymbolConcurrency int
	OppositeMinBars   int

	// Пороговые значения активного режима (старт до автотюнинга)
	Preset ModePreset

	// Допуск лучшего кандидата ниже динамического порога
	FallbackEnable bool

	// Автотюнер
	TunerEnabled    bool
	TunerWRTarget   float64
	TunerMinSamples int
	TunerWindow     int
	TunerCooldown   time.Duration
}

// ModePreset — связка порогов одного режима.
type ModePreset struct {
	MinVolValueUSDT float64
	BaseMinScore    float64
	FallbackMin     float64
	TopNPerScan     int
	CooldownSec     int
	ADXTrendMin     float64
	DispBodyMin     float64
	BWidthRange     float64
	BreakBuffer     float64
	RetestTolATR    float64
	SMCRequireFVG   bool
	FBBATRMin       float64
	FBBATRMax       float64
	ATRStopMult     float64
}

// Presets — пороги режимов. /mode переключает между ними на лету.
var Presets = map[string]ModePreset{
	"aggressive": {
		MinVolValueUSDT: 700_000,
		BaseMinScore:    52,
		FallbackMin:     55,
		TopNPerScan:     5,
		CooldownSec:     900,
		ADXTrendMin:     14,
		DispBodyMin:     0.45,
		BWidthRange:     0.080,
		BreakBuffer:     0.0006,
		RetestTolATR:    0.50,
		SMCRequireFVG:   false,
		FBBATRMin:       0.0007,
		FBBATRMax:       0.030,
		ATRStopMult:     1.0,
	},
	"balanced": {
		MinVolValueUSDT: 2_000_000,
		BaseMinScore:    68,
		FallbackMin:     62,
		TopNPerScan:     2,
		CooldownSec:     1800,
		ADXTrendMin:     18,
		DispBodyMin:     0.55,
		BWidthRange:     0.055,
		BreakBuffer:     0.0008,
		RetestTolATR:    0.25,
		SMCRequireFVG:   true,
		FBBATRMin:       0.0010,
		FBBATRMax:       0.028,
		ATRStopMult:     1.2,
	},
	"conservative": {
		MinVolValueUSDT: 3_000_000,
		BaseMinScore:    72,
		FallbackMin:     65,
		TopNPerScan:     2,
		CooldownSec:     2400,
		ADXTrendMin:     20,
		DispBodyMin:     0.60,
		BWidthRange:     0.045,
		BreakBuffer:     0.0012,
		RetestTolATR:    0.20,
		SMCRequireFVG:   true,
		FBBATRMin:       0.0012,
		FBBATRMax:       0.020,
		ATRStopMult:     1.5,
	},
}

// Params — пороги стратегий для активного режима.
func (p ModePreset) Params() strategy.Params {
	sp := strategy.DefaultParams()
	sp.ATRStopMult = p.ATRStopMult
	sp.BreakBuffer = p.BreakBuffer
	sp.RetestTol = p.RetestTolATR
	sp.OneHDispBodyMin = p.DispBodyMin
	sp.SMCRequireFVG = p.SMCRequireFVG
	sp.FBBATRMin = p.FBBATRMin
	sp.FBBATRMax = p.FBBATRMax
	return sp
}

// TunerState — стартовое состояние порогов для активного режима.
// Значения пресета берутся как есть: границы Clamp применяются только
// к шагам автотюнера, пресет может стоять и вне их.
func (p ModePreset) TunerState() *models.TunerState {
	return &models.TunerState{
		BaseMinScore: p.BaseMinScore,
		DynMinScore:  p.BaseMinScore,
		ADXTrendMin:  p.ADXTrendMin,
		BWidthRange:  p.BWidthRange,
		VolMultReq:   1.40,
	}
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Mode: "balanced",

		TFLtf:             getenvDefault("TF_LTF", "15min"),
		TFHtf:             getenvDefault("TF_HTF", "1hour"),
		TFValidation:      getenvDefault("TF_VALIDATION", "5min"),
		LookbackLtf:       intFromEnv("LOOKBACK_LTF", 320),
		LookbackHtf:       intFromEnv("LOOKBACK_HTF", 180),
		SleepSeconds:      intFromEnv("SLEEP_SECONDS", 300),
		SymbolConcurrency: intFromEnv("SYMBOL_CONCURRENCY", 8),
		OppositeMinBars:   intFromEnv("OPPOSITE_MIN_BARS", 2),

		FallbackEnable: boolFromEnv("FALLBACK_ENABLE", true),

		TunerEnabled:    boolFromEnv("TUNER_ENABLED", true),
		TunerWRTarget:   floatFromEnv("TUNER_WR_TARGET", 0.52),
		TunerMinSamples: intFromEnv("TUNER_MIN_SAMPLES", 20),
		TunerWindow:     intFromEnv("TUNER_WINDOW", 80),
		TunerCooldown:   durationFromEnv("TUNER_COOLDOWN", "15m"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if mode := os.Getenv("SCANNER_MODE"); mode != "" {
		config.Mode = mode
	}

	preset, ok := Presets[config.Mode]
	if !ok {
		return nil, fmt.Errorf("unknown scanner mode %q", config.Mode)
	}
	config.Preset = preset

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
