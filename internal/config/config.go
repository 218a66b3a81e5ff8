package config

import (
	"io/ioutil"

	"github.com/skalibog/paperbot/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance Binance `yaml:"binance"`
	Trading Trading `yaml:"trading"`
	Paper   Paper   `yaml:"paper"`
	Engine  Engine  `yaml:"engine"`
	Storage Storage `yaml:"storage"`
}

// Binance содержит настройки подключения к Binance
type Binance struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// Trading содержит настройки торговли
type Trading struct {
	Symbols     []string `yaml:"symbols"`
	Interval    string   `yaml:"interval"`
	History     int      `yaml:"history"`
	InitialCash float64  `yaml:"initial_cash"`
}

// Paper содержит настройки бумажного трейдинга и риск-менеджмента
type Paper struct {
	MinConfidence          float64 `yaml:"min_confidence"`
	MaxPositionNotional    float64 `yaml:"max_position_notional"`
	RiskPerTradePercent    float64 `yaml:"risk_per_trade_percent"`
	MaxDailyLoss           float64 `yaml:"max_daily_loss"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	StopLossPercent        float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent      float64 `yaml:"take_profit_percent"`
	MaxHoldMinutes         int     `yaml:"max_hold_minutes"`
	CooldownSeconds        int     `yaml:"cooldown_seconds"`
	MarginFractionShorts   float64 `yaml:"margin_fraction_shorts"`
	CashUtilization        float64 `yaml:"cash_utilization"`
	Timezone               string  `yaml:"timezone"`
}

// Engine содержит настройки основного цикла
type Engine struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Storage настройки хранения данных
type Storage struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		logger.Fatal("Ошибка чтения файла конфигурации", zap.Error(err))
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		logger.Fatal("Ошибка разбора файла конфигурации", zap.Error(err))
	}

	config.applyDefaults()

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", config))
	logger.Info("Загружена конфигурация", zap.Any("Symbols", config.Trading.Symbols))
	return &config, nil
}

// applyDefaults подставляет значения по умолчанию для пропущенных полей
func (c *Config) applyDefaults() {
	if c.Trading.Interval == "" {
		c.Trading.Interval = "1m"
	}
	if c.Trading.History == 0 {
		c.Trading.History = 250
	}
	if c.Trading.InitialCash == 0 {
		c.Trading.InitialCash = 50000
	}
	if c.Paper.MinConfidence == 0 {
		c.Paper.MinConfidence = 60
	}
	if c.Paper.MaxPositionNotional == 0 {
		c.Paper.MaxPositionNotional = 10000
	}
	if c.Paper.MaxDailyLoss == 0 {
		c.Paper.MaxDailyLoss = 1000
	}
	if c.Paper.MaxConcurrentPositions == 0 {
		c.Paper.MaxConcurrentPositions = 5
	}
	if c.Paper.StopLossPercent == 0 {
		c.Paper.StopLossPercent = 2.0
	}
	if c.Paper.TakeProfitPercent == 0 {
		c.Paper.TakeProfitPercent = 3.0
	}
	if c.Paper.MaxHoldMinutes == 0 {
		c.Paper.MaxHoldMinutes = 240
	}
	if c.Paper.CooldownSeconds == 0 {
		c.Paper.CooldownSeconds = 300
	}
	if c.Paper.MarginFractionShorts == 0 {
		c.Paper.MarginFractionShorts = 0.20
	}
	if c.Paper.CashUtilization == 0 {
		c.Paper.CashUtilization = 0.90
	}
	if c.Paper.Timezone == "" {
		c.Paper.Timezone = "UTC"
	}
	if c.Engine.IntervalSeconds == 0 {
		c.Engine.IntervalSeconds = 30
	}
}
