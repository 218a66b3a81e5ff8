package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Глобальный экземпляр логгера
var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init инициализирует глобальный логгер
func Init() {
	once.Do(func() {
		globalLogger = newLogger()
	})

	// Очистка JSON-лога при перезапуске
	if err := os.Truncate("paperbot.json.log", 0); err != nil && !os.IsNotExist(err) {
		panic(err)
	}
}

// GetLogger возвращает глобальный экземпляр логгера
func GetLogger() *zap.Logger {
	if globalLogger == nil {
		Init()
	}
	return globalLogger
}

// Вспомогательные функции для удобства использования
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// newLogger создает новый экземпляр логгера
func newLogger() *zap.Logger {
	// Конфигурация энкодера
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02.01.2006 - 15:04:05.000000000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// Создание энкодеров
	readableFileEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	jsonFileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	// Файлы
	readableFile, err := os.OpenFile("paperbot.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}
	jsonFile, err := os.OpenFile("paperbot.json.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}

	// Writers
	readableFileWriter := zapcore.AddSync(readableFile)
	jsonFileWriter := zapcore.AddSync(jsonFile)

	// Уровень логирования
	level := zapcore.DebugLevel

	// Tee: читаемый файл + JSON файл
	core := zapcore.NewTee(
		zapcore.NewCore(readableFileEncoder, readableFileWriter, level),
		zapcore.NewCore(jsonFileEncoder, jsonFileWriter, level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}
