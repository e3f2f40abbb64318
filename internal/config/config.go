package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации движка хранения.

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Backup  BackupConfig  `yaml:"backup"`
}

type StorageConfig struct {
	DataPath         string `yaml:"data_path"`
	IOWorkers        int    `yaml:"io_workers"`
	OpTimeoutSeconds int    `yaml:"op_timeout_seconds"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type BackupConfig struct {
	Dir              string `yaml:"dir"`
	CompressionLevel int    `yaml:"compression_level"` // 1 = fastest, 3 = default, 4 = best
}

// GetDataPath возвращает путь к данным мира с поддержкой fallback значений
func (s *StorageConfig) GetDataPath() string {
	if s.DataPath != "" {
		return s.DataPath
	}
	if env := os.Getenv("VOXEL_DATA_PATH"); env != "" {
		return env
	}
	return "data/world"
}

// GetIOWorkers возвращает размер пула I/O воркеров
func (s *StorageConfig) GetIOWorkers() int {
	return getIntWithEnvFallback(s.IOWorkers, "VOXEL_IO_WORKERS", 4)
}

// GetOpTimeoutSeconds возвращает таймаут одной операции сохранения/загрузки.
// Зависший диск не должен вешать весь батч.
func (s *StorageConfig) GetOpTimeoutSeconds() int {
	return getIntWithEnvFallback(s.OpTimeoutSeconds, "VOXEL_OP_TIMEOUT", 30)
}

// GetMetricsPort возвращает порт Prometheus метрик с поддержкой fallback значений
func (m *MetricsConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(m.Port, "VOXEL_METRICS_PORT", 2112)
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	// Если значение задано в конфиге и больше 0, используем его
	if configVal > 0 {
		return configVal
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	// Используем дефолтное значение
	return defaultVal
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
