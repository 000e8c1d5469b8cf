package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/theblitlabs/fedsim/internal/core/models"
)

type Config struct {
	Simulation SimulationConfig `mapstructure:"SIMULATION"`
	Dataset    DatasetConfig    `mapstructure:"DATASET"`
	Server     ServerConfig     `mapstructure:"SERVER"`
	Database   DatabaseConfig   `mapstructure:"DATABASE"`
	AWS        AWSConfig        `mapstructure:"AWS"`
	Scheduler  SchedulerConfig  `mapstructure:"SCHEDULER"`
}

// SimulationConfig describes a single simulation run and the defaults used by sweeps.
type SimulationConfig struct {
	Algorithm    string  `mapstructure:"ALGORITHM"`
	Partitioning string  `mapstructure:"PARTITIONING"`
	Areas        int     `mapstructure:"AREAS"`
	Dataset      string  `mapstructure:"DATASET"`
	Clients      int     `mapstructure:"CLIENTS"`
	BatchSize    int     `mapstructure:"BATCH_SIZE"`
	LocalEpochs  int     `mapstructure:"LOCAL_EPOCHS"`
	GlobalRounds int     `mapstructure:"GLOBAL_ROUNDS"`
	Seed         int64   `mapstructure:"SEED"`
	LearningRate float64 `mapstructure:"LEARNING_RATE"`
	Mu           float64 `mapstructure:"MU"`
	Parallelism  int     `mapstructure:"PARALLELISM"`
	DataDir      string  `mapstructure:"DATA_DIR"`
}

type DatasetConfig struct {
	CacheDir          string `mapstructure:"CACHE_DIR"`
	MNISTMirror       string `mapstructure:"MNIST_MIRROR"`
	FashionMNISTMirror string `mapstructure:"FASHION_MNIST_MIRROR"`
	EMNISTMirror      string `mapstructure:"EMNIST_MIRROR"`
}

type ServerConfig struct {
	Host     string `mapstructure:"HOST"`
	Port     string `mapstructure:"PORT"`
	Endpoint string `mapstructure:"ENDPOINT"`
}

// DatabaseConfig selects the run store. An empty Driver disables persistence.
type DatabaseConfig struct {
	Driver       string `mapstructure:"DRIVER"`
	Path         string `mapstructure:"PATH"`
	Username     string `mapstructure:"USERNAME"`
	Password     string `mapstructure:"PASSWORD"`
	Host         string `mapstructure:"HOST"`
	Port         string `mapstructure:"PORT"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
}

type AWSConfig struct {
	Region          string `mapstructure:"REGION"`
	BucketName      string `mapstructure:"BUCKET_NAME"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY"`

	// Endpoint points at an S3-compatible store instead of AWS.
	Endpoint string `mapstructure:"ENDPOINT"`
}

type SchedulerConfig struct {
	Interval int `mapstructure:"INTERVAL"`
}

type ConfigManager struct {
	config     *Config
	configPath string
	mutex      sync.RWMutex
}

var (
	instance *ConfigManager
	once     sync.Once
)

func (dc *DatabaseConfig) GetConnectionURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dc.Username,
		dc.Password,
		dc.Host,
		dc.Port,
		dc.DatabaseName,
	)
}

// Params converts the configured run into simulation parameters.
func (sc SimulationConfig) Params() (models.SimulationParams, error) {
	algorithm, err := models.ParseAlgorithm(sc.Algorithm)
	if err != nil {
		return models.SimulationParams{}, err
	}
	partitioning, err := models.ParsePartitionStrategy(sc.Partitioning)
	if err != nil {
		return models.SimulationParams{}, err
	}

	return models.SimulationParams{
		Algorithm:    algorithm,
		Partitioning: partitioning,
		Areas:        sc.Areas,
		Dataset:      sc.Dataset,
		Clients:      sc.Clients,
		BatchSize:    sc.BatchSize,
		LocalEpochs:  sc.LocalEpochs,
		GlobalRounds: sc.GlobalRounds,
		Seed:         sc.Seed,
		LearningRate: sc.LearningRate,
		Mu:           sc.Mu,
		Parallelism:  sc.Parallelism,
	}, nil
}

// Enabled reports whether a run store is configured.
func (dc *DatabaseConfig) Enabled() bool {
	return dc.Driver != ""
}

// Enabled reports whether artifact upload is configured.
func (ac *AWSConfig) Enabled() bool {
	return ac.BucketName != ""
}

func GetConfigManager() *ConfigManager {
	once.Do(func() {
		instance = &ConfigManager{
			configPath: ".env",
		}
	})
	return instance
}

func (cm *ConfigManager) SetConfigPath(path string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.configPath = path
	cm.config = nil
}

func (cm *ConfigManager) GetConfig() (*Config, error) {
	cm.mutex.RLock()
	if cm.config != nil {
		defer cm.mutex.RUnlock()
		return cm.config, nil
	}
	cm.mutex.RUnlock()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	var err error
	cm.config, err = LoadConfig(cm.configPath)
	return cm.config, err
}

func (cm *ConfigManager) ReloadConfig() (*Config, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	var err error
	cm.config, err = LoadConfig(cm.configPath)
	return cm.config, err
}

func (cm *ConfigManager) GetConfigPath() string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.configPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SIMULATION_ALGORITHM", "fedavg")
	v.SetDefault("SIMULATION_PARTITIONING", "IID")
	v.SetDefault("SIMULATION_AREAS", 3)
	v.SetDefault("SIMULATION_DATASET", "MNIST")
	v.SetDefault("SIMULATION_CLIENTS", 50)
	v.SetDefault("SIMULATION_BATCH_SIZE", 32)
	v.SetDefault("SIMULATION_LOCAL_EPOCHS", 2)
	v.SetDefault("SIMULATION_GLOBAL_ROUNDS", 30)
	v.SetDefault("SIMULATION_SEED", 0)
	v.SetDefault("SIMULATION_LEARNING_RATE", 0.01)
	v.SetDefault("SIMULATION_MU", 0.01)
	v.SetDefault("SIMULATION_PARALLELISM", 1)
	v.SetDefault("SIMULATION_DATA_DIR", "data")

	v.SetDefault("DATASET_CACHE_DIR", "dataset")
	v.SetDefault("DATASET_MNIST_MIRROR", "https://ossci-datasets.s3.amazonaws.com/mnist/")
	v.SetDefault("DATASET_FASHION_MNIST_MIRROR", "http://fashion-mnist.s3-website.eu-central-1.amazonaws.com/")
	v.SetDefault("DATASET_EMNIST_MIRROR", "")

	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_ENDPOINT", "/api")

	v.SetDefault("DATABASE_DRIVER", "")
	v.SetDefault("DATABASE_PATH", "fedsim.db")

	v.SetDefault("SCHEDULER_INTERVAL", 30)
}

// LoadConfig reads path when it exists, then layers environment variables and defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error checking config file: %w", err)
		}
	}

	v.SetDefault("SIMULATION", map[string]interface{}{
		"ALGORITHM":     v.GetString("SIMULATION_ALGORITHM"),
		"PARTITIONING":  v.GetString("SIMULATION_PARTITIONING"),
		"AREAS":         v.GetInt("SIMULATION_AREAS"),
		"DATASET":       v.GetString("SIMULATION_DATASET"),
		"CLIENTS":       v.GetInt("SIMULATION_CLIENTS"),
		"BATCH_SIZE":    v.GetInt("SIMULATION_BATCH_SIZE"),
		"LOCAL_EPOCHS":  v.GetInt("SIMULATION_LOCAL_EPOCHS"),
		"GLOBAL_ROUNDS": v.GetInt("SIMULATION_GLOBAL_ROUNDS"),
		"SEED":          v.GetInt64("SIMULATION_SEED"),
		"LEARNING_RATE": v.GetFloat64("SIMULATION_LEARNING_RATE"),
		"MU":            v.GetFloat64("SIMULATION_MU"),
		"PARALLELISM":   v.GetInt("SIMULATION_PARALLELISM"),
		"DATA_DIR":      v.GetString("SIMULATION_DATA_DIR"),
	})

	v.SetDefault("DATASET", map[string]interface{}{
		"CACHE_DIR":            v.GetString("DATASET_CACHE_DIR"),
		"MNIST_MIRROR":         v.GetString("DATASET_MNIST_MIRROR"),
		"FASHION_MNIST_MIRROR": v.GetString("DATASET_FASHION_MNIST_MIRROR"),
		"EMNIST_MIRROR":        v.GetString("DATASET_EMNIST_MIRROR"),
	})

	v.SetDefault("SERVER", map[string]interface{}{
		"HOST":     v.GetString("SERVER_HOST"),
		"PORT":     v.GetString("SERVER_PORT"),
		"ENDPOINT": v.GetString("SERVER_ENDPOINT"),
	})

	v.SetDefault("DATABASE", map[string]interface{}{
		"DRIVER":        v.GetString("DATABASE_DRIVER"),
		"PATH":          v.GetString("DATABASE_PATH"),
		"USERNAME":      v.GetString("DATABASE_USERNAME"),
		"PASSWORD":      v.GetString("DATABASE_PASSWORD"),
		"HOST":          v.GetString("DATABASE_HOST"),
		"PORT":          v.GetString("DATABASE_PORT"),
		"DATABASE_NAME": v.GetString("DATABASE_DATABASE_NAME"),
	})

	v.SetDefault("AWS", map[string]interface{}{
		"REGION":            v.GetString("AWS_REGION"),
		"BUCKET_NAME":       v.GetString("AWS_BUCKET_NAME"),
		"ACCESS_KEY_ID":     v.GetString("AWS_ACCESS_KEY_ID"),
		"SECRET_ACCESS_KEY": v.GetString("AWS_SECRET_ACCESS_KEY"),
		"ENDPOINT":          v.GetString("AWS_ENDPOINT"),
	})

	v.SetDefault("SCHEDULER", map[string]interface{}{
		"INTERVAL": v.GetInt("SCHEDULER_INTERVAL"),
	})

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations no simulation could run with.
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case s.Areas <= 0:
		return fmt.Errorf("invalid simulation config: areas must be positive, got %d", s.Areas)
	case s.Clients <= 0:
		return fmt.Errorf("invalid simulation config: clients must be positive, got %d", s.Clients)
	case s.Clients < s.Areas:
		return fmt.Errorf("invalid simulation config: %d clients cannot cover %d areas", s.Clients, s.Areas)
	case s.BatchSize <= 0:
		return fmt.Errorf("invalid simulation config: batch size must be positive, got %d", s.BatchSize)
	case s.LocalEpochs <= 0:
		return fmt.Errorf("invalid simulation config: local epochs must be positive, got %d", s.LocalEpochs)
	case s.GlobalRounds <= 0:
		return fmt.Errorf("invalid simulation config: global rounds must be positive, got %d", s.GlobalRounds)
	case s.LearningRate <= 0:
		return fmt.Errorf("invalid simulation config: learning rate must be positive, got %g", s.LearningRate)
	case s.Mu < 0:
		return fmt.Errorf("invalid simulation config: mu must not be negative, got %g", s.Mu)
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Username == "" || c.Database.Password == "" ||
			c.Database.Host == "" || c.Database.Port == "" ||
			c.Database.DatabaseName == "" {
			return fmt.Errorf("missing required database configuration")
		}
	}

	return nil
}
