package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Node struct {
	// Listen is the REST/WebSocket bind address.
	Listen string
	// DataDir holds the Pebble database and log files.
	DataDir string
	LogFile string
}

type Events struct {
	// KafkaBrokers enables the Kafka publisher when non-empty.
	KafkaBrokers []string
}

type Config struct {
	Node   Node
	Events Events
}

func Default() Config {
	return Config{
		Node: Node{
			Listen:  ":8080",
			DataDir: "data",
			LogFile: "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if listen := os.Getenv("LISTEN"); listen != "" {
		cfg.Node.Listen = listen
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Node.DataDir = dir
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		// Example: "localhost:9092,localhost:9093"
		cfg.Events.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg
}
