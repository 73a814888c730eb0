package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort           = 8080
	DefaultStaticDir      = "./web"
	DefaultSkullNormal    = 30 * time.Second
	DefaultSkullEvent     = 120 * time.Second
	DefaultSkullBroadcast = time.Second
	DefaultServerURL      = "ws://localhost:8080/ws"
	DefaultPlayerName     = "Sailor"
	DefaultProfilePath    = "calavera-profile.msgpack"
)

// Server holds the relay process settings.
type Server struct {
	Port           int
	StaticDir      string
	SkullNormal    time.Duration
	SkullEvent     time.Duration
	SkullBroadcast time.Duration
}

// Client holds the debug client settings.
type Client struct {
	ServerURL   string
	PlayerName  string
	ProfilePath string
}

// InitConfig loads a .env file from the working directory if there is one.
// Anything already set in the environment wins.
func InitConfig(files ...string) {
	err := godotenv.Load(files...)
	switch {
	case err == nil:
		log.Println("Loaded environment variables from .env")
	case errors.Is(err, fs.ErrNotExist):
		log.Println("No .env file found, using process environment")
	default:
		log.Printf("Error loading .env file: %v", err)
	}
}

func GetEnvVariable(v string) (string, error) {
	if v == "" {
		return "", fmt.Errorf("input param empty")
	}
	b := os.Getenv(v)
	if b == "" {
		return "", fmt.Errorf("failed to get variable for %s", v)
	}
	return b, nil
}

func LoadServer() Server {
	return Server{
		Port:           intVar("PORT", DefaultPort),
		StaticDir:      stringVar("ARENA_STATIC_DIR", DefaultStaticDir),
		SkullNormal:    durationVar("ARENA_SKULL_NORMAL", DefaultSkullNormal),
		SkullEvent:     durationVar("ARENA_SKULL_EVENT", DefaultSkullEvent),
		SkullBroadcast: durationVar("ARENA_SKULL_BROADCAST", DefaultSkullBroadcast),
	}
}

// LoadClient reads client settings. savedName is the name remembered in the
// local profile and is used when ARENA_PLAYER_NAME is unset.
func LoadClient(savedName string) Client {
	name := DefaultPlayerName
	if savedName != "" {
		name = savedName
	}
	return Client{
		ServerURL:   stringVar("ARENA_SERVER_URL", DefaultServerURL),
		PlayerName:  stringVar("ARENA_PLAYER_NAME", name),
		ProfilePath: stringVar("ARENA_PROFILE", DefaultProfilePath),
	}
}

func stringVar(key, def string) string {
	v, err := GetEnvVariable(key)
	if err != nil {
		return def
	}
	return v
}

func intVar(key string, def int) int {
	v, err := GetEnvVariable(key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 65535 {
		log.Printf("Invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func durationVar(key string, def time.Duration) time.Duration {
	v, err := GetEnvVariable(key)
	if err != nil {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
