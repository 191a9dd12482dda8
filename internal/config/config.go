// Package config holds the options shared by the CLI and the network core.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1ureka/netbridge/internal/transport"
)

// Role represents the endpoint role the user chose.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
	RoleBoth   Role = "both" // Hosts and joins its own server
)

// Timing mirrors transport.Timing in a file-friendly form.
type Timing struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	TimeoutLimit   uint32        `yaml:"timeoutLimit"`
	TimeoutMinimum time.Duration `yaml:"timeoutMinimum"`
	TimeoutMaximum time.Duration `yaml:"timeoutMaximum"`
}

// Options stores every parameter gathered from the options file, flags and
// interactive prompts.
type Options struct {
	Role       Role           `yaml:"role"`
	Address    string         `yaml:"address"`    // Client: server to join; server: bind address
	Port       uint16         `yaml:"port"`       // Game port
	MaxClients int            `yaml:"maxClients"` // Server peer slots
	Transport  transport.Kind `yaml:"transport"`  // Client link kind: ws or rtc
	ICEServers []string       `yaml:"iceServers"`

	OnlineUsername string `yaml:"onlineUsername"`

	// WebServerAddress is handed to the application untouched.
	WebServerAddress string `yaml:"webServerAddress"`

	TickInterval  time.Duration `yaml:"tickInterval"`  // Server snapshot broadcast
	StatsInterval time.Duration `yaml:"statsInterval"` // Zero disables the reporter
	Timing        Timing        `yaml:"timing"`

	Debug   bool `yaml:"debug"`
	JSONLog bool `yaml:"jsonLog"`
}

var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidPort       = errors.New("invalid port")
	ErrInvalidMaxClients = errors.New("max clients must be 1~4095")
	ErrInvalidTick       = errors.New("tick interval must be positive")
)

// Default returns the options used when no file exists.
func Default() Options {
	t := transport.DefaultTiming()
	return Options{
		Address:          "127.0.0.1",
		Port:             25565,
		MaxClients:       100,
		Transport:        transport.KindWebSocket,
		OnlineUsername:   "player",
		WebServerAddress: "localhost:4000",
		TickInterval:     50 * time.Millisecond,
		StatsInterval:    10 * time.Second,
		Timing: Timing{
			PingInterval:   t.PingInterval,
			TimeoutLimit:   t.TimeoutLimit,
			TimeoutMinimum: t.TimeoutMinimum,
			TimeoutMaximum: t.TimeoutMaximum,
		},
	}
}

// Load reads options from path over the defaults. A missing file yields
// the defaults.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return opts, nil
	}
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return opts, nil
}

// Save writes the options to path.
func (o Options) Save(path string) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the fields the chosen role depends on.
func (o Options) Validate() error {
	switch o.Role {
	case RoleServer, RoleClient, RoleBoth:
	default:
		return fmt.Errorf("%q: %w", o.Role, ErrInvalidRole)
	}
	if o.Port == 0 {
		return ErrInvalidPort
	}
	if o.Role != RoleClient {
		if o.MaxClients < 1 || o.MaxClients > 4095 {
			return ErrInvalidMaxClients
		}
		if o.TickInterval <= 0 {
			return ErrInvalidTick
		}
	}
	if o.Role != RoleServer {
		if _, err := transport.ParseKind(string(o.Transport)); err != nil {
			return err
		}
	}
	return nil
}

// PeerTiming converts the timing options, filling gaps with defaults.
func (o Options) PeerTiming() transport.Timing {
	return transport.Timing{
		PingInterval:   o.Timing.PingInterval,
		TimeoutLimit:   o.Timing.TimeoutLimit,
		TimeoutMinimum: o.Timing.TimeoutMinimum,
		TimeoutMaximum: o.Timing.TimeoutMaximum,
	}.Normalize()
}
