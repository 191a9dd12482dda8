// netbridge CLI entry point.
//
// Runs a game server, a client, or both in one process. Each role drives a
// network worker from a fixed-rate simulation loop: the server tracks joined
// players and broadcasts their rotations, the client joins under a name and
// streams a spinning rotation.
//
// It can be launched interactively (no -role flag) or non-interactively via
// CLI flags (-role, -address, -port, -maxClients, -transport, -name).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/netbridge/internal/config"
	"github.com/1ureka/netbridge/internal/game"
	"github.com/1ureka/netbridge/internal/netcode"
	"github.com/1ureka/netbridge/internal/transport"
	"github.com/1ureka/netbridge/internal/util"
	rtc "github.com/1ureka/netbridge/internal/webrtc"
)

var version = "dev"

// frameInterval is the simulation rate (60 Hz).
const frameInterval = time.Second / 60

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags. Zero values leave the options file untouched.
	optionsPath := flag.String("options", "netbridge.yaml", "Options file; missing means defaults")
	role := flag.String("role", "", "Role: server, client or both")
	address := flag.String("address", "", "Server address (client) or bind address (server)")
	port := flag.Int("port", 0, "Game port, 1~65535")
	maxClients := flag.Int("maxClients", 0, "Peer slots (server only)")
	kind := flag.String("transport", "", "Client link: ws or rtc")
	name := flag.String("name", "", "Online username (client only)")
	web := flag.String("web", "", "Web server address handed to the game, e.g. localhost:4000")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	jsonLog := flag.Bool("json", false, "Log as JSON")
	save := flag.Bool("save", false, "Write the effective options back to the options file")
	flag.Parse()

	opts, err := config.Load(*optionsPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if *role != "" {
		opts.Role = config.Role(*role)
	}
	if *address != "" {
		opts.Address = *address
	}
	if *port != 0 {
		if *port < 1 || *port > 65535 {
			util.LogError("invalid -port (must be 1~65535)")
			os.Exit(1)
		}
		opts.Port = uint16(*port)
	}
	if *maxClients != 0 {
		opts.MaxClients = *maxClients
	}
	if *kind != "" {
		opts.Transport = transport.Kind(*kind)
	}
	if *name != "" {
		opts.OnlineUsername = *name
	}
	if *web != "" {
		opts.WebServerAddress = *web
	}
	opts.Debug = opts.Debug || *debugMode
	opts.JSONLog = opts.JSONLog || *jsonLog

	log := util.NewLogger(util.LogOptions{Debug: opts.Debug, JSON: opts.JSONLog})
	util.SetDefault(log)

	pterm.Info.Println(fmt.Sprintf("netbridge v%s", version))
	pterm.Println()

	if opts.Role == "" {
		// No role anywhere → interactive mode.
		runInteractive(&opts)
	}

	if err := opts.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if *save {
		if err := opts.Save(*optionsPath); err != nil {
			util.LogWarning("failed to save options: %v", err)
		}
	}

	if err := run(ctx, opts, log); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("network workers stopped")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive asks for the role and the fields it needs.
func runInteractive(opts *config.Options) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Server: host a game",
			"Client: join a game",
			"Both: host and join locally",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Server"):
		opts.Role = config.RoleServer
		opts.Port = askPort("Port to host on (1 ~ 65535)", opts.Port)
	case strings.HasPrefix(role, "Client"):
		opts.Role = config.RoleClient
		opts.Address, opts.Port = askAddress(opts.Address, opts.Port)
		opts.OnlineUsername = askText("Online username", opts.OnlineUsername)
	default:
		opts.Role = config.RoleBoth
		opts.Port = askPort("Port to host on (1 ~ 65535)", opts.Port)
		opts.OnlineUsername = askText("Online username", opts.OnlineUsername)
	}
}

// scene has no UI to switch; it only reports the transition asked for.
type scene struct {
	log *util.Logger
}

func (s scene) ToMainMenu() { s.log.Infof("connection ended, returning to main menu") }

func (s scene) ExitApplication() { s.log.Infof("exit requested") }

// run drives every configured role at 60 Hz until all workers stop.
func run(ctx context.Context, opts config.Options, log *util.Logger) error {
	nopts := netcode.Options{
		Log:           log,
		Scene:         scene{log: log},
		Timing:        opts.PeerTiming(),
		StatsInterval: opts.StatsInterval,
	}
	iceServers := opts.ICEServers
	if len(iceServers) == 0 {
		iceServers = rtc.DefaultICEServers
	}
	topts := transport.Options{Log: log, ICEServers: iceServers}

	var (
		server *game.ServerSession
		client *game.ClientSession
	)

	if opts.Role != config.RoleClient {
		bind := opts.Address
		if opts.Role == config.RoleBoth {
			bind = ""
		}
		s, err := game.NewServerSession(func(port uint16, maxPeers int) (transport.ServerHost, error) {
			srv, err := transport.Listen(bind, port, maxPeers, topts)
			if err != nil {
				return nil, err
			}
			return srv, nil
		}, nopts, opts.TickInterval)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Start(opts.Port, opts.MaxClients); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		server = s
	}

	if opts.Role != config.RoleServer {
		kind := opts.Transport
		c, err := game.NewClientSession(opts.OnlineUsername, func() (transport.ClientHost, error) {
			host, err := transport.NewClient(kind, topts)
			if err != nil {
				return nil, err
			}
			return host, nil
		}, nopts)
		if err != nil {
			return err
		}
		address := opts.Address
		if opts.Role == config.RoleBoth {
			address = "127.0.0.1"
		}
		if err := c.Connect(address, opts.Port); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		client = c
		util.LogInfo("web server: %s", opts.WebServerAddress)
		util.LogInfo("connecting to %s over %s as %q", net.JoinHostPort(address, strconv.Itoa(int(opts.Port))), kind, opts.OnlineUsername)
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	done := ctx.Done()
	var frame uint64
	var rotation float32

	for {
		select {
		case <-done:
			done = nil // Exit once, then keep pumping until the workers stop
			util.LogInfo("shutting down...")
			if client != nil {
				client.Net.Exit()
			}
			if server != nil {
				server.Exit()
			}
			continue
		case <-ticker.C:
		}

		frame++
		running := false
		if server != nil {
			server.Update()
			running = running || server.Net.Running()
		}
		if client != nil {
			client.Update()
			running = running || client.Net.Running()

			// Stream a spinning rotation at 10 Hz once welcomed.
			if _, ok := client.View.PlayerID(); ok && frame%6 == 0 {
				rotation = float32(int(rotation+3) % 360)
				_ = client.SendRotation(rotation)
			}
		}

		if !running {
			return nil
		}
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string, def uint16) uint16 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(strconv.Itoa(int(def))).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return uint16(port)
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askAddress prompts for host:port until one parses.
func askAddress(defHost string, defPort uint16) (string, uint16) {
	def := net.JoinHostPort(defHost, strconv.Itoa(int(defPort)))
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Server address (host:port)").
			WithDefaultValue(def).
			Show()

		host, portStr, err := net.SplitHostPort(strings.TrimSpace(raw))
		if err == nil && host != "" {
			if port, err := strconv.Atoi(portStr); err == nil && port >= 1 && port <= 65535 {
				pterm.Println()
				return host, uint16(port)
			}
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter host:port")
	}
}

func askText(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		WithDefaultValue(def).
		Show()
	pterm.Println()
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return def
}
