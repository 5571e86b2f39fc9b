// Command mysqlproxy is the process entry point: it loads
// configuration, wires the backend registry, connection pool, metrics,
// admin API, and shutdown hooks, then accepts client connections and
// drives one internal/session.Session per connection until a shutdown
// signal arrives. Grounded on cmd/dbbouncer/main.go's construction
// order and graceful-shutdown-on-signal pattern.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bigwindlee/mysqlproxy/internal/api"
	"github.com/bigwindlee/mysqlproxy/internal/backend"
	"github.com/bigwindlee/mysqlproxy/internal/config"
	"github.com/bigwindlee/mysqlproxy/internal/connpool"
	"github.com/bigwindlee/mysqlproxy/internal/logrecord"
	"github.com/bigwindlee/mysqlproxy/internal/logsink"
	"github.com/bigwindlee/mysqlproxy/internal/metrics"
	"github.com/bigwindlee/mysqlproxy/internal/reactor"
	"github.com/bigwindlee/mysqlproxy/internal/scripthost"
	"github.com/bigwindlee/mysqlproxy/internal/session"
	"github.com/bigwindlee/mysqlproxy/internal/shutdown"
	"github.com/bigwindlee/mysqlproxy/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/mysqlproxy.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mysqlproxy: failed to load config: %v\n", err)
		os.Exit(1)
	}

	sink := logsink.New(cfg.Logging)
	formatter := logrecord.NewFormatter(sink)
	formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Message,
		Message: fmt.Sprintf("mysqlproxy starting (config %s, %d backends)", *configPath, len(cfg.Backends))})

	hooks := shutdown.New()
	m := metrics.New()
	reg := backend.New(formatter)
	pool := connpool.New(cfg.Pool.MinIdleConnections)
	rx := reactor.New()

	for _, b := range cfg.Backends {
		if _, err := reg.Add(b.Address(), b.ParseRole()); err != nil {
			formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Error,
				Message: fmt.Sprintf("backend %s: %v", b.Name, err)})
		}
	}

	apiServer := api.NewServer(reg, pool, m, formatter, cfg.Listen)
	if err := apiServer.Start(); err != nil {
		formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Error, Message: "admin API failed to start: " + err.Error()})
		os.Exit(1)
	}
	hooks.Register("api", func() { apiServer.Stop() })

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Message, Message: "configuration reloaded"})
	})
	if err != nil {
		formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Warning, Message: "config hot-reload not available: " + err.Error()})
	} else {
		hooks.Register("config-watcher", func() { configWatcher.Stop() })
	}

	listener, err := net.Listen("tcp", cfg.Listen.MySQLAddr)
	if err != nil {
		formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Error, Message: "listen failed: " + err.Error()})
		os.Exit(1)
	}
	hooks.Register("listener", func() { listener.Close() })

	var nextID uint64
	shuttingDown := make(chan struct{})
	hooks.Register("accept-loop", func() { close(shuttingDown) })
	hooks.Register("connpool", func() { pool.Free() })

	go acceptLoop(listener, shuttingDown, &nextID, reg, pool, hooks, formatter, rx, m)

	formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Message,
		Message: fmt.Sprintf("ready: mysql=%s api=%s", cfg.Listen.MySQLAddr, cfg.Listen.APIAddr)})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	formatter.Log(logrecord.Record{Logger: "main", Level: logrecord.Message, Message: fmt.Sprintf("received signal %s, shutting down", sig)})

	hooks.CallAll()
	formatter.Flush()
}

func acceptLoop(listener net.Listener, shuttingDown chan struct{}, nextID *uint64, reg *backend.Registry, pool *connpool.Pool, hooks *shutdown.Registry, logger logrecord.Logger, rx reactor.Reactor, m *metrics.Collector) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-shuttingDown:
				return
			default:
				logger.Log(logrecord.Record{Logger: "main", Level: logrecord.Warning, Message: "accept error: " + err.Error()})
				continue
			}
		}
		id := atomic.AddUint64(nextID, 1)
		sess := session.New(id, conn, reg, pool, dialUpstream, scripthost.NoOpHooks{}, logger, rx)
		go func() {
			if err := sess.Run(); err != nil {
				logger.Log(logrecord.Record{Logger: "session", Level: logrecord.Debug,
					Message: fmt.Sprintf("session %d ended: %v", id, err)})
			}
		}()
	}
}

// dialUpstream opens a fresh TCP connection to addr, drives the
// backend's own handshake/auth exchange with an empty credential
// (the proxy's own service account, supplied out of band in a
// production deployment), and wraps the result as a connpool.Socket.
func dialUpstream(addr backend.Address, username string) (connpool.Socket, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port), 5*time.Second)
	if err != nil {
		return nil, err
	}

	if err := performUpstreamHandshake(conn, username); err != nil {
		conn.Close()
		return nil, err
	}

	return &pooledSocket{Conn: conn, username: username}, nil
}

func performUpstreamHandshake(conn net.Conn, username string) error {
	hdr := make([]byte, 4)
	if _, err := readFullConn(conn, hdr); err != nil {
		return fmt.Errorf("io.read: %w", err)
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return err
	}
	payload := make([]byte, h.Length)
	if _, err := readFullConn(conn, payload); err != nil {
		return fmt.Errorf("io.read: %w", err)
	}
	if _, err := wire.DecodeHandshakeV10(payload); err != nil {
		return fmt.Errorf("auth.upstream_error: %w", err)
	}

	resp := wire.EncodeAuthResponse(wire.HandshakeResponse41{Username: username})
	out := wire.EncodeHeader(uint32(len(resp)), h.Seq+1)
	out = append(out, resp...)
	if _, err := conn.Write(out); err != nil {
		return fmt.Errorf("io.write: %w", err)
	}

	if _, err := readFullConn(conn, hdr); err != nil {
		return fmt.Errorf("io.read: %w", err)
	}
	rh, err := wire.DecodeHeader(hdr)
	if err != nil {
		return err
	}
	result := make([]byte, rh.Length)
	if _, err := readFullConn(conn, result); err != nil {
		return fmt.Errorf("io.read: %w", err)
	}
	if len(result) == 0 || result[0] != 0x00 {
		return fmt.Errorf("auth.upstream_error: backend rejected handshake for %q", username)
	}
	return nil
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// pooledSocket adapts a raw upstream net.Conn to connpool.Socket. It
// holds no back-reference to the pool it may be returned to (see
// DESIGN.md's reference-cycle note).
type pooledSocket struct {
	net.Conn
	username string
}

func (p *pooledSocket) AuthenticatedAs() string { return p.username }
