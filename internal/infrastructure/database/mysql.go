package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/digi-serve/ab-service-definition-manager/internal/config"
)

// Connection wraps the pool of one database schema.
// sql.DB is already safe for concurrent use; no extra locking here.
type Connection struct {
	name string
	db   *sql.DB
}

// NewConnection wraps an already opened pool.
func NewConnection(name string, db *sql.DB) *Connection {
	return &Connection{name: name, db: db}
}

// DSN builds the driver DSN for one schema.
func DSN(cfg config.DatabaseConfig, dbName string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = dbName
	mc.ParseTime = true
	// Updates report matched rows, so an unchanged row is not "missing".
	mc.ClientFoundRows = true
	mc.Loc = time.Local
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// Open connects to dbName and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, dbName string) (*Connection, error) {
	db, err := sql.Open("mysql", DSN(cfg, dbName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbName, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	// Keep idle == open so bursts do not churn ephemeral ports.
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", dbName, err)
	}
	return &Connection{name: dbName, db: db}, nil
}

// Name returns the schema name.
func (c *Connection) Name() string { return c.name }

func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// DB returns the underlying pool.
func (c *Connection) DB() *sql.DB { return c.db }

func (c *Connection) Close() error { return c.db.Close() }

// OpenFunc opens a schema. Pool uses Open unless told otherwise.
type OpenFunc func(ctx context.Context, dbName string) (*Connection, error)

// Pool keeps one Connection per schema, opened on first use.
type Pool struct {
	open OpenFunc

	mu    sync.Mutex
	conns map[string]*Connection
}

func NewPool(cfg config.DatabaseConfig) *Pool {
	return NewPoolWithOpener(func(ctx context.Context, dbName string) (*Connection, error) {
		return Open(ctx, cfg, dbName)
	})
}

func NewPoolWithOpener(open OpenFunc) *Pool {
	return &Pool{open: open, conns: make(map[string]*Connection)}
}

// Get returns the connection for dbName, opening it if needed.
func (p *Pool) Get(ctx context.Context, dbName string) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[dbName]; ok {
		return c, nil
	}
	c, err := p.open(ctx, dbName)
	if err != nil {
		return nil, err
	}
	p.conns[dbName] = c
	log.Printf("✅ Database connection established: %s", dbName)
	return c, nil
}

// Close closes every open connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, name)
	}
	return firstErr
}
