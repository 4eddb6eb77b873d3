// Package plugin provides the public SDK types for Cropsight modules.
// All Cropsight modules (built-in and third-party) implement these interfaces.
package plugin

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// API version constants for module compatibility checking.
// The registry rejects modules outside the supported range.
const (
	APIVersionMin     = 1 // Oldest module API version this server supports
	APIVersionCurrent = 1 // Current module API version
)

// Plugin defines the interface that all Cropsight modules must implement.
type Plugin interface {
	// Info returns the module's metadata and dependency declarations.
	Info() PluginInfo

	// Init initializes the module with its dependencies.
	Init(ctx context.Context, deps Dependencies) error

	// Start begins the module's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the module.
	Stop(ctx context.Context) error
}

// PluginInfo contains module metadata and dependency declarations.
type PluginInfo struct {
	Name         string   // Unique identifier: "watch", "sheets", etc.
	Version      string   // Semantic version string
	Description  string   // Human-readable summary
	Dependencies []string // Module names that must initialize first
	Required     bool     // If true, server refuses to start without this module
	APIVersion   int      // Module API version targeted (currently 1)
}

// Dependencies provides controlled access to shared services.
// Injected by the registry during Init.
type Dependencies struct {
	Config Config      // Scoped to this module's config section
	Logger *zap.Logger // Named logger for this module
	Store  Store       // Shared database with per-module migrations
	Bus    EventBus    // Event publish/subscribe for inter-module communication
}

// Route represents an HTTP route exposed by a module.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// HTTPProvider is implemented by modules that expose HTTP routes.
// Routes are mounted under /api/v1/{module}.
type HTTPProvider interface {
	Routes() []Route
}

// EventSubscriber is implemented by modules that listen for bus events.
// Subscriptions are wired by the composition root after Init.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// HealthReporter is implemented by modules that report their own health.
type HealthReporter interface {
	Health(ctx context.Context) HealthStatus
}

// Validator is implemented by modules that validate config after Init.
type Validator interface {
	ValidateConfig() error
}

// HealthStatus represents a module's health report.
type HealthStatus struct {
	Status  string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Config abstracts configuration access. Wraps Viper today, replaceable later.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetFloat64(key string) float64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Store abstracts the shared SQLite database with per-module migrations.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, moduleName string, migrations []Migration) error
}

// Migration is a single schema change applied within a transaction.
// Migrations are tracked per module and must be provided in ascending
// Version order.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Publisher sends events to the bus. Use this thin interface in code
// that only needs to emit events (follows io.Writer pattern).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the bus. Use this thin interface in
// code that only needs to listen for events (follows io.Reader pattern).
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus provides typed publish/subscribe for inter-module communication.
// Composes Publisher and Subscriber with async and wildcard extensions.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Event represents a typed message on the event bus.
type Event struct {
	Topic     string
	Source    string // Module name that emitted the event
	Timestamp time.Time
	Payload   any // Type depends on topic
}

// EventHandler processes events from the bus.
type EventHandler func(ctx context.Context, event Event)

// Subscription declares a topic subscription for EventSubscriber modules.
type Subscription struct {
	Topic   string
	Handler EventHandler
}
