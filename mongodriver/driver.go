// Package mongodriver owns the MongoDB client behind the models: it builds
// client options from configuration, hands out collection handles and
// replaces the client when a call asks for a reconnect.
package mongodriver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dosco/mongodoc/core"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	_ core.Collection = (*mongo.Collection)(nil)
	_ core.Connection = (*Connector)(nil)
)

// DialFunc creates a client. mongo.Connect is used unless replaced.
type DialFunc func(opts *options.ClientOptions) (*mongo.Client, error)

// Connector implements core.Connection on top of a mongo client.
type Connector struct {
	client   atomic.Pointer[mongo.Client]
	database string
	opts     *options.ClientOptions
	dial     DialFunc
	log      *zap.Logger
	group    singleflight.Group
	swaps    atomic.Int64
}

// Option configures a Connector.
type Option func(*Connector)

func WithLogger(log *zap.Logger) Option {
	return func(c *Connector) {
		c.log = log
	}
}

// WithDialer replaces mongo.Connect.
func WithDialer(dial DialFunc) Option {
	return func(c *Connector) {
		c.dial = dial
	}
}

func connect(opts *options.ClientOptions) (*mongo.Client, error) {
	return mongo.Connect(opts)
}

// Open creates a client for conf. The driver connects lazily, so Open does
// not fail when the server is down; use Ping for that.
func Open(conf Config, opts ...Option) (*Connector, error) {
	co, err := ClientOptions(conf)
	if err != nil {
		return nil, err
	}
	if conf.Database == "" {
		return nil, fmt.Errorf("mongodriver: database is required")
	}

	c := &Connector{
		database: conf.Database,
		opts:     co,
		dial:     connect,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}

	client, err := c.dial(co)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: connect: %w", err)
	}
	c.client.Store(client)
	return c, nil
}

// NewConnector wraps an existing client. Without client options such a
// connector can not reconnect; Reconnect returns an error.
func NewConnector(client *mongo.Client, database string, opts ...Option) *Connector {
	c := &Connector{
		database: database,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.client.Store(client)
	return c
}

// Client returns the current client. It changes after a reconnect.
func (c *Connector) Client() *mongo.Client {
	return c.client.Load()
}

// Database returns the database name.
func (c *Connector) Database() string {
	return c.database
}

func (c *Connector) db() *mongo.Database {
	return c.client.Load().Database(c.database)
}

// Collection returns a handle on the current client.
func (c *Connector) Collection(name string) core.Collection {
	return c.db().Collection(name)
}

// Indexes returns the index manager of a collection.
func (c *Connector) Indexes(collection string) core.IndexManager {
	return &indexView{db: c.db(), coll: c.db().Collection(collection)}
}

// DropCollection drops the named collection.
func (c *Connector) DropCollection(ctx context.Context, name string) error {
	return c.db().Collection(name).Drop(ctx)
}

// Ping checks that the server is reachable.
func (c *Connector) Ping(ctx context.Context) error {
	return c.client.Load().Ping(ctx, nil)
}

// StartSession starts a session on the current client. Pass it along with
// core.WithSession.
func (c *Connector) StartSession() (*mongo.Session, error) {
	return c.client.Load().StartSession()
}

// Reconnect dials a new client and swaps it in. Concurrent calls share a
// single dial. The old client is disconnected in the background so calls
// still running on it can finish.
func (c *Connector) Reconnect(ctx context.Context) error {
	if c.opts == nil || c.dial == nil {
		return fmt.Errorf("mongodriver: connector has no client options to reconnect with")
	}

	_, err, shared := c.group.Do("reconnect", func() (any, error) {
		client, err := c.dial(c.opts)
		if err != nil {
			return nil, err
		}
		old := c.client.Swap(client)
		c.swaps.Add(1)

		if old != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := old.Disconnect(ctx); err != nil {
					c.log.Warn("disconnecting replaced client", zap.Error(err))
				}
			}()
		}
		return nil, nil
	})

	if err != nil {
		return fmt.Errorf("mongodriver: reconnect: %w", err)
	}
	c.log.Info("reconnected",
		zap.String("database", c.database),
		zap.Bool("shared", shared),
		zap.Int64("swaps", c.swaps.Load()))
	return nil
}

// Close disconnects the current client.
func (c *Connector) Close(ctx context.Context) error {
	return c.client.Load().Disconnect(ctx)
}

// Stats reports how often the client was replaced.
func (c *Connector) Stats() (swaps int64) {
	return c.swaps.Load()
}

// RunCommand runs a database command against the current client.
func (c *Connector) RunCommand(ctx context.Context, cmd bson.D) (bson.M, error) {
	var out bson.M
	err := c.db().RunCommand(ctx, cmd).Decode(&out)
	return out, err
}
