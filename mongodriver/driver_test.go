package mongodriver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// TestClientOptions tests building driver options from config
func TestClientOptions(t *testing.T) {
	co, err := ClientOptions(Config{
		URI:            "mongodb://localhost:27017",
		AppName:        "tickets",
		MaxPoolSize:    20,
		ConnectTimeout: 5 * time.Second,
		ReadPreference: "secondaryPreferred",
	})
	if err != nil {
		t.Fatalf("ClientOptions() error = %v", err)
	}

	if co.MaxPoolSize == nil || *co.MaxPoolSize != 20 {
		t.Errorf("MaxPoolSize = %v, want 20", co.MaxPoolSize)
	}
	if co.AppName == nil || *co.AppName != "tickets" {
		t.Errorf("AppName = %v, want tickets", co.AppName)
	}
	if co.ConnectTimeout == nil || *co.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", co.ConnectTimeout)
	}
	if co.ServerSelectionTimeout == nil || *co.ServerSelectionTimeout != DefaultTimeout {
		t.Errorf("ServerSelectionTimeout = %v, want %v", co.ServerSelectionTimeout, DefaultTimeout)
	}
	if co.RetryWrites == nil || *co.RetryWrites {
		t.Errorf("RetryWrites = %v, want false", co.RetryWrites)
	}
	if co.RetryReads == nil || *co.RetryReads {
		t.Errorf("RetryReads = %v, want false", co.RetryReads)
	}
	if co.ReadPreference == nil {
		t.Error("ReadPreference not set")
	}
}

func TestClientOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		conf Config
	}{
		{"missing uri", Config{}},
		{"bad read preference", Config{URI: "mongodb://localhost", ReadPreference: "everywhere"}},
		{"missing ca file", Config{URI: "mongodb://localhost", TLSCAFile: "/does/not/exist.pem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ClientOptions(tt.conf); err == nil {
				t.Errorf("ClientOptions() expected an error")
			}
		})
	}
}

func TestClientOptionsBadCA(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(ca, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := ClientOptions(Config{URI: "mongodb://localhost", TLSCAFile: ca})
	if err == nil {
		t.Error("expected an error for a ca file without certificates")
	}
}

// TestConnectorCreation tests wrapping an existing client
func TestConnectorCreation(t *testing.T) {
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		t.Skipf("Skipping test - could not create mongo client: %v", err)
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	connector := NewConnector(client, "testdb")
	if connector.Database() != "testdb" {
		t.Errorf("Database() = %v, want testdb", connector.Database())
	}
	if connector.Client() != client {
		t.Error("Client() does not return the wrapped client")
	}
	if c := connector.Collection("users"); c == nil {
		t.Error("Collection() returned nil")
	}

	// no client options, nothing to reconnect with
	if err := connector.Reconnect(context.Background()); err == nil {
		t.Error("Reconnect() expected an error")
	}
}

func TestReconnectSwapsClient(t *testing.T) {
	var dials atomic.Int32

	conn, err := Open(Config{URI: "mongodb://localhost:27017", Database: "testdb"},
		WithDialer(func(opts *options.ClientOptions) (*mongo.Client, error) {
			dials.Add(1)
			return mongo.Connect(opts)
		}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	first := conn.Client()
	if err := conn.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if conn.Client() == first {
		t.Error("Reconnect() did not replace the client")
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
	if conn.Stats() != 1 {
		t.Errorf("Stats() = %d, want 1", conn.Stats())
	}
}

func TestReconnectCollapsesConcurrentCalls(t *testing.T) {
	var dials atomic.Int32
	release := make(chan struct{})

	conn, err := Open(Config{URI: "mongodb://localhost:27017", Database: "testdb"},
		WithDialer(func(opts *options.ClientOptions) (*mongo.Client, error) {
			if dials.Add(1) > 1 {
				<-release
			}
			return mongo.Connect(opts)
		}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := conn.Reconnect(context.Background()); err != nil {
				t.Errorf("Reconnect() error = %v", err)
			}
		}()
	}

	// let the goroutines pile up on the in-flight dial
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := dials.Load(); got >= 9 {
		t.Errorf("dials = %d, concurrent reconnects were not shared", got)
	}
}

func TestReconnectDialError(t *testing.T) {
	fail := errors.New("no route to host")
	calls := 0

	conn, err := Open(Config{URI: "mongodb://localhost:27017", Database: "testdb"},
		WithDialer(func(opts *options.ClientOptions) (*mongo.Client, error) {
			calls++
			if calls > 1 {
				return nil, fail
			}
			return mongo.Connect(opts)
		}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	before := conn.Client()
	if err := conn.Reconnect(context.Background()); !errors.Is(err, fail) {
		t.Errorf("Reconnect() error = %v, want %v", err, fail)
	}
	if conn.Client() != before {
		t.Error("a failed reconnect must keep the old client")
	}
}

func TestOpenNeedsDatabase(t *testing.T) {
	if _, err := Open(Config{URI: "mongodb://localhost:27017"}); err == nil {
		t.Error("Open() expected an error without a database")
	}
}

// TestOpenDefaultDialer tests Open and Reconnect through the driver's own
// connect
func TestOpenDefaultDialer(t *testing.T) {
	conn, err := Open(Config{URI: "mongodb://localhost:27017", Database: "testdb"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	if conn.dial == nil {
		t.Fatal("Open() left the connector without a dialer")
	}

	first := conn.Client()
	if err := conn.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if conn.Client() == first {
		t.Error("Reconnect() did not replace the client")
	}
}
