package postgres

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/db/migrations"
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDB        *sql.DB
	testContainer testcontainers.Container
	skipReason    string
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	if err := setupDatabase(ctx); err != nil {
		skipReason = err.Error()
		fmt.Printf("postgres tests will be skipped: %v\n", err)
	}

	code := m.Run()

	if testDB != nil {
		_ = testDB.Close()
	}
	if testContainer != nil {
		if err := testContainer.Terminate(ctx); err != nil {
			fmt.Printf("failed to terminate postgres container: %v\n", err)
		}
	}
	os.Exit(code)
}

// setupDatabase connects to TEST_DATABASE_URL, or starts a disposable
// postgres container when it is unset.
func setupDatabase(ctx context.Context) error {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		var err error
		dsn, err = startContainer(ctx)
		if err != nil {
			return err
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		_ = db.Close()
		return err
	}
	testDB = db
	return nil
}

func startContainer(ctx context.Context) (dsn string, err error) {
	// the docker client panics when no daemon can be located
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker is not available: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test_user",
			"POSTGRES_PASSWORD": "test_password",
			"POSTGRES_DB":       "fedipub_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	testContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}
	return fmt.Sprintf("postgres://test_user:test_password@%s:%s/fedipub_test?sslmode=disable", host, port.Port()), nil
}

// setupTestDB hands out the shared database with every table emptied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testDB == nil {
		t.Skipf("no test database: %s", skipReason)
	}
	_, err := testDB.Exec(`
		TRUNCATE account_topics, topics, feeds, notifications, mentions, reposts, likes, posts,
			domain_blocks, blocks, follows, users, sites, accounts
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "Failed to truncate tables")
	return testDB
}

// recorder is an events.Emitter that keeps what it was given.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) EmitAsync(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func ofKind(list []events.Event, kind events.Kind) []events.Event {
	var out []events.Event
	for _, e := range list {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

var (
	keysOnce sync.Once
	keys     *accounts.KeyPair
)

func sharedKeys(t *testing.T) *accounts.KeyPair {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		keys, err = accounts.GenerateKeyPair()
		require.NoError(t, err)
	})
	return keys
}

// createInternal saves an internal account for host and links the site.
func createInternal(t *testing.T, repo accounts.Repository, host string) *accounts.Account {
	t.Helper()
	acc, err := accounts.NewInternalForSite(host, accounts.Profile{Username: "index", Name: host}, sharedKeys(t))
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), acc))
	require.NoError(t, repo.CreateSite(context.Background(), host, acc))
	return acc
}

// createExternal saves a remote actor on remote.example.
func createExternal(t *testing.T, repo accounts.Repository, username string) *accounts.Account {
	t.Helper()
	acc, err := accounts.NewExternal(accounts.ExternalAccountData{
		ApID:      "https://remote.example/users/" + username,
		Endpoints: accounts.Endpoints{Inbox: "https://remote.example/users/" + username + "/inbox"},
		Profile:   accounts.Profile{Username: username},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), acc))
	return acc
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
