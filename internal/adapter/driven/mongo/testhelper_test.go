package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// setupTestDB connects to the server named by REPOSCAN_TEST_MONGO_URI and
// switches to a database unique to the test, dropped on cleanup. The test is
// skipped when no server is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	uri := os.Getenv("REPOSCAN_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("REPOSCAN_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect test mongo: %v", err)
	}

	name := fmt.Sprintf("reposcan_test_%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), time.Now().UnixNano())
	if len(name) > 60 {
		name = name[len(name)-60:]
	}
	db.db = db.client.Database(name)
	if err := db.ensureIndexes(ctx); err != nil {
		_ = db.Close(ctx)
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.db.Drop(ctx)
		_ = db.Close(ctx)
	})

	return db
}
