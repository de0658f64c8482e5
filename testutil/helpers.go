package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/kbukum/crossmatch/component"
	"github.com/kbukum/crossmatch/database"
	"github.com/kbukum/crossmatch/store"
)

// THelper ties component lifecycles to a test.
type THelper struct {
	t   testing.TB
	ctx context.Context
}

// T wraps t.
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: context.Background()}
}

// WithContext sets the context components are started and stopped with.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// Setup starts c and stops it when the test ends. A start failure fails
// the test at once.
func (h *THelper) Setup(c component.Component) {
	h.t.Helper()
	if err := c.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start component %s: %v", c.Name(), err)
	}
	h.t.Cleanup(func() {
		if err := c.Stop(context.WithoutCancel(h.ctx)); err != nil {
			h.t.Errorf("failed to stop component %s: %v", c.Name(), err)
		}
	})
}

// StoreConfig is the database config of an in-memory SQLite store private
// to the test.
func StoreConfig(t testing.TB) database.Config {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return database.Config{
		Enabled:     true,
		Driver:      database.DriverSQLite,
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxRetries:  1,
		AutoMigrate: true,
		LogLevel:    "silent",
	}
}

// OpenStore starts a database component on a fresh in-memory store with
// every crossmatch table migrated.
func OpenStore(t testing.TB) *gorm.DB {
	t.Helper()
	c := database.NewComponent(StoreConfig(t)).WithAutoMigrate(store.Models()...)
	T(t).Setup(c)
	return c.DB().GormDB
}
