package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/memory"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Send(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []NotificationKind{}
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

func (n *recordingNotifier) last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type stubIssuer struct{}

func (stubIssuer) Issue(p model.Principal) (string, time.Time, error) {
	return string(p.Kind) + ":" + p.SubjectID, p.IssuedAt.Add(time.Hour), nil
}

func nullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func seedProduct(t *testing.T, store *memory.Store, name string, price string, stock int64, unlimited bool) model.Product {
	t.Helper()
	p, err := store.Products().Create(context.Background(), model.Product{
		Name:      name,
		Price:     decimal.RequireFromString(price),
		ImageURL:  "https://img.example.com/" + name + ".png",
		Stock:     stock,
		Unlimited: unlimited,
		IsActive:  true,
	})
	require.NoError(t, err)
	return p
}

func seedUser(t *testing.T, store *memory.Store, id string, email string) {
	t.Helper()
	require.NoError(t, store.Users().Create(context.Background(), &model.User{ID: id, Email: email}))
}

func httpStatus(err error) int {
	if he, ok := AsHTTPError(err); ok {
		return he.Status
	}
	return 0
}
