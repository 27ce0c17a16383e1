// Package notify delivers out-of-band notifications (OTP mail, order events).
//
// Delivery is best effort: Async hands the message to a background goroutine and
// only logs failures.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront/internal/usecase"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
)

// NSQSender は通知をNSQトピックへ流す（メール送信は下流のワーカー）
type NSQSender struct {
	producer *nsq.Producer
	topic    string
}

func NewNSQSender(address string, topic string) (*NSQSender, error) {
	config := nsq.NewConfig()
	producer, err := nsq.NewProducer(address, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ producer: %w", err)
	}

	//起動時に疎通確認
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to ping NSQ daemon: %w", err)
	}

	return &NSQSender{producer: producer, topic: topic}, nil
}

func (s *NSQSender) Send(ctx context.Context, n usecase.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.producer.Publish(s.topic, body); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (s *NSQSender) Stop() {
	s.producer.Stop()
}

// LogSender はNSQが無い環境用。ログに出すだけ。
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, n usecase.Notification) error {
	s.log.WithFields(logrus.Fields{
		"kind":     n.Kind,
		"email":    n.Email,
		"order_id": n.OrderID,
	}).Info("notification")
	return nil
}

// Async は呼び出し側を待たせない。失敗はログのみ。
type Async struct {
	inner   usecase.Notifier
	log     logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(inner usecase.Notifier, log logrus.FieldLogger, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{inner: inner, log: log, timeout: timeout}
}

// Send は常にnilを返す（リクエストのctxがキャンセルされても送る）
func (a *Async) Send(_ context.Context, n usecase.Notification) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.inner.Send(ctx, n); err != nil {
			a.log.WithError(err).WithField("kind", n.Kind).Warn("notification delivery failed")
		}
	}()
	return nil
}

// Wait は送信中のものが終わるまで待つ（シャットダウン時）
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
