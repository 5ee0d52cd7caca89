package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const pendingChannel = "wfnet_pending"

// notificationListener holds a dedicated connection listening for pending work notifications.
type notificationListener struct {
	dsn    string
	logger *slog.Logger

	notify chan struct{}
}

func newNotificationListener(dsn string, logger *slog.Logger) *notificationListener {
	return &notificationListener{
		dsn:    dsn,
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

// Start connects and begins listening. The listener stops and closes its channel when ctx is canceled.
func (nl *notificationListener) Start(ctx context.Context) error {
	conn, err := nl.listen(ctx)
	if err != nil {
		return err
	}

	go nl.run(ctx, conn)

	return nil
}

func (nl *notificationListener) listen(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, nl.dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting listener: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pendingChannel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("listening to %s: %w", pendingChannel, err)
	}

	return conn, nil
}

func (nl *notificationListener) run(ctx context.Context, conn *pgx.Conn) {
	defer close(nl.notify)
	defer func() {
		if conn != nil {
			conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}

			c, err := nl.listen(ctx)
			if err != nil {
				nl.logger.Error("reconnecting pending work listener", "error", err)
				continue
			}
			conn = c
		}

		if _, err := conn.WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			nl.logger.Error("waiting for pending work notification", "error", err)
			conn.Close(context.Background())
			conn = nil
			continue
		}

		// Non-blocking, one signal covers any number of notifications
		select {
		case nl.notify <- struct{}{}:
		default:
		}
	}
}
