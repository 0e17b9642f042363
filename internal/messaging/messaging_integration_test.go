//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestRabbitMQPublishReceiveColorizeTask(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	})

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	publisher, err := NewRabbitMQPublisher(url)
	require.NoError(t, err)
	defer publisher.Close()

	receiver, err := NewRabbitMQReceiver(url, 2)
	require.NoError(t, err)
	defer receiver.Close()

	require.NoError(t, publisher.PublishColorizeTask(ctx, ColorizeTaskPayload{JobId: "job-123"}))

	select {
	case task := <-receiver.Tasks():
		assert.Equal(t, ColorizeQueue, task.Type())

		var payload ColorizeTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, "job-123", payload.JobId)
		assert.NoError(t, task.Ack())
	case <-ctx.Done():
		t.Fatal("timed out waiting for colorize task")
	}
}
