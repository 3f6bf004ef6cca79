package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coffeeshop/shop/internal/cache"
	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/redis/go-redis/v9"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gotest.tools/v3/assert"
)

func setupTestRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	c := cache.NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return c, mr, cleanup
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func productMessage(t *testing.T, eventType, productID string) kafkaGo.Message {
	ev := events.NewProductEvent(eventType, productID, events.ProductPayload{ProductID: productID})
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafkaGo.Message{
		Key:     []byte(productID),
		Value:   value,
		Headers: []kafkaGo.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
}

func TestHandleMessage(t *testing.T) {
	c, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	p := &Poller{cache: c, logger: discardLogger()}

	product := &domain.Product{ID: primitive.NewObjectID(), Name: "Peru", Price: 360}
	key := "product:" + product.ID.Hex()

	t.Run("created events keep the cache", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, product))
		p.handleMessage(ctx, productMessage(t, events.ProductCreated, product.ID.Hex()))
		assert.Assert(t, mr.Exists(key))
	})

	t.Run("updated events evict", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, product))
		p.handleMessage(ctx, productMessage(t, events.ProductUpdated, product.ID.Hex()))
		assert.Assert(t, !mr.Exists(key))
	})

	t.Run("deleted events evict", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, product))
		p.handleMessage(ctx, productMessage(t, events.ProductDeleted, product.ID.Hex()))
		assert.Assert(t, !mr.Exists(key))
	})

	t.Run("garbage is ignored", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, product))
		p.handleMessage(ctx, kafkaGo.Message{Value: []byte("{nope")})
		assert.Assert(t, mr.Exists(key))
	})
}

type stubReader struct {
	msgs []kafkaGo.Message
}

func (s *stubReader) ReadMessage(ctx context.Context) (kafkaGo.Message, error) {
	if len(s.msgs) == 0 {
		<-ctx.Done()
		return kafkaGo.Message{}, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func (s *stubReader) Close() error { return nil }

func TestRun_StopsOnCancel(t *testing.T) {
	c, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	product := &domain.Product{ID: primitive.NewObjectID(), Name: "Brazil", Price: 290}
	require.NoError(t, c.Set(ctx, product))

	p := &Poller{
		reader: &stubReader{msgs: []kafkaGo.Message{productMessage(t, events.ProductDeleted, product.ID.Hex())}},
		cache:  c,
		logger: discardLogger(),
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := c.Get(context.Background(), product.ID.Hex())
		return errors.Is(err, cache.ErrCacheMiss)
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

type failingReader struct {
	err   error
	reads atomic.Int32
}

func (f *failingReader) ReadMessage(context.Context) (kafkaGo.Message, error) {
	f.reads.Add(1)
	return kafkaGo.Message{}, f.err
}

func (f *failingReader) Close() error { return nil }

func startRun(ctx context.Context, p *Poller) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	return done
}

func TestRun_StopsWhenReaderClosed(t *testing.T) {
	reader := &failingReader{err: io.EOF}
	p := &Poller{reader: reader, logger: discardLogger(), backoff: time.Hour}

	select {
	case <-startRun(context.Background(), p):
	case <-time.After(time.Second):
		t.Fatal("poller kept reading a closed reader")
	}
	assert.Equal(t, int32(1), reader.reads.Load())
}

func TestRun_BacksOffOnReadErrors(t *testing.T) {
	reader := &failingReader{err: errors.New("broker unreachable")}
	p := &Poller{reader: reader, logger: discardLogger(), backoff: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := startRun(ctx, p)
	time.Sleep(175 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	reads := reader.reads.Load()
	assert.Assert(t, reads >= 2, "reads=%d", reads)
	assert.Assert(t, reads <= 5, "reads=%d", reads)
}

func TestPoller_Kafka(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _, cleanupRedis := setupTestRedis(t)
	defer cleanupRedis()
	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	createTopic(t, brokers, events.ProductTopic)

	product := &domain.Product{ID: primitive.NewObjectID(), Name: "Kenya AA", Price: 345}
	require.NoError(t, c.Set(ctx, product))

	publisher := events.NewKafkaPublisher(discardLogger(), brokers)
	err := publisher.Publish(ctx, events.NewProductEvent(events.ProductUpdated, product.ID.Hex(),
		events.ProductPayload{ProductID: product.ID.Hex(), Name: product.Name, Price: 350}))
	require.NoError(t, err)
	require.NoError(t, publisher.Close())

	poller := NewPoller(c, discardLogger(), brokers)
	defer poller.Close()
	go poller.Run(ctx)

	require.Eventually(t, func() bool {
		_, errGet := c.Get(ctx, product.ID.Hex())
		return errors.Is(errGet, cache.ErrCacheMiss)
	}, 15*time.Second, 500*time.Millisecond)
}
