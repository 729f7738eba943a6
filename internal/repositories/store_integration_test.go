package repositories_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"chat-gateway/internal/db"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
)

func testStores(t *testing.T) map[string]repositories.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores := map[string]repositories.Store{}
	if uri := os.Getenv("MONGODB_TEST_URI"); uri != "" {
		mdb, err := db.ConnectMongo(ctx, uri, "chat_gateway_test_"+primitive.NewObjectID().Hex())
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = mdb.Drop(context.Background())
			_ = mdb.Client().Disconnect(context.Background())
		})
		stores["mongo"] = repositories.NewMongoStore(mdb)
	}
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		sdb, err := db.Connect(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { sdb.Close() })
		stores["postgres"] = repositories.NewPostgresStore(sdb)
	}
	if len(stores) == 0 {
		t.Skip("MONGODB_TEST_URI / POSTGRES_TEST_DSN not set")
	}
	return stores
}

func newID() string { return primitive.NewObjectID().Hex() }

func TestStoreDirectConversationIsDeduplicated(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, b := newID(), newID()

			var wg sync.WaitGroup
			ids := make([]string, 8)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					creator, other := a, b
					if i%2 == 1 {
						creator, other = b, a
					}
					conv, _, err := store.Conversations.CreateOrGetDirect(ctx, creator, other, "")
					assert.NoError(t, err)
					ids[i] = conv.ID
				}(i)
			}
			wg.Wait()
			for _, id := range ids {
				assert.Equal(t, ids[0], id)
			}

			_, _, err := store.Conversations.CreateOrGetDirect(ctx, a, a, "")
			assert.ErrorIs(t, err, repositories.ErrSelfConversation)
		})
	}
}

func TestStoreMessageLifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, b, c := newID(), newID(), newID()
			conv, err := store.Conversations.CreateGroup(ctx, a, []string{a, b, c}, "team")
			require.NoError(t, err)

			ok, err := store.Conversations.IsParticipant(ctx, conv.ID, b)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = store.Conversations.IsParticipant(ctx, conv.ID, newID())
			require.NoError(t, err)
			assert.False(t, ok)

			base := time.Now().UTC().Add(-time.Minute)
			var ids []string
			for i := 0; i < 3; i++ {
				msg, err := store.Messages.CreateMessage(ctx, models.NewMessage{
					ConversationID: conv.ID,
					SenderID:       a,
					Content:        "hello",
					CreatedAt:      base.Add(time.Duration(i) * time.Second),
				})
				require.NoError(t, err)
				assert.Equal(t, models.StatusSent, msg.Status)
				require.Len(t, msg.ReadBy, 1)
				assert.Equal(t, a, msg.ReadBy[0].UserID)
				ids = append(ids, msg.ID)
			}
			require.NoError(t, store.Conversations.TouchLastMessage(ctx, conv.ID, ids[2], base.Add(3*time.Second)))

			page, err := store.Messages.ListPage(ctx, conv.ID, 2, 0)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, ids[1], page[0].ID)
			assert.Equal(t, ids[2], page[1].ID)

			n, err := store.Messages.MarkDelivered(ctx, conv.ID, []string{ids[0]})
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			n, err = store.Messages.MarkRead(ctx, conv.ID, b, time.Now())
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)

			n, err = store.Messages.MarkRead(ctx, conv.ID, b, time.Now())
			require.NoError(t, err)
			assert.EqualValues(t, 0, n)

			n, err = store.Messages.MarkRead(ctx, conv.ID, a, time.Now())
			require.NoError(t, err)
			assert.EqualValues(t, 0, n)

			msg, err := store.Messages.GetMessage(ctx, ids[0])
			require.NoError(t, err)
			assert.Equal(t, models.StatusRead, msg.Status)
			assert.Len(t, msg.ReadBy, 2)

			assert.ErrorIs(t, store.Conversations.DeleteForParticipant(ctx, conv.ID, newID()), repositories.ErrConversationNotFound)
			require.NoError(t, store.Conversations.DeleteForParticipant(ctx, conv.ID, c))
			_, err = store.Conversations.GetConversation(ctx, conv.ID)
			assert.ErrorIs(t, err, repositories.ErrConversationNotFound)
		})
	}
}
