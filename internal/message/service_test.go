package message

import (
	"context"
	"testing"

	dbpkg "github.com/plugbot/plugbot/internal/db"
	"github.com/plugbot/plugbot/internal/db/sqlc"
)

type fakeQueries struct {
	created []sqlc.CreateMessageParams
	list    sqlc.ListConversationMessagesParams
	rows    []sqlc.Message
}

func (f *fakeQueries) CreateMessage(_ context.Context, arg sqlc.CreateMessageParams) (sqlc.Message, error) {
	f.created = append(f.created, arg)
	return sqlc.Message{
		ID:                arg.ID,
		ConversationID:    arg.ConversationID,
		Role:              arg.Role,
		Content:           arg.Content,
		DifyMessageID:     arg.DifyMessageID,
		PlatformMessageID: arg.PlatformMessageID,
		TokensUsed:        arg.TokensUsed,
		Metadata:          arg.Metadata,
	}, nil
}

func (f *fakeQueries) ListConversationMessages(_ context.Context, arg sqlc.ListConversationMessagesParams) ([]sqlc.Message, error) {
	f.list = arg
	return f.rows, nil
}

const conversationID = "0d6f1a52-3e7b-4b8e-8f0c-7c2a9d4e5f60"

func TestPersistWritesOneRow(t *testing.T) {
	t.Parallel()

	q := &fakeQueries{}
	svc := NewService(nil, q)
	tokens := int32(42)
	msg, err := svc.Persist(context.Background(), PersistInput{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        "Hello",
		DifyMessageID:  "m1",
		TokensUsed:     &tokens,
		Metadata:       map[string]any{"files": 1},
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(q.created) != 1 {
		t.Fatalf("expected one insert, got %d", len(q.created))
	}
	arg := q.created[0]
	if arg.PlatformMessageID.Valid {
		t.Fatalf("empty platform id should be NULL")
	}
	if string(arg.Metadata) != `{"files":1}` {
		t.Fatalf("unexpected metadata %s", arg.Metadata)
	}
	if msg.DifyMessageID != "m1" || msg.TokensUsed == nil || *msg.TokensUsed != 42 || msg.ConversationID != conversationID {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPersistRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeQueries{})
	if _, err := svc.Persist(context.Background(), PersistInput{ConversationID: conversationID, Role: "system"}); err == nil {
		t.Fatalf("expected role error")
	}
	if _, err := svc.Persist(context.Background(), PersistInput{ConversationID: "nope", Role: RoleUser}); err == nil {
		t.Fatalf("expected id error")
	}
}

func TestListDefaultsLimit(t *testing.T) {
	t.Parallel()

	q := &fakeQueries{rows: []sqlc.Message{{ID: dbpkg.NewUUID(), Role: RoleUser, Content: "hi", Metadata: []byte(`{}`)}}}
	svc := NewService(nil, q)
	msgs, err := svc.List(context.Background(), conversationID, 0, -1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if q.list.Limit != 100 || q.list.Offset != 0 {
		t.Fatalf("unexpected paging %+v", q.list)
	}
	if len(msgs) != 1 || msgs[0].Metadata != nil {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
