package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/vidrag-backend/internal/data/repos/testutil"
	"github.com/yungbote/vidrag-backend/internal/domain/chat"
	"github.com/yungbote/vidrag-backend/internal/pkg/dbctx"
)

func TestConversationRepoMessages(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewConversationRepo(db, testutil.Logger(t))
	profile := uuid.New()

	conv, err := repo.Create(dbc, &chat.Conversation{ProfileID: profile, Title: "notes"})
	require.NoError(t, err)

	base := time.Now().UTC()
	require.NoError(t, repo.AppendMessages(dbc,
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "q1", CreatedAt: base},
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "a1", CreatedAt: base.Add(time.Second)},
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "q2", CreatedAt: base.Add(2 * time.Second)},
	))

	msgs, err := repo.ListMessages(dbc, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	if msgs[0].Content != "a1" || msgs[1].Content != "q2" {
		t.Fatalf("order: want=[a1 q2] got=[%s %s]", msgs[0].Content, msgs[1].Content)
	}

	if _, err := repo.GetByID(dbc, uuid.New(), conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other profile: want ErrNotFound got=%v", err)
	}
}

func TestAppendMessagesOrdersBySequenceNotClock(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: testutil.Tx(t, db)}
	repo := NewConversationRepo(db, testutil.Logger(t))

	conv, err := repo.Create(dbc, &chat.Conversation{ProfileID: uuid.New()})
	require.NoError(t, err)

	// Turn two's question was received before turn one's answer was stamped.
	base := time.Now().UTC()
	require.NoError(t, repo.AppendMessages(dbc,
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "q1", CreatedAt: base},
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "a1", CreatedAt: base.Add(2 * time.Millisecond)},
	))
	require.NoError(t, repo.AppendMessages(dbc,
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "q2", CreatedAt: base.Add(time.Millisecond)},
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "a2", CreatedAt: base.Add(3 * time.Millisecond)},
	))

	msgs, err := repo.ListMessages(dbc, conv.ID, 0)
	require.NoError(t, err)
	var got []string
	for i, m := range msgs {
		got = append(got, m.Content)
		if m.Seq != int64(i+1) {
			t.Fatalf("seq[%d]: want=%d got=%d", i, i+1, m.Seq)
		}
	}
	if strings.Join(got, ",") != "q1,a1,q2,a2" {
		t.Fatalf("order: want=q1,a1,q2,a2 got=%v", got)
	}

	stored, err := repo.GetByID(dbc, conv.ProfileID, conv.ID)
	require.NoError(t, err)
	if stored.MessageSeq != 4 {
		t.Fatalf("message_seq: want=4 got=%d", stored.MessageSeq)
	}

	err = repo.AppendMessages(dbc, &chat.Message{ConversationID: uuid.New(), Role: chat.RoleUser, Content: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown conversation: want ErrNotFound got=%v", err)
	}
	err = repo.AppendMessages(dbc,
		&chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "x"},
		&chat.Message{ConversationID: uuid.New(), Role: chat.RoleAssistant, Content: "y"},
	)
	if err == nil {
		t.Fatalf("mixed conversations: want error")
	}
}
