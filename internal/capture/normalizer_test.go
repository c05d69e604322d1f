package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbscratchstudios/splat/internal/message"
	"github.com/cubbscratchstudios/splat/internal/wordfilter"
)

var (
	created0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
)

func newTestNormalizer(terms ...string) *Normalizer {
	return newFilteredNormalizer(wordfilter.Config{Terms: terms})
}

func newFilteredNormalizer(cfg wordfilter.Config) *Normalizer {
	filter, err := wordfilter.New(cfg)
	if err != nil {
		panic(err)
	}
	n := NewNormalizer(filter)
	n.now = func() time.Time { return fixedNow }
	return n
}

func createEvent(content string) RawEvent {
	return RawEvent{
		Kind:           KindCreate,
		GuildID:        "g1",
		ConversationID: "c1",
		MessageID:      "m1",
		Author:         &RawAuthor{ID: "u1", Username: "alice", GlobalName: "Alice", AvatarURL: "https://cdn.example/a.png"},
		Content:        content,
		Timestamp:      created0,
	}
}

func TestNormalizeCreate(t *testing.T) {
	t.Parallel()

	raw := createEvent("hello")
	raw.ReplyTo = "m0"
	raw.Segments = []string{"", "embed text"}
	raw.Attachments = []message.Attachment{
		{ID: "a1", URL: "https://cdn.example/f.png", Filename: "f.png", ContentType: "image/png", Size: 10},
		{ID: "a2", Filename: "no-url.txt"},
	}
	msg, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, message.StatusActive, msg.Status)
	assert.Equal(t, []string{"hello", "embed text"}, msg.Body)
	assert.Equal(t, "Alice", msg.Author.DisplayName)
	assert.Equal(t, "m0", msg.ReplyTo)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, message.AttachmentImage, msg.Attachments[0].Type)
	assert.True(t, msg.CapturedAt.Equal(created0))
	assert.True(t, msg.LastModifiedAt.Equal(created0))
	assert.Empty(t, msg.FlaggedTerm)
}

func TestNormalizeCreateWithoutAttachmentsIsEmpty(t *testing.T) {
	t.Parallel()

	msg, err := newTestNormalizer().Normalize(createEvent(""))
	require.NoError(t, err)
	assert.NotNil(t, msg.Attachments)
	assert.Equal(t, []string{""}, msg.Body)
}

func TestNormalizeEditKeepsUnreportedAttachments(t *testing.T) {
	t.Parallel()

	raw := createEvent("edited")
	raw.Kind = KindEdit
	raw.EditedAt = created0.Add(time.Minute)
	msg, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, message.StatusEdited, msg.Status)
	assert.Nil(t, msg.Attachments)
	assert.True(t, msg.LastModifiedAt.Equal(created0.Add(time.Minute)))
	assert.True(t, msg.CapturedAt.Equal(created0))
}

func TestNormalizeDeleteWithoutAuthor(t *testing.T) {
	t.Parallel()

	msg, err := newTestNormalizer().Normalize(RawEvent{Kind: KindDelete, ConversationID: "c1", MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, message.StatusDeleted, msg.Status)
	assert.True(t, msg.Author.IsZero())
	assert.True(t, msg.DeletedAt.Equal(fixedNow))
}

func TestNormalizeDeleteWithoutContentLeavesBodyUnreported(t *testing.T) {
	t.Parallel()

	raw := createEvent("")
	raw.Kind = KindDelete
	msg, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Nil(t, msg.Body)
	assert.Nil(t, msg.Attachments)

	raw.Content = "cached text"
	msg, err = newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"cached text"}, msg.Body)
}

func TestNormalizeFlagsWithoutAlteringText(t *testing.T) {
	t.Parallel()

	msg, err := newTestNormalizer("spam").Normalize(createEvent("this is SPAM"))
	require.NoError(t, err)
	assert.Equal(t, "spam", msg.FlaggedTerm)
	assert.Equal(t, "this is SPAM", msg.Text())
}

func TestNormalizeSkipsFilterForIgnoredScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ignore wordfilter.Ignore
		want   string
	}{
		{name: "not ignored", ignore: wordfilter.Ignore{Users: []string{"u9"}}, want: "spam"},
		{name: "ignored user", ignore: wordfilter.Ignore{Users: []string{"u1"}}},
		{name: "ignored channel", ignore: wordfilter.Ignore{Channels: []string{"c1"}}},
		{name: "ignored guild", ignore: wordfilter.Ignore{Guilds: []string{"g1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := newFilteredNormalizer(wordfilter.Config{Terms: []string{"spam"}, Ignore: tt.ignore})
			msg, err := n.Normalize(createEvent("this is SPAM"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.FlaggedTerm)
			assert.Equal(t, "this is SPAM", msg.Text())
		})
	}
}

func TestNormalizeDropsBytesTheStoreRejects(t *testing.T) {
	t.Parallel()

	raw := createEvent("hi\x00 there \xff")
	raw.Segments = []string{"\x00"}
	raw.Author.GlobalName = "Al\x00ice"
	raw.Attachments = []message.Attachment{{URL: "https://cdn.example/f.png", Filename: "f\x00.png"}}
	msg, err := newTestNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi there \uFFFD"}, msg.Body)
	assert.Equal(t, "Alice", msg.Author.DisplayName)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "f.png", msg.Attachments[0].Filename)
}

func TestNormalizeErrors(t *testing.T) {
	t.Parallel()

	noAuthor := createEvent("x")
	noAuthor.Author = nil
	blankAuthor := createEvent("x")
	blankAuthor.Author = &RawAuthor{Username: "ghost"}
	noMessage := createEvent("x")
	noMessage.MessageID = " "
	noConversation := createEvent("x")
	noConversation.ConversationID = ""
	reaction := createEvent("")
	reaction.Kind = KindReaction

	tests := []struct {
		name string
		raw  RawEvent
		want error
	}{
		{name: "missing author", raw: noAuthor, want: ErrMissingAuthor},
		{name: "author without id", raw: blankAuthor, want: ErrMissingAuthor},
		{name: "missing message id", raw: noMessage, want: ErrMissingMessageID},
		{name: "missing conversation", raw: noConversation, want: ErrMissingConversation},
		{name: "reaction", raw: reaction, want: ErrUnsupportedEvent},
		{name: "unknown kind", raw: RawEvent{Kind: "pin", ConversationID: "c", MessageID: "m"}, want: ErrUnsupportedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestNormalizer().Normalize(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			var normErr *NormalizationError
			require.True(t, errors.As(err, &normErr))
			assert.Equal(t, tt.raw.Kind, normErr.Kind)
			assert.True(t, IsNormalizationError(err))
		})
	}
}

func TestRawAuthorDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "nick", RawAuthor{Username: "user", GlobalName: "global", Nick: "nick"}.DisplayName())
	assert.Equal(t, "global", RawAuthor{Username: "user", GlobalName: "global"}.DisplayName())
	assert.Equal(t, "user", RawAuthor{Username: "user"}.DisplayName())
}
