package ws

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Icerzack/wordlobby/internal/models"
)

func TestEncodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
		want  string
	}{
		{
			name:  "member added",
			event: models.MemberAdded{UserID: "u1", UserName: "alice"},
			want:  `{"op":"add_member","user_id":"u1","user_name":"alice"}`,
		},
		{
			name:  "member removed",
			event: models.MemberRemoved{UserID: "u1"},
			want:  `{"op":"delete_member","user_id":"u1"}`,
		},
		{
			name:  "config",
			event: models.ConfigUpdated{Config: models.GameConfig{InitTime: 12}},
			want:  `{"op":"config","config":{"init_time":12}}`,
		},
		{
			name:  "start",
			event: models.GameStarted{FirstTurn: "u1"},
			want:  `{"op":"start"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeEvent(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestMessageDefiner(t *testing.T) {
	op, err := messageDefiner([]byte(`{"op":"start"}`))
	require.NoError(t, err)
	assert.Equal(t, OpStart, op)

	_, err = messageDefiner([]byte(`not json`))
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = messageDefiner([]byte(`{"data":1}`))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestClient_SlowClientIsShutDown(t *testing.T) {
	c := newClient("123456", "u1")
	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Send(models.MemberRemoved{UserID: "u2"}))
	}

	require.ErrorIs(t, c.Send(models.MemberRemoved{UserID: "u2"}), ErrSlowClient)
	require.ErrorIs(t, c.Send(models.MemberRemoved{UserID: "u2"}), ErrClientClosed)

	// Not attached yet: close must not wait for a writer.
	c.close()
}

func TestParseBearer(t *testing.T) {
	token, ok := ParseBearer("Bearer abc")
	require.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = ParseBearer("bearer abc")
	require.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc"} {
		_, ok := ParseBearer(header)
		assert.False(t, ok, header)
	}
}

func TestBearerTokenFallsBackToQuery(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/room-ws/1?token=xyz", nil)
	require.NoError(t, err)
	assert.Equal(t, "xyz", bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", bearerToken(r))
}
