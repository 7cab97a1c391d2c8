package message_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ayl/internal/message"
)

func newCodec() (*message.Codec, *[]string) {
	var calls []string
	r := message.NewRegistry()
	r.Register("report.build", func(ctx context.Context, args json.RawMessage) error {
		calls = append(calls, string(args))
		return nil
	})
	return message.NewCodec(r, message.DefaultPolicy()), &calls
}

func TestCodec_Decode(t *testing.T) {
	codec, calls := newCodec()

	msg, err := codec.Decode([]byte(`{"type":"ayl","handler":"report.build","args":{"id":7},"failed_job_handler":"decay","decay_threshold":2,"decay_delay":20}`))
	require.NoError(t, err)

	assert.Equal(t, "report.build", msg.Handler)
	assert.Equal(t, message.ActionDecay, msg.Policy.OnFailure)
	assert.Equal(t, 2, msg.Policy.DecayThreshold)
	assert.Equal(t, 20*time.Second, msg.Policy.DecayDelay)
	// Unset fields come from the defaults
	assert.Equal(t, message.RetryAttempts, msg.Policy.RetryMode)
	assert.Equal(t, message.DefaultMaxAge, msg.Policy.MaxAge)

	require.NoError(t, msg.Execute(context.Background()))
	assert.Equal(t, []string{`{"id":7}`}, *calls)
}

func TestCodec_Decode_Unrecoverable(t *testing.T) {
	codec, _ := newCodec()

	tests := []struct {
		name string
		body string
	}{
		{"Not JSON", `this is not json`},
		{"Not An Object", `"a string"`},
		{"Unknown Type", `{"type":"junk","handler":"report.build"}`},
		{"Missing Handler", `{"type":"ayl"}`},
		{"Unregistered Handler", `{"type":"ayl","handler":"nope"}`},
		{"Invalid Policy", `{"type":"ayl","handler":"report.build","failed_job_handler":"explode"}`},
		{"Null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := codec.Decode([]byte(tt.body))
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, message.ErrUnrecoverable), "got %v", err)
		})
	}
}

func TestCodec_EncodeRoundTrip(t *testing.T) {
	codec, _ := newCodec()

	m := message.New("report.build", json.RawMessage(`{"id":1}`))
	m.Policy = message.Policy{OnFailure: message.ActionDecay, DecayDelay: 15 * time.Second}

	body, err := codec.Encode(m)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "ayl", wire["type"])
	assert.Equal(t, "decay", wire["failed_job_handler"])
	assert.Equal(t, float64(15), wire["decay_delay"])

	decoded, err := codec.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, message.ActionDecay, decoded.Policy.OnFailure)
	assert.Equal(t, 3, decoded.Policy.DecayThreshold)
}

func TestCodec_Encode_MissingHandler(t *testing.T) {
	codec, _ := newCodec()
	_, err := codec.Encode(&message.Message{})
	assert.Error(t, err)
}

func TestMessage_ExecuteUnbound(t *testing.T) {
	m := message.New("report.build", nil)
	err := m.Execute(context.Background())
	assert.True(t, errors.Is(err, message.ErrUnrecoverable))
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  message.Policy
		wantErr bool
	}{
		{"Default", message.DefaultPolicy(), false},
		{"Zero Threshold", message.Policy{OnFailure: message.ActionDecay, RetryMode: message.RetryAttempts}, true},
		{"Unknown Mode", message.Policy{OnFailure: message.ActionDecay, DecayThreshold: 1, RetryMode: "never"}, true},
		{"Negative Delay", message.Policy{OnFailure: message.ActionBury, DecayThreshold: 1, RetryMode: message.RetryAge, DecayDelay: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_Names(t *testing.T) {
	r := message.NewRegistry()
	r.Register("b", nil)
	r.Register("a", nil)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}
