package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"scorelink/internal/errors"
	"scorelink/internal/models"
)

func strPtr(s string) *string { return &s }

func TestResultRoundTrip(t *testing.T) {
	in := models.MatchResult{
		CreatedAt:       1718000000000,
		DurationSeconds: 3725,
		FinalScoreText:  "2-1",
		SetScoresText:   strPtr("6-4 3-6 7-5"),
		IdempotencyKey:  "7f9c2a4e-5d1b-4c8e-9a3f-1b2c3d4e5f60",
	}

	out, err := DecodeResult(EncodeResult(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeResult_OmitsBlankSetScores(t *testing.T) {
	in := models.MatchResult{CreatedAt: 1, FinalScoreText: "1-0", SetScoresText: strPtr(""), IdempotencyKey: "k"}

	out, err := DecodeResult(EncodeResult(in))
	require.NoError(t, err)
	assert.Nil(t, out.SetScoresText)
}

func TestDecodeResult_MissingNumbersAreNegative(t *testing.T) {
	b := appendString(nil, resultFinalScoreText, "1-0")

	out, err := DecodeResult(b)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), out.CreatedAt)
	assert.Equal(t, int64(-1), out.DurationSeconds)

	_, err = ValidateResult(out)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedPayload))
}

func TestDecodeResult_SkipsUnknownFields(t *testing.T) {
	in := models.MatchResult{CreatedAt: 5, DurationSeconds: 6, FinalScoreText: "3-0", IdempotencyKey: "abc"}
	b := EncodeResult(in)
	b = protowire.AppendTag(b, 42, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)
	b = appendString(b, 43, "future field")

	out, err := DecodeResult(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeResult_Garbage(t *testing.T) {
	_, err := DecodeResult([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrDecode)

	// length prefix runs past the end of the buffer
	b := protowire.AppendTag(nil, resultFinalScoreText, protowire.BytesType)
	b = protowire.AppendVarint(b, 50)
	b = append(b, 'x')
	_, err = DecodeResult(b)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestAckRoundTrip(t *testing.T) {
	in := models.AckMessage{IdempotencyKey: "key-1", Status: models.AckStatusOK}

	out, err := DecodeAck(EncodeAck(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeAck_Empty(t *testing.T) {
	out, err := DecodeAck(nil)
	require.NoError(t, err)
	assert.Empty(t, out.IdempotencyKey)
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"message", Frame{Path: "/match_finished", SourceNodeID: "watch", Data: []byte{1, 2, 3}}},
		{"hello", Frame{Type: FrameHello, SourceNodeID: "phone"}},
		{"empty data", Frame{Path: "/match_finished_ack", SourceNodeID: "phone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeFrame(EncodeFrame(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.frame, out)
		})
	}
}

func TestValidateResult(t *testing.T) {
	valid := models.MatchResult{CreatedAt: 1, DurationSeconds: 0, FinalScoreText: "2-0", IdempotencyKey: "k"}

	tests := []struct {
		name    string
		mutate  func(r *models.MatchResult)
		wantErr bool
	}{
		{"valid", func(r *models.MatchResult) {}, false},
		{"zero createdAt", func(r *models.MatchResult) { r.CreatedAt = 0 }, true},
		{"negative duration", func(r *models.MatchResult) { r.DurationSeconds = -3 }, true},
		{"blank score", func(r *models.MatchResult) { r.FinalScoreText = "   " }, true},
		{"blank key", func(r *models.MatchResult) { r.IdempotencyKey = "" }, true},
		{"long key", func(r *models.MatchResult) { r.IdempotencyKey = string(make([]byte, 200)) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			_, err := ValidateResult(r)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedPayload))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateResult_NormalizesSetScores(t *testing.T) {
	r := models.MatchResult{CreatedAt: 1, FinalScoreText: " 2-0 ", IdempotencyKey: "k", SetScoresText: strPtr("  ")}

	out, err := ValidateResult(r)
	require.NoError(t, err)
	assert.Nil(t, out.SetScoresText)
	assert.Equal(t, "2-0", out.FinalScoreText)

	r.SetScoresText = strPtr(" 6-3 6-2 ")
	out, err = ValidateResult(r)
	require.NoError(t, err)
	require.NotNil(t, out.SetScoresText)
	assert.Equal(t, "6-3 6-2", *out.SetScoresText)
}
