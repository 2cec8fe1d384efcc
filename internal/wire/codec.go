// Package wire encodes the messages exchanged between sender and peer nodes.
//
// All messages use protobuf wire format so that fields can be added later without
// breaking older nodes: decoders skip field numbers they do not know.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"scorelink/internal/models"
)

// ErrDecode is returned for bytes that are not valid wire format.
var ErrDecode = errors.New("wire: decode failed")

const (
	resultCreatedAt       protowire.Number = 1
	resultDurationSeconds protowire.Number = 2
	resultFinalScoreText  protowire.Number = 3
	resultSetScoresText   protowire.Number = 4
	resultIdempotencyKey  protowire.Number = 5

	ackIdempotencyKey protowire.Number = 1
	ackStatus         protowire.Number = 2

	frameType         protowire.Number = 1
	framePath         protowire.Number = 2
	frameSourceNodeID protowire.Number = 3
	frameData         protowire.Number = 4
)

// EncodeResult serializes a match result for the "/match_finished" path.
// A nil or blank SetScoresText is omitted.
func EncodeResult(r models.MatchResult) []byte {
	var b []byte
	b = protowire.AppendTag(b, resultCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.CreatedAt))
	b = protowire.AppendTag(b, resultDurationSeconds, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.DurationSeconds))
	b = appendString(b, resultFinalScoreText, r.FinalScoreText)
	if r.SetScoresText != nil && *r.SetScoresText != "" {
		b = appendString(b, resultSetScoresText, *r.SetScoresText)
	}
	b = appendString(b, resultIdempotencyKey, r.IdempotencyKey)
	return b
}

// DecodeResult parses a "/match_finished" payload. Missing numeric fields decode as -1
// so that validation can tell "absent" from zero.
func DecodeResult(data []byte) (models.MatchResult, error) {
	r := models.MatchResult{CreatedAt: -1, DurationSeconds: -1}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == resultCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.CreatedAt = protowire.DecodeZigZag(v)
			return n, nil
		case num == resultDurationSeconds && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.DurationSeconds = protowire.DecodeZigZag(v)
			return n, nil
		case num == resultFinalScoreText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.FinalScoreText = v
			return n, nil
		case num == resultSetScoresText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.SetScoresText = &v
			return n, nil
		case num == resultIdempotencyKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.IdempotencyKey = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return r, err
}

// EncodeAck serializes an acknowledgment for the "/match_finished_ack" path.
func EncodeAck(a models.AckMessage) []byte {
	var b []byte
	b = appendString(b, ackIdempotencyKey, a.IdempotencyKey)
	b = appendString(b, ackStatus, string(a.Status))
	return b
}

// DecodeAck parses an acknowledgment.
func DecodeAck(data []byte) (models.AckMessage, error) {
	var a models.AckMessage
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == ackIdempotencyKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			a.IdempotencyKey = v
			return n, nil
		case num == ackStatus && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			a.Status = models.AckStatus(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return a, err
}

// FrameType distinguishes link control frames from application messages.
type FrameType uint64

const (
	FrameMessage FrameType = 0
	FrameHello   FrameType = 1
)

// Frame is the envelope written on a transport link.
type Frame struct {
	Type         FrameType
	Path         string
	SourceNodeID string
	Data         []byte
}

// EncodeFrame serializes a transport frame.
func EncodeFrame(f Frame) []byte {
	var b []byte
	if f.Type != FrameMessage {
		b = protowire.AppendTag(b, frameType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Type))
	}
	b = appendString(b, framePath, f.Path)
	b = appendString(b, frameSourceNodeID, f.SourceNodeID)
	if len(f.Data) > 0 {
		b = protowire.AppendTag(b, frameData, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Data)
	}
	return b
}

// DecodeFrame parses a transport frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == frameType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Type = FrameType(v)
			return n, nil
		case num == framePath && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			f.Path = v
			return n, nil
		case num == frameSourceNodeID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			f.SourceNodeID = v
			return n, nil
		case num == frameData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				f.Data = append([]byte(nil), v...)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return f, err
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// walk iterates the fields of a message. fn consumes one field value and returns
// its length, or a negative protowire error code.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}
