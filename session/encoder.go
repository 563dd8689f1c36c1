package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const sessionFormatVersionCurrent = 1

// Encode writes s in the compact binary layout:
//
//	version | len8 user | len16 refresh | len8 csrf | created i64 | expires i64
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.UserID) > math.MaxUint8 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.RefreshToken) > math.MaxUint16 {
		return nil, errors.New("refresh token too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.RefreshToken))); err != nil {
		return nil, err
	}
	buf.WriteString(s.RefreshToken)

	if len(s.CSRFToken) > math.MaxUint8 {
		return nil, errors.New("csrf token too long")
	}
	buf.WriteByte(byte(len(s.CSRFToken)))
	buf.WriteString(s.CSRFToken)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode. The session ID is not part of the
// blob; callers set it from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if s.UserID, err = readString(reader, int(userLen)); err != nil {
		return nil, err
	}

	var refreshLen uint16
	if err := binary.Read(reader, binary.BigEndian, &refreshLen); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = readString(reader, int(refreshLen)); err != nil {
		return nil, err
	}

	csrfLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if s.CSRFToken, err = readString(reader, int(csrfLen)); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func readString(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
